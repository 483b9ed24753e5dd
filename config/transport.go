package config

import (
	"fmt"
	"time"

	ma "github.com/multiformats/go-multiaddr"
)

// DefaultListenAddr 默认监听地址（所有接口，系统分配端口）
const DefaultListenAddr = "/ip4/0.0.0.0/tcp/0"

// TransportConfig 传输层配置
type TransportConfig struct {
	// ListenAddrs 监听地址列表
	ListenAddrs []string `json:"listen_addrs" yaml:"listen_addrs" validate:"required,min=1,dive,required"`

	// DialTimeout 拨号超时（含握手）
	DialTimeout Duration `json:"dial_timeout" yaml:"dial_timeout" validate:"gt=0"`

	// HandshakeTimeout 安全与多路复用协商超时
	HandshakeTimeout Duration `json:"handshake_timeout" yaml:"handshake_timeout" validate:"gt=0"`

	// MaxFrameSize 单帧最大字节数
	MaxFrameSize int `json:"max_frame_size" yaml:"max_frame_size" validate:"gte=1024"`

	// SendQueueSize 每个 (节点, 协议) 出站队列长度，满时丢弃
	SendQueueSize int `json:"send_queue_size" yaml:"send_queue_size" validate:"gte=1"`

	// DialRateLimit 每秒最多发起的拨号数
	DialRateLimit float64 `json:"dial_rate_limit" yaml:"dial_rate_limit" validate:"gt=0"`

	// DialBurst 拨号突发额度
	DialBurst int `json:"dial_burst" yaml:"dial_burst" validate:"gte=1"`
}

// DefaultTransportConfig 返回默认传输层配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ListenAddrs:      []string{DefaultListenAddr},
		DialTimeout:      Duration(10 * time.Second),
		HandshakeTimeout: Duration(5 * time.Second),
		MaxFrameSize:     1 << 20,
		SendQueueSize:    256,
		DialRateLimit:    10,
		DialBurst:        20,
	}
}

// Validate 验证监听地址可解析
func (c TransportConfig) Validate() error {
	for _, s := range c.ListenAddrs {
		if _, err := ma.NewMultiaddr(s); err != nil {
			return fmt.Errorf("%w: listen addr %q: %v", ErrInvalidConfig, s, err)
		}
	}
	return nil
}

// Multiaddrs 返回解析后的监听地址
func (c TransportConfig) Multiaddrs() ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, 0, len(c.ListenAddrs))
	for _, s := range c.ListenAddrs {
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("%w: listen addr %q: %v", ErrInvalidConfig, s, err)
		}
		out = append(out, a)
	}
	return out, nil
}
