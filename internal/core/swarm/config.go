package swarm

import (
	"time"

	ma "github.com/multiformats/go-multiaddr"
)

// Config Swarm 配置
type Config struct {
	// ListenAddrs 监听地址
	ListenAddrs []ma.Multiaddr

	// DialTimeout 单个地址拨号超时
	DialTimeout time.Duration

	// HandshakeTimeout 安全与多路复用协商超时
	HandshakeTimeout time.Duration

	// NewStreamTimeout 打开出站流超时
	NewStreamTimeout time.Duration

	// MaxFrameSize 单帧上限
	MaxFrameSize int

	// SendQueueSize 每个 (节点, 协议) 出站队列长度
	SendQueueSize int

	// DialRateLimit 每秒拨号数
	DialRateLimit float64

	// DialBurst 拨号突发额度
	DialBurst int

	// EventBuffer 事件通道缓冲
	EventBuffer int
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ListenAddrs:      []ma.Multiaddr{ma.StringCast("/ip4/0.0.0.0/tcp/0")},
		DialTimeout:      10 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		NewStreamTimeout: 10 * time.Second,
		MaxFrameSize:     1 << 20,
		SendQueueSize:    256,
		DialRateLimit:    10,
		DialBurst:        20,
		EventBuffer:      1024,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.DialTimeout <= 0 || c.HandshakeTimeout <= 0 || c.NewStreamTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.MaxFrameSize <= 0 || c.SendQueueSize <= 0 || c.EventBuffer <= 0 {
		return ErrInvalidConfig
	}
	if c.DialRateLimit <= 0 || c.DialBurst <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Option Swarm 选项函数
type Option func(*Swarm) error

// WithConfig 设置配置
func WithConfig(config *Config) Option {
	return func(s *Swarm) error {
		if config == nil {
			return ErrInvalidConfig
		}
		if err := config.Validate(); err != nil {
			return err
		}
		s.config = config
		return nil
	}
}
