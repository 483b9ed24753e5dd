package discovery

import (
	"fmt"
	"time"

	"github.com/dep2p/go-floodnet/internal/core/metrics"
	"github.com/dep2p/go-floodnet/pkg/types"
)

// ProtocolID 在场报文在分发器中的路由标识
const ProtocolID = types.ProtocolID("/floodnet/discovery/1.0.0")

const (
	// DefaultInterval 默认广播间隔
	DefaultInterval = 5 * time.Second

	// DefaultExpiry 默认过期窗口
	DefaultExpiry = 15 * time.Second
)

// Config 发现服务配置
type Config struct {
	// Interval 广播间隔
	Interval time.Duration

	// Expiry 地址过期窗口，必须大于 Interval
	Expiry time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Interval: DefaultInterval,
		Expiry:   DefaultExpiry,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.Expiry <= c.Interval {
		return fmt.Errorf("%w: expiry (%s) must be greater than interval (%s)", ErrInvalidConfig, c.Expiry, c.Interval)
	}
	return nil
}

// Option 选项
type Option func(*Discovery)

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Discovery) {
		d.metrics = m
	}
}
