package floodsub

import (
	"fmt"
	"time"

	"github.com/dep2p/go-floodnet/internal/core/metrics"
	"github.com/dep2p/go-floodnet/pkg/types"
)

// ProtocolID 泛洪协议标识
const ProtocolID = types.ProtocolID("/floodnet/floodsub/1.0.0")

const (
	// DefaultSeenCacheSize 已见消息缓存默认容量
	DefaultSeenCacheSize = 10000

	// DefaultSeenCacheTTL 已见消息默认保留时长
	DefaultSeenCacheTTL = 2 * time.Minute
)

// Config 泛洪协议配置
type Config struct {
	// SeenCacheSize 已见消息缓存容量
	SeenCacheSize int

	// SeenCacheTTL 已见消息保留时长
	SeenCacheTTL time.Duration

	// Topics 启动时订阅的主题
	Topics []types.Topic
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		SeenCacheSize: DefaultSeenCacheSize,
		SeenCacheTTL:  DefaultSeenCacheTTL,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.SeenCacheSize <= 0 {
		return fmt.Errorf("%w: seen cache size must be positive", ErrInvalidConfig)
	}
	if c.SeenCacheTTL <= 0 {
		return fmt.Errorf("%w: seen cache ttl must be positive", ErrInvalidConfig)
	}
	for _, t := range c.Topics {
		if t == "" {
			return fmt.Errorf("%w: empty topic", ErrInvalidConfig)
		}
	}
	return nil
}

// Option 选项
type Option func(*Floodsub)

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Floodsub) {
		f.metrics = m
	}
}
