package config

import "time"

// PubSubConfig 泛洪发布订阅配置
type PubSubConfig struct {
	// Topics 启动时订阅的主题
	Topics []string `json:"topics" yaml:"topics" validate:"dive,required"`

	// SeenCacheSize 去重缓存容量
	SeenCacheSize int `json:"seen_cache_size" yaml:"seen_cache_size" validate:"gte=1"`

	// SeenCacheTTL 去重缓存保留时间
	SeenCacheTTL Duration `json:"seen_cache_ttl" yaml:"seen_cache_ttl" validate:"gt=0"`

	// NotifyQueueSize 待应用层取走的通知上限，超出时丢弃最旧的通知
	NotifyQueueSize int `json:"notify_queue_size" yaml:"notify_queue_size" validate:"gte=1"`
}

// DefaultPubSubConfig 返回默认配置
func DefaultPubSubConfig() PubSubConfig {
	return PubSubConfig{
		Topics:          []string{"chat"},
		SeenCacheSize:   10000,
		SeenCacheTTL:    Duration(2 * time.Minute),
		NotifyQueueSize: 1024,
	}
}

// Validate 验证配置
func (c PubSubConfig) Validate() error {
	return nil
}
