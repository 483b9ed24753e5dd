package config

import (
	"fmt"
	"time"
)

// 发现模式
const (
	// DiscoveryModeMulticast UDP 组播存在宣告（默认）
	DiscoveryModeMulticast = "multicast"
	// DiscoveryModeMDNS 基于 mDNS 服务记录
	DiscoveryModeMDNS = "mdns"
)

// DiscoveryConfig 局域网发现配置
type DiscoveryConfig struct {
	// Enabled 是否启用发现
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Mode 发现方式: multicast 或 mdns
	Mode string `json:"mode" yaml:"mode" validate:"oneof=multicast mdns"`

	// Interval 宣告间隔
	Interval Duration `json:"interval" yaml:"interval" validate:"gt=0"`

	// Expiry 未刷新记录的过期时间，必须大于 Interval
	Expiry Duration `json:"expiry" yaml:"expiry" validate:"gt=0"`

	// Group 组播地址 (host:port)
	Group string `json:"group" yaml:"group" validate:"required,hostname_port"`

	// Interface 组播网卡名（为空时使用系统默认）
	Interface string `json:"interface,omitempty" yaml:"interface,omitempty"`

	// ServiceName mDNS 服务名
	ServiceName string `json:"service_name" yaml:"service_name" validate:"required"`
}

// DefaultDiscoveryConfig 返回默认发现配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		Enabled:     true,
		Mode:        DiscoveryModeMulticast,
		Interval:    Duration(5 * time.Second),
		Expiry:      Duration(15 * time.Second),
		Group:       "239.255.70.78:6464",
		ServiceName: "_floodnet._udp",
	}
}

// Validate 验证发现配置
func (c DiscoveryConfig) Validate() error {
	if c.Expiry <= c.Interval {
		return fmt.Errorf("%w: discovery expiry (%s) must be greater than interval (%s)",
			ErrInvalidConfig, c.Expiry, c.Interval)
	}
	return nil
}
