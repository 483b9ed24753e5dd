package config

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// Enabled 是否收集指标
	Enabled bool `json:"enabled" yaml:"enabled"`

	// ListenAddr /metrics HTTP 地址，为空时不暴露
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty" validate:"omitempty,hostname_port"`
}

// DefaultMetricsConfig 返回默认配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: true}
}

// Validate 验证配置
func (c MetricsConfig) Validate() error {
	return nil
}
