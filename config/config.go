// Package config 提供 floodnet 节点的统一配置
//
// 主 Config 嵌入各子配置，每个子配置在独立文件中定义：
//   - Identity: 身份密钥
//   - Transport: 监听地址与连接参数
//   - Discovery: 局域网发现（组播 / mDNS）
//   - PubSub: 泛洪发布订阅
//   - Metrics: Prometheus 指标
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Transport.ListenAddrs = []string{"/ip4/0.0.0.0/tcp/4001"}
//
//	// 从文件加载（.json / .yaml / .yml）
//	cfg, err := config.Load("floodnet.yaml")
package config

// Config 是 floodnet 节点的完整配置
type Config struct {
	// Identity 身份配置
	Identity IdentityConfig `json:"identity" yaml:"identity"`

	// Transport 传输层配置
	Transport TransportConfig `json:"transport" yaml:"transport"`

	// Discovery 节点发现配置
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery"`

	// PubSub 发布订阅配置
	PubSub PubSubConfig `json:"pubsub" yaml:"pubsub"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Bootstrap 启动时主动拨号的地址
	//
	// 格式为带 /p2p/<peer-id> 后缀的 multiaddr，或不带后缀（对端身份由握手确定）。
	Bootstrap []string `json:"bootstrap,omitempty" yaml:"bootstrap,omitempty" validate:"dive,required"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Identity:  DefaultIdentityConfig(),
		Transport: DefaultTransportConfig(),
		Discovery: DefaultDiscoveryConfig(),
		PubSub:    DefaultPubSubConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// Validate 验证配置的有效性
//
// 先做结构体标签校验，再做各子配置的语义校验。
func (c *Config) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if err := c.Transport.Validate(); err != nil {
		return err
	}
	if err := c.Discovery.Validate(); err != nil {
		return err
	}
	if err := c.PubSub.Validate(); err != nil {
		return err
	}
	return c.Metrics.Validate()
}
