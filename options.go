package floodnet

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-floodnet/config"
	"github.com/dep2p/go-floodnet/internal/core/behaviour"
	"github.com/dep2p/go-floodnet/internal/core/discovery"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 基础配置（WithConfig / WithConfigFile），为空时使用默认配置
	config *config.Config

	// 身份配置
	identityKeyFile string
	privateKey      ed25519.PrivateKey

	// 监听地址
	listenAddrs []string

	// 主题
	topics    []string
	topicsSet bool

	// 发现配置
	discovery struct {
		enable   *bool
		mode     string
		interval time.Duration
		expiry   time.Duration
	}

	// 启动时拨号的地址
	bootstrap []string

	// 指标
	metrics *bool

	// 测试注入
	transport behaviour.Transport
	beacon    discovery.Beacon
	clock     clock.Clock

	// 用户自定义 Fx 选项
	fxOptions []fx.Option
}

// nodeConfig 应用选项后的节点配置
type nodeConfig struct {
	config *config.Config

	privateKey ed25519.PrivateKey
	transport  behaviour.Transport
	beacon     discovery.Beacon
	clock      clock.Clock
	fxOptions  []fx.Option
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置选项
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整配置作为基础，其余选项在其上覆盖
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("%w: nil config", ErrInvalidOption)
		}
		o.config = cfg
		return nil
	}
}

// WithConfigFile 从 JSON / YAML 文件加载基础配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// WithListenAddrs 设置监听地址
func WithListenAddrs(addrs ...string) Option {
	return func(o *options) error {
		if len(addrs) == 0 {
			return fmt.Errorf("%w: no listen addrs", ErrInvalidOption)
		}
		o.listenAddrs = append([]string(nil), addrs...)
		return nil
	}
}

// WithTopics 设置启动时订阅的主题（替换默认主题）
func WithTopics(topics ...string) Option {
	return func(o *options) error {
		for _, t := range topics {
			if t == "" {
				return ErrEmptyTopic
			}
		}
		o.topics = append([]string(nil), topics...)
		o.topicsSet = true
		return nil
	}
}

// WithBootstrap 设置启动时拨号的地址
func WithBootstrap(addrs ...string) Option {
	return func(o *options) error {
		o.bootstrap = append(o.bootstrap, addrs...)
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              身份选项
// ════════════════════════════════════════════════════════════════════════════

// WithIdentityKeyFile 从文件加载身份，文件不存在时生成并保存
func WithIdentityKeyFile(path string) Option {
	return func(o *options) error {
		o.identityKeyFile = path
		return nil
	}
}

// WithPrivateKey 使用给定私钥作为节点身份
func WithPrivateKey(priv ed25519.PrivateKey) Option {
	return func(o *options) error {
		if len(priv) != ed25519.PrivateKeySize {
			return fmt.Errorf("%w: bad private key size %d", ErrInvalidOption, len(priv))
		}
		o.privateKey = priv
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              发现选项
// ════════════════════════════════════════════════════════════════════════════

// WithDiscovery 启用发现并设置模式（multicast 或 mdns）
func WithDiscovery(mode string) Option {
	return func(o *options) error {
		switch mode {
		case config.DiscoveryModeMulticast, config.DiscoveryModeMDNS:
		default:
			return fmt.Errorf("%w: discovery mode %q", ErrInvalidOption, mode)
		}
		enable := true
		o.discovery.enable = &enable
		o.discovery.mode = mode
		return nil
	}
}

// WithoutDiscovery 关闭发现
func WithoutDiscovery() Option {
	return func(o *options) error {
		disable := false
		o.discovery.enable = &disable
		return nil
	}
}

// WithDiscoveryTiming 设置宣告间隔与过期时间
func WithDiscoveryTiming(interval, expiry time.Duration) Option {
	return func(o *options) error {
		if interval <= 0 || expiry <= interval {
			return fmt.Errorf("%w: discovery expiry (%s) must be greater than interval (%s)",
				ErrInvalidOption, expiry, interval)
		}
		o.discovery.interval = interval
		o.discovery.expiry = expiry
		return nil
	}
}

// WithBeacon 使用给定信标替代组播 / mDNS（隐含启用发现）
func WithBeacon(b discovery.Beacon) Option {
	return func(o *options) error {
		if b == nil {
			return fmt.Errorf("%w: nil beacon", ErrInvalidOption)
		}
		enable := true
		o.discovery.enable = &enable
		o.beacon = b
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              其它选项
// ════════════════════════════════════════════════════════════════════════════

// WithMetrics 开关 Prometheus 指标
func WithMetrics(enable bool) Option {
	return func(o *options) error {
		o.metrics = &enable
		return nil
	}
}

// WithTransport 使用给定传输层替代 TCP Swarm
//
// 传输层的本地节点 ID 必须与节点身份一致。
func WithTransport(t behaviour.Transport) Option {
	return func(o *options) error {
		if t == nil {
			return fmt.Errorf("%w: nil transport", ErrInvalidOption)
		}
		o.transport = t
		return nil
	}
}

// WithClock 设置事件循环时钟
func WithClock(c clock.Clock) Option {
	return func(o *options) error {
		o.clock = c
		return nil
	}
}

// WithFxOption 追加自定义 Fx 选项
func WithFxOption(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              选项应用
// ════════════════════════════════════════════════════════════════════════════

// applyOptions 应用选项并生成节点配置
func applyOptions(opts ...Option) (*nodeConfig, error) {
	o := &options{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	cfg := o.config
	if cfg == nil {
		cfg = config.NewConfig()
	}

	if len(o.listenAddrs) > 0 {
		cfg.Transport.ListenAddrs = o.listenAddrs
	}
	if o.topicsSet {
		cfg.PubSub.Topics = o.topics
	}
	if len(o.bootstrap) > 0 {
		cfg.Bootstrap = append(cfg.Bootstrap, o.bootstrap...)
	}
	if o.identityKeyFile != "" {
		cfg.Identity = cfg.Identity.WithKeyFile(o.identityKeyFile)
	}
	if o.discovery.enable != nil {
		cfg.Discovery.Enabled = *o.discovery.enable
	}
	if o.discovery.mode != "" {
		cfg.Discovery.Mode = o.discovery.mode
	}
	if o.discovery.interval > 0 {
		cfg.Discovery.Interval = config.Duration(o.discovery.interval)
		cfg.Discovery.Expiry = config.Duration(o.discovery.expiry)
	}
	if o.metrics != nil {
		cfg.Metrics.Enabled = *o.metrics
	}

	return &nodeConfig{
		config:     cfg,
		privateKey: o.privateKey,
		transport:  o.transport,
		beacon:     o.beacon,
		clock:      o.clock,
		fxOptions:  o.fxOptions,
	}, nil
}
