package swarm

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-floodnet/config"
	"github.com/dep2p/go-floodnet/internal/core/identity"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config   *config.Config
	Identity *identity.Identity
}

// ConfigFromTransport 把全局传输配置转换为 Swarm 配置
func ConfigFromTransport(c config.TransportConfig) (*Config, error) {
	addrs, err := c.Multiaddrs()
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	cfg.ListenAddrs = addrs
	if c.DialTimeout > 0 {
		cfg.DialTimeout = c.DialTimeout.Duration()
	}
	if c.HandshakeTimeout > 0 {
		cfg.HandshakeTimeout = c.HandshakeTimeout.Duration()
	}
	if c.MaxFrameSize > 0 {
		cfg.MaxFrameSize = c.MaxFrameSize
	}
	if c.SendQueueSize > 0 {
		cfg.SendQueueSize = c.SendQueueSize
	}
	if c.DialRateLimit > 0 {
		cfg.DialRateLimit = c.DialRateLimit
	}
	if c.DialBurst > 0 {
		cfg.DialBurst = c.DialBurst
	}
	return cfg, nil
}

// ProvideSwarm 提供 Swarm
func ProvideSwarm(in ModuleInput) (*Swarm, error) {
	cfg, err := ConfigFromTransport(in.Config.Transport)
	if err != nil {
		return nil, err
	}
	return New(in.Identity, WithConfig(cfg))
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("swarm",
		fx.Provide(ProvideSwarm),
	)
}
