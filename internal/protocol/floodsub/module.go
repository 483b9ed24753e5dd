package floodsub

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-floodnet/config"
	"github.com/dep2p/go-floodnet/internal/core/behaviour"
	"github.com/dep2p/go-floodnet/internal/core/metrics"
	"github.com/dep2p/go-floodnet/pkg/types"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config  *config.Config
	PeerID  types.PeerID
	Metrics *metrics.Metrics `optional:"true"`
}

// ConfigFromPubSub 把全局配置转换为协议配置
func ConfigFromPubSub(c config.PubSubConfig) Config {
	cfg := DefaultConfig()
	if c.SeenCacheSize > 0 {
		cfg.SeenCacheSize = c.SeenCacheSize
	}
	if c.SeenCacheTTL > 0 {
		cfg.SeenCacheTTL = c.SeenCacheTTL.Duration()
	}
	for _, t := range c.Topics {
		cfg.Topics = append(cfg.Topics, types.Topic(t))
	}
	return cfg
}

// ProvideFloodsub 提供泛洪子协议
func ProvideFloodsub(in ModuleInput) (*Floodsub, error) {
	return New(in.PeerID, ConfigFromPubSub(in.Config.PubSub), WithMetrics(in.Metrics))
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("floodsub",
		fx.Provide(
			ProvideFloodsub,
			fx.Annotate(
				func(f *Floodsub) behaviour.Behaviour { return f },
				fx.ResultTags(`group:"behaviours"`),
			),
		),
	)
}
