package metrics

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-floodnet/config"
)

// Params 依赖参数
type Params struct {
	fx.In

	Config *config.Config
}

// Provide 按配置创建指标；未启用时返回 nil
func Provide(p Params) *Metrics {
	if !p.Config.Metrics.Enabled {
		return nil
	}
	return New()
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(Provide),
	)
}
