package behaviour

import (
	"context"
	"sort"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-floodnet/config"
	"github.com/dep2p/go-floodnet/internal/core/metrics"
)

// ModuleInput 模块输入依赖
//
// 子协议通过 group:"behaviours" 加入，附加事件源通过 group:"event_sources" 加入。
type ModuleInput struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Config     *config.Config
	Transport  Transport
	Behaviours []Behaviour   `group:"behaviours"`
	Sources    []EventSource `group:"event_sources"`

	Clock   clock.Clock      `name:"preset_clock" optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

// ProvideDispatcher 创建分发器并注册所有子协议
//
// 启动与关闭挂在 fx 生命周期上。
func ProvideDispatcher(in ModuleInput) (*Dispatcher, error) {
	d := New(in.Transport,
		WithClock(in.Clock),
		WithNotifyQueueSize(in.Config.PubSub.NotifyQueueSize),
		WithMetrics(in.Metrics),
	)

	// 注册顺序决定注入顺序，按名称排序保证稳定
	behaviours := make([]Behaviour, 0, len(in.Behaviours))
	for _, b := range in.Behaviours {
		if b != nil {
			behaviours = append(behaviours, b)
		}
	}
	sort.Slice(behaviours, func(i, j int) bool {
		return behaviours[i].Name() < behaviours[j].Name()
	})
	for _, b := range behaviours {
		if err := d.Register(b); err != nil {
			return nil, err
		}
	}
	for _, src := range in.Sources {
		if src != nil {
			if err := d.AddSource(src); err != nil {
				return nil, err
			}
		}
	}

	in.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return d.Start(ctx)
		},
		OnStop: func(context.Context) error {
			return d.Close()
		},
	})
	return d, nil
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("behaviour",
		fx.Provide(ProvideDispatcher),
	)
}
