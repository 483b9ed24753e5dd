package floodnet

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-floodnet/internal/core/behaviour"
	"github.com/dep2p/go-floodnet/internal/core/discovery"
	"github.com/dep2p/go-floodnet/internal/core/identity"
	"github.com/dep2p/go-floodnet/internal/core/metrics"
	"github.com/dep2p/go-floodnet/internal/core/swarm"
	"github.com/dep2p/go-floodnet/internal/protocol/floodsub"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. Identity → Metrics
//  2. Transport（TCP Swarm 或注入的传输层）
//  3. Floodsub、Discovery（以 group:"behaviours" 加入）
//  4. Dispatcher（注册子协议，挂载生命周期）
func buildFxApp(cfg *nodeConfig, node *Node) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := cfg.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 基础组件
	// ════════════════════════════════════════════════════════════════════════
	modules := []fx.Option{
		fx.Supply(cfg.config),
		identity.Module(),
		metrics.Module(),
	}

	if cfg.privateKey != nil {
		id, err := identity.FromPrivateKey(cfg.privateKey)
		if err != nil {
			return nil, fmt.Errorf("load identity: %w", err)
		}
		modules = append(modules, fx.Provide(fx.Annotated{
			Name:   "preset_identity",
			Target: func() *identity.Identity { return id },
		}))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 传输层
	// ════════════════════════════════════════════════════════════════════════
	if cfg.transport != nil {
		t := cfg.transport
		modules = append(modules, fx.Provide(func() behaviour.Transport { return t }))
	} else {
		modules = append(modules,
			swarm.Module(),
			fx.Provide(func(s *swarm.Swarm) behaviour.Transport { return s }),
		)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 4. 子协议与分发器
	// ════════════════════════════════════════════════════════════════════════
	if cfg.beacon != nil {
		b := cfg.beacon
		modules = append(modules, fx.Provide(fx.Annotated{
			Name:   "preset_beacon",
			Target: func() discovery.Beacon { return b },
		}))
	}
	if cfg.clock != nil {
		c := cfg.clock
		modules = append(modules, fx.Provide(fx.Annotated{
			Name:   "preset_clock",
			Target: func() clock.Clock { return c },
		}))
	}

	modules = append(modules,
		floodsub.Module(),
		discovery.Module(),
		behaviour.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 5. 用户扩展与组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, cfg.fxOptions...)
	modules = append(modules, fx.Invoke(injectNodeComponents(node)))

	// 禁用 Fx 日志输出（避免干扰用户日志）
	modules = append(modules,
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}

// nodeInjectParams Node 组件注入参数
type nodeInjectParams struct {
	fx.In

	// 核心组件（必需）
	Identity   *identity.Identity
	Transport  behaviour.Transport
	Dispatcher *behaviour.Dispatcher
	Floodsub   *floodsub.Floodsub

	// 可选组件：未启用时为 nil
	Discovery *discovery.Discovery `optional:"true"`
	Metrics   *metrics.Metrics     `optional:"true"`
}

// injectNodeComponents 创建 Node 组件注入函数
func injectNodeComponents(node *Node) interface{} {
	return func(params nodeInjectParams) {
		node.identity = params.Identity
		node.transport = params.Transport
		node.dispatcher = params.Dispatcher
		node.floodsub = params.Floodsub
		node.discovery = params.Discovery
		node.metrics = params.Metrics
	}
}
