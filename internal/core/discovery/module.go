package discovery

import (
	"fmt"

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

	// Beacon 直接注入的信标（测试中使用 Hub）
	Beacon Beacon `name:"preset_beacon" optional:"true"`
}

// NewBeacon 按配置创建信标
func NewBeacon(c config.DiscoveryConfig) (Beacon, error) {
	switch c.Mode {
	case config.DiscoveryModeMulticast, "":
		return NewMulticastBeacon(c.Group, c.Interface)
	case config.DiscoveryModeMDNS:
		return NewMDNSBeacon(c.ServiceName, c.Interface)
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
}

// ProvideDiscovery 提供发现子协议；未启用时返回 nil
func ProvideDiscovery(in ModuleInput) (*Discovery, error) {
	dc := in.Config.Discovery
	if !dc.Enabled {
		return nil, nil
	}

	beacon := in.Beacon
	if beacon == nil {
		var err error
		beacon, err = NewBeacon(dc)
		if err != nil {
			return nil, err
		}
	}

	cfg := Config{Interval: dc.Interval.Duration(), Expiry: dc.Expiry.Duration()}
	d, err := New(in.PeerID, beacon, cfg, WithMetrics(in.Metrics))
	if err != nil {
		_ = beacon.Close()
		return nil, err
	}
	return d, nil
}

// asBehaviour 把发现服务及其信标交给分发器；未启用时两者皆为空
func asBehaviour(d *Discovery) ([]behaviour.Behaviour, []behaviour.EventSource) {
	if d == nil {
		return nil, nil
	}
	return []behaviour.Behaviour{d}, []behaviour.EventSource{d.Beacon()}
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("discovery",
		fx.Provide(
			ProvideDiscovery,
			fx.Annotate(
				asBehaviour,
				fx.ResultTags(`group:"behaviours,flatten"`, `group:"event_sources,flatten"`),
			),
		),
	)
}
