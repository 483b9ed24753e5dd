package floodnet

import (
	"fmt"
	"sync"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-floodnet/config"
	"github.com/dep2p/go-floodnet/internal/core/behaviour"
	"github.com/dep2p/go-floodnet/internal/core/discovery"
	"github.com/dep2p/go-floodnet/internal/core/identity"
	"github.com/dep2p/go-floodnet/internal/core/metrics"
	"github.com/dep2p/go-floodnet/internal/protocol/floodsub"
	"github.com/dep2p/go-floodnet/internal/util/logger"
	"github.com/dep2p/go-floodnet/pkg/types"
)

var log = logger.Logger("floodnet")

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 空闲状态（已创建，未启动）
	StateIdle NodeState = iota

	// StateStarting 启动中（Fx App 启动中）
	StateStarting

	// StateRunning 运行中
	StateRunning

	// StateStopping 停止中
	StateStopping

	// StateStopped 已停止（不可重新启动）
	StateStopped
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Node floodnet 节点
//
// Node 是门面，聚合身份、传输层、分发器与子协议。
// 事件循环由调用 Next 或 Run 的 goroutine 驱动。
type Node struct {
	config *nodeConfig
	app    *fx.App

	// 由 Fx 注入
	identity   *identity.Identity
	transport  behaviour.Transport
	dispatcher *behaviour.Dispatcher
	floodsub   *floodsub.Floodsub
	discovery  *discovery.Discovery
	metrics    *metrics.Metrics

	mu    sync.Mutex
	state NodeState

	// done 在 Close 时关闭，唤醒等待查询结果的调用方
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New 创建节点（不启动）
func New(opts ...Option) (*Node, error) {
	cfg, err := applyOptions(opts...)
	if err != nil {
		return nil, err
	}

	n := &Node{
		config: cfg,
		state:  StateIdle,
		done:   make(chan struct{}),
	}

	app, err := buildFxApp(cfg, n)
	if err != nil {
		return nil, fmt.Errorf("build node: %w", err)
	}
	n.app = app

	if got, want := n.transport.LocalPeer(), n.identity.PeerID(); got != want {
		_ = n.dispatcher.Close()
		return nil, fmt.Errorf("%w: transport peer %s does not match identity %s",
			ErrInvalidOption, got.ShortString(), want.ShortString())
	}
	return n, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              基本信息
// ════════════════════════════════════════════════════════════════════════════

// ID 返回本地节点 ID
func (n *Node) ID() types.PeerID {
	return n.identity.PeerID()
}

// Addrs 返回监听地址
func (n *Node) Addrs() []ma.Multiaddr {
	return n.transport.ListenAddrs()
}

// State 返回节点状态
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Config 返回生效的配置
func (n *Node) Config() *config.Config {
	return n.config.config
}

// Registry 返回指标注册表；未启用指标时返回 nil
func (n *Node) Registry() *prometheus.Registry {
	if n.metrics == nil {
		return nil
	}
	return n.metrics.Registry()
}

func (n *Node) setState(s NodeState) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}
