package floodnet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/dep2p/go-floodnet/internal/core/behaviour"
	"github.com/dep2p/go-floodnet/pkg/types"
)

// stopTimeout 关闭 Fx App 的超时
const stopTimeout = 15 * time.Second

// Start 启动节点
//
// 启动传输层与发现服务，然后拨号 Bootstrap 地址。配置中的主题在创建时已订阅。
// 单个 Bootstrap 地址无效只记录警告。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	switch n.state {
	case StateIdle:
	case StateStopping, StateStopped:
		n.mu.Unlock()
		return ErrNodeClosed
	default:
		n.mu.Unlock()
		return ErrAlreadyStarted
	}
	n.state = StateStarting
	n.mu.Unlock()

	if err := n.app.Start(ctx); err != nil {
		n.setState(StateIdle)
		return fmt.Errorf("start node: %w", err)
	}
	n.setState(StateRunning)

	log.Info("节点已启动", "peer", n.ID(), "addrs", n.Addrs())

	for _, s := range n.config.config.Bootstrap {
		if err := n.DialString(ctx, s); err != nil {
			log.Warn("拨号 Bootstrap 地址失败", "addr", s, "err", err)
		}
	}
	return nil
}

// Next 推进事件循环并返回下一条通知
//
// 节点关闭后返回 ErrNodeClosed；传输层致命错误返回 *behaviour.FatalError。
func (n *Node) Next(ctx context.Context) (types.Event, error) {
	switch n.State() {
	case StateIdle, StateStarting:
		return nil, ErrNotStarted
	case StateStopping, StateStopped:
		return nil, ErrNodeClosed
	}
	ev, err := n.dispatcher.Poll(ctx)
	if errors.Is(err, behaviour.ErrClosed) {
		return nil, ErrNodeClosed
	}
	return ev, err
}

// Run 持续驱动事件循环，把每条通知交给 fn
//
// ctx 结束或节点关闭时返回 nil；fn 返回错误或发生致命错误时返回该错误。
func (n *Node) Run(ctx context.Context, fn func(types.Event) error) error {
	for {
		ev, err := n.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrNodeClosed) || errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if fn == nil {
			continue
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

// Close 关闭节点
//
// 发现服务先广播离开记录，随后关闭传输层。可重复调用。
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		prev := n.State()
		n.setState(StateStopping)
		close(n.done)

		var err error
		if prev == StateRunning {
			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			err = multierr.Append(err, n.app.Stop(ctx))
			cancel()
		}
		// 未启动时生命周期钩子不会执行，直接释放信标与传输层
		err = multierr.Append(err, n.dispatcher.Close())

		n.setState(StateStopped)
		n.closeErr = err
		log.Info("节点已关闭", "peer", n.ID())
	})
	return n.closeErr
}
