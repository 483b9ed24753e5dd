package behaviour

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/dep2p/go-floodnet/internal/core/metrics"
	"github.com/dep2p/go-floodnet/internal/util/logger"
	"github.com/dep2p/go-floodnet/pkg/types"
)

var log = logger.Logger("behaviour")

// Dispatcher 行为分发器
type Dispatcher struct {
	transport  Transport
	sources    []EventSource
	behaviours []Behaviour
	routes     map[types.ProtocolID]Behaviour
	registry   *registry

	clock        clock.Clock
	tickInterval time.Duration
	ticker       *clock.Ticker
	metrics      *metrics.Metrics

	// pending 待应用层取走的通知
	pending   []types.Event
	notifyCap int

	inputBuffer int
	input       chan func(*Context)
	netCh       chan types.NetworkEvent

	fatal error

	closing   chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup

	started atomic.Bool
}

// New 创建分发器
func New(t Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport:    t,
		routes:       make(map[types.ProtocolID]Behaviour),
		registry:     newRegistry(),
		clock:        clock.New(),
		tickInterval: DefaultTickInterval,
		notifyCap:    DefaultNotifyQueueSize,
		inputBuffer:  DefaultInputBuffer,
		netCh:        make(chan types.NetworkEvent),
		closing:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.input = make(chan func(*Context), d.inputBuffer)
	return d
}

// Register 注册子协议，必须在 Start 之前调用
func (d *Dispatcher) Register(b Behaviour) error {
	if b == nil {
		return ErrNilBehaviour
	}
	if d.started.Load() {
		return ErrAlreadyStarted
	}
	for _, p := range b.Protocols() {
		if owner, ok := d.routes[p]; ok {
			return fmt.Errorf("%w: %s (owned by %s)", ErrDuplicateProtocol, p, owner.Name())
		}
	}
	for _, p := range b.Protocols() {
		d.routes[p] = b
	}
	d.behaviours = append(d.behaviours, b)
	log.Debug("注册子协议", "name", b.Name(), "protocols", b.Protocols())
	return nil
}

// AddSource 附加网络事件源，必须在 Start 之前调用
func (d *Dispatcher) AddSource(src EventSource) error {
	if d.started.Load() {
		return ErrAlreadyStarted
	}
	d.sources = append(d.sources, src)
	return nil
}

// Start 启动传输层并开始汇聚事件
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.isClosing() {
		return ErrClosed
	}
	if !d.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	protocols := make([]types.ProtocolID, 0, len(d.routes))
	for _, b := range d.behaviours {
		protocols = append(protocols, b.Protocols()...)
	}
	if err := d.transport.Start(ctx, protocols); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	d.ticker = d.clock.Ticker(d.tickInterval)

	d.wg.Add(1 + len(d.sources))
	go d.forward(d.transport.Events())
	for _, src := range d.sources {
		go d.forward(src.Events())
	}
	return nil
}

// forward 把一个事件源汇入 netCh
func (d *Dispatcher) forward(ch <-chan types.NetworkEvent) {
	defer d.wg.Done()
	for {
		select {
		case <-d.closing:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			select {
			case d.netCh <- ev:
			case <-d.closing:
				return
			}
		}
	}
}

// Submit 提交一个在事件循环中执行的本地命令
//
// fn 在 Poll 的调用 goroutine 中执行，可通过 Context 发起副作用。
// 输入缓冲已满时阻塞，直到 ctx 结束或分发器关闭。
func (d *Dispatcher) Submit(ctx context.Context, fn func(*Context)) error {
	if d.isClosing() {
		return ErrClosed
	}
	select {
	case d.input <- fn:
		return nil
	case <-d.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ============================================================================
//                              事件循环
// ============================================================================

// Poll 推进事件循环，直到有通知可返回
//
// 每次迭代只处理一个就绪源；没有就绪源时阻塞。ctx 结束返回 ctx.Err()，
// 分发器关闭返回 ErrClosed，传输层致命错误返回 *FatalError。
func (d *Dispatcher) Poll(ctx context.Context) (types.Event, error) {
	if !d.started.Load() {
		return nil, ErrNotStarted
	}
	for {
		if ev, ok := d.popPending(); ok {
			return ev, nil
		}
		if d.fatal != nil {
			return nil, d.fatal
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-d.closing:
			return nil, ErrClosed

		case ev := <-d.netCh:
			d.handleNetwork(ev)

		case fn := <-d.input:
			d.invoke(nil, fn)

		case <-d.ticker.C:
			// 以时钟当前时间为准，计时器可能积压
			now := d.clock.Now()
			for _, b := range d.behaviours {
				d.invoke(b, func(c *Context) { b.Poll(c, now) })
			}
		}
	}
}

// handleNetwork 处理一个网络事件
func (d *Dispatcher) handleNetwork(ev types.NetworkEvent) {
	switch ev.Kind {
	case types.EvtFrameReceived:
		b, ok := d.routes[ev.Protocol]
		if !ok {
			log.Debug("未知协议，丢弃帧", "peer", ev.Peer.ShortString(), "protocol", ev.Protocol)
			return
		}
		d.invoke(b, func(c *Context) {
			if err := b.HandleFrame(c, ev.Peer, ev.Protocol, ev.Data); err != nil {
				log.Warn("丢弃无法解析的帧", "behaviour", b.Name(), "peer", ev.Peer.ShortString(), "protocol", ev.Protocol, "err", err)
				d.metrics.Malformed(string(ev.Protocol))
			}
		})

	case types.EvtConnectionOpened:
		if d.registry.opened(ev.Peer, ev.ConnID, ev.Addr) {
			log.Debug("节点已连接", "peer", ev.Peer.ShortString(), "direction", ev.Direction)
		}
		d.metrics.SetConnectedPeers(d.registry.len())
		d.broadcast(ev)

	case types.EvtConnectionClosed:
		remaining := d.registry.closed(ev.Peer, ev.ConnID)
		ev.Remaining = remaining
		if remaining == 0 {
			log.Debug("节点已断开", "peer", ev.Peer.ShortString())
		}
		d.metrics.SetConnectedPeers(d.registry.len())
		d.broadcast(ev)

	case types.EvtDialFailed:
		log.Debug("拨号失败", "peer", ev.Peer.ShortString(), "addr", ev.Addr, "err", ev.Err)
		d.broadcast(ev)

	case types.EvtNewListenAddr:
		d.push(types.NewListenAddr{Addr: ev.Addr})
		d.broadcast(ev)

	case types.EvtListenerClosed:
		if d.isClosing() {
			return
		}
		log.Error("监听器已关闭", "addr", ev.Addr, "err", ev.Err)
		d.fatal = &FatalError{Err: ev.Err}

	default:
		log.Debug("忽略未知网络事件", "kind", ev.Kind)
	}
}

// broadcast 把连接事件交给所有子协议
func (d *Dispatcher) broadcast(ev types.NetworkEvent) {
	for _, b := range d.behaviours {
		d.invoke(b, func(c *Context) { b.HandleConnection(c, ev) })
	}
}

// invoke 执行处理器并应用其登记的副作用
//
// owner 为 nil 表示本地命令，派发的事件注入所有子协议。
func (d *Dispatcher) invoke(owner Behaviour, fn func(*Context)) {
	c := &Context{d: d, owner: owner, now: d.clock.Now()}
	fn(c)
	d.apply(c)
}

func (d *Dispatcher) apply(c *Context) {
	for _, a := range c.actions {
		switch a.kind {
		case actSend:
			if err := d.transport.Send(a.peer, a.proto, a.data); err != nil {
				log.Debug("发送失败", "peer", a.peer.ShortString(), "protocol", a.proto, "err", err)
				d.metrics.SendFailed()
			}

		case actDial:
			d.transport.Dial(a.peer, a.addrs)

		case actDisconnect:
			if err := d.transport.ClosePeer(a.peer); err != nil {
				log.Debug("断开连接失败", "peer", a.peer.ShortString(), "err", err)
			}

		case actEmit:
			d.push(a.event)
			for _, b := range d.behaviours {
				if b == c.owner {
					continue
				}
				d.invoke(b, func(ic *Context) { b.InjectEvent(ic, a.event) })
			}
		}
	}
}

// ============================================================================
//                              通知队列
// ============================================================================

// push 追加通知；队列满时丢弃最旧的一条
func (d *Dispatcher) push(ev types.Event) {
	if len(d.pending) >= d.notifyCap {
		log.Warn("通知队列已满，丢弃最旧通知", "type", d.pending[0].Type())
		d.pending[0] = nil
		d.pending = d.pending[1:]
		d.metrics.NotificationDropped()
	}
	d.pending = append(d.pending, ev)
}

func (d *Dispatcher) popPending() (types.Event, bool) {
	if len(d.pending) == 0 {
		return nil, false
	}
	ev := d.pending[0]
	d.pending[0] = nil
	d.pending = d.pending[1:]
	return ev, true
}

// ============================================================================
//                              关闭
// ============================================================================

func (d *Dispatcher) isClosing() bool {
	select {
	case <-d.closing:
		return true
	default:
		return false
	}
}

// Close 关闭分发器
//
// 先关闭实现了 io.Closer 的子协议（如发现服务发送离开通知），再关闭传输层。
// 可与 Poll 并发调用；Poll 随后返回 ErrClosed。
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		close(d.closing)
		if d.ticker != nil {
			d.ticker.Stop()
		}

		var err error
		for _, b := range d.behaviours {
			if closer, ok := b.(io.Closer); ok {
				err = multierr.Append(err, closer.Close())
			}
		}
		err = multierr.Append(err, d.transport.Close())
		d.wg.Wait()
		d.closeErr = err
	})
	return d.closeErr
}
