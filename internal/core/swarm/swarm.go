package swarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-floodnet/internal/core/identity"
	"github.com/dep2p/go-floodnet/internal/core/transport/tcp"
	"github.com/dep2p/go-floodnet/internal/core/upgrader"
	"github.com/dep2p/go-floodnet/internal/util/logger"
	"github.com/dep2p/go-floodnet/pkg/types"
)

var log = logger.Logger("swarm")

// Swarm 连接群管理
type Swarm struct {
	mu sync.RWMutex

	localPeer types.PeerID
	config    *Config

	tcp      *tcp.Transport
	upgrader *upgrader.Upgrader

	listeners []*tcp.Listener

	// conns peer -> connID -> conn
	conns map[types.PeerID]map[uint64]*conn

	// protocols 入站流可协商的协议
	protocols []types.ProtocolID

	// dialing 正在拨号的节点（或无 ID 时的地址）
	dialing map[string]struct{}
	limiter *rate.Limiter

	events chan types.NetworkEvent
	nextID atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool
	closed  atomic.Bool
}

// New 创建 Swarm
func New(id *identity.Identity, opts ...Option) (*Swarm, error) {
	if id == nil {
		return nil, errors.New("swarm: identity is nil")
	}

	s := &Swarm{
		localPeer: id.PeerID(),
		config:    DefaultConfig(),
		conns:     make(map[types.PeerID]map[uint64]*conn),
		dialing:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	up, err := upgrader.New(id, s.config.HandshakeTimeout)
	if err != nil {
		return nil, err
	}
	s.upgrader = up
	s.tcp = tcp.NewTransport(s.config.DialTimeout)
	s.limiter = rate.NewLimiter(rate.Limit(s.config.DialRateLimit), s.config.DialBurst)
	s.events = make(chan types.NetworkEvent, s.config.EventBuffer)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// LocalPeer 返回本地节点 ID
func (s *Swarm) LocalPeer() types.PeerID {
	return s.localPeer
}

// Events 返回网络事件通道
func (s *Swarm) Events() <-chan types.NetworkEvent {
	return s.events
}

// ============================================================================
//                              启动与监听
// ============================================================================

// Start 绑定所有监听地址并开始接受连接
//
// protocols 为入站流可协商的协议集合。任一地址绑定失败则返回错误。
func (s *Swarm) Start(ctx context.Context, protocols []types.ProtocolID) error {
	if s.closed.Load() {
		return ErrSwarmClosed
	}
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("swarm: already started")
	}

	s.mu.Lock()
	s.protocols = append([]types.ProtocolID(nil), protocols...)
	s.mu.Unlock()

	listeners := make([]*tcp.Listener, len(s.config.ListenAddrs))
	g, _ := errgroup.WithContext(ctx)
	for i, addr := range s.config.ListenAddrs {
		i, addr := i, addr
		g.Go(func() error {
			l, err := s.tcp.Listen(addr)
			if err != nil {
				return err
			}
			listeners[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, l := range listeners {
			if l != nil {
				_ = l.Close()
			}
		}
		return fmt.Errorf("swarm listen: %w", err)
	}

	s.mu.Lock()
	s.listeners = listeners
	s.mu.Unlock()

	for _, l := range listeners {
		for _, a := range tcp.ExpandUnspecified(l.Multiaddr()) {
			log.Info("开始监听", "addr", a)
			s.emit(types.NetworkEvent{Kind: types.EvtNewListenAddr, Addr: a})
		}
		s.wg.Add(1)
		go s.acceptLoop(l)
	}
	return nil
}

// ListenAddrs 返回可对外宣告的监听地址（未指定地址展开为网卡地址）
func (s *Swarm) ListenAddrs() []ma.Multiaddr {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ma.Multiaddr
	for _, l := range s.listeners {
		out = append(out, tcp.ExpandUnspecified(l.Multiaddr())...)
	}
	return out
}

// ============================================================================
//                              发送
// ============================================================================

// Send 向节点发送一个帧
//
// 帧进入该 (节点, 协议) 的出站队列后立即返回；队列满时返回 ErrQueueFull。
func (s *Swarm) Send(peer types.PeerID, proto types.ProtocolID, data []byte) error {
	if s.closed.Load() {
		return ErrSwarmClosed
	}
	if len(data) > s.config.MaxFrameSize {
		return fmt.Errorf("%w: %d", ErrFrameTooLarge, len(data))
	}

	c := s.bestConn(peer)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, peer.ShortString())
	}
	return c.send(proto, data)
}

// bestConn 选择最新建立的连接
func (s *Swarm) bestConn(peer types.PeerID) *conn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *conn
	for _, c := range s.conns[peer] {
		if best == nil || c.id > best.id {
			best = c
		}
	}
	return best
}

// ConnsToPeer 返回到该节点的连接数
func (s *Swarm) ConnsToPeer(peer types.PeerID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[peer])
}

// ClosePeer 关闭到该节点的所有连接
func (s *Swarm) ClosePeer(peer types.PeerID) error {
	s.mu.RLock()
	conns := make([]*conn, 0, len(s.conns[peer]))
	for _, c := range s.conns[peer] {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	var err error
	for _, c := range conns {
		err = multierr.Append(err, c.close())
	}
	return err
}

// ============================================================================
//                              连接表
// ============================================================================

// addConn 登记已升级的连接并启动其读循环
func (s *Swarm) addConn(uc *upgrader.Conn, addr ma.Multiaddr) {
	c := newConn(s, s.nextID.Add(1), uc, addr)

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		_ = uc.Close()
		return
	}
	m := s.conns[c.peer]
	if m == nil {
		m = make(map[uint64]*conn)
		s.conns[c.peer] = m
	}
	m[c.id] = c
	s.mu.Unlock()

	log.Debug("连接已建立", "peer", c.peer.ShortString(), "conn", c.id, "direction", c.dir, "addr", addr)

	// 先投递 ConnectionOpened，再启动读循环，保证帧事件在其之后
	s.emit(types.NetworkEvent{
		Kind:      types.EvtConnectionOpened,
		Peer:      c.peer,
		ConnID:    c.id,
		Direction: c.dir,
		Addr:      addr,
	})

	s.wg.Add(2)
	go c.acceptStreams()
	go c.watch()
}

// removeConn 从连接表移除并投递 ConnectionClosed
func (s *Swarm) removeConn(c *conn, cause error) {
	s.mu.Lock()
	m := s.conns[c.peer]
	if _, ok := m[c.id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(m, c.id)
	remaining := len(m)
	if remaining == 0 {
		delete(s.conns, c.peer)
	}
	s.mu.Unlock()

	log.Debug("连接已关闭", "peer", c.peer.ShortString(), "conn", c.id, "remaining", remaining, "err", cause)
	s.emit(types.NetworkEvent{
		Kind:      types.EvtConnectionClosed,
		Peer:      c.peer,
		ConnID:    c.id,
		Direction: c.dir,
		Addr:      c.addr,
		Remaining: remaining,
		Err:       cause,
	})
}

// protocolList 返回入站可协商的协议
func (s *Swarm) protocolList() []types.ProtocolID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protocols
}

// emit 投递事件；swarm 关闭后丢弃
func (s *Swarm) emit(ev types.NetworkEvent) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// ============================================================================
//                              关闭
// ============================================================================

// Close 关闭所有监听器和连接，等待后台 goroutine 退出
func (s *Swarm) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()

	s.mu.Lock()
	listeners := s.listeners
	s.listeners = nil
	var conns []*conn
	for _, m := range s.conns {
		for _, c := range m {
			conns = append(conns, c)
		}
	}
	s.mu.Unlock()

	var err error
	for _, l := range listeners {
		err = multierr.Append(err, l.Close())
	}
	for _, c := range conns {
		err = multierr.Append(err, c.close())
	}

	s.wg.Wait()
	return err
}
