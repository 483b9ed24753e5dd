package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-floodnet/pkg/types"
)

var (
	// ErrNotConnected 没有到该节点的连接
	ErrNotConnected = errors.New("memory: peer not connected")
	// ErrClosed 传输已关闭
	ErrClosed = errors.New("memory: transport closed")
	// ErrUnreachable 目标不存在或已关闭
	ErrUnreachable = errors.New("memory: peer unreachable")
)

// ============================================================================
//                              Network
// ============================================================================

// Network 进程内网络
type Network struct {
	mu       sync.Mutex
	nodes    map[types.PeerID]*Transport
	byAddr   map[string]*Transport
	nextPort int
	nextConn uint64
}

// NewNetwork 创建网络
func NewNetwork() *Network {
	return &Network{
		nodes:    make(map[types.PeerID]*Transport),
		byAddr:   make(map[string]*Transport),
		nextPort: 10000,
	}
}

// NewTransport 为节点创建传输并分配合成地址
func (n *Network) NewTransport(peer types.PeerID) *Transport {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextPort++
	addr := ma.StringCast(fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", n.nextPort))
	t := &Transport{
		net:    n,
		peer:   peer,
		addr:   addr,
		links:  make(map[types.PeerID]map[uint64]*link),
		events: make(chan types.NetworkEvent),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	n.nodes[peer] = t
	n.byAddr[addr.String()] = t
	go t.pump()
	return t
}

// Connect 同步建立 a -> b 的连接
func (n *Network) Connect(a, b types.PeerID) error {
	n.mu.Lock()
	ta, tb := n.nodes[a], n.nodes[b]
	n.mu.Unlock()
	if ta == nil || tb == nil {
		return ErrUnreachable
	}
	return ta.connect(tb)
}

// Disconnect 断开 a 与 b 之间的全部连接
func (n *Network) Disconnect(a, b types.PeerID) {
	n.mu.Lock()
	ta := n.nodes[a]
	n.mu.Unlock()
	if ta != nil {
		_ = ta.ClosePeer(b)
	}
}

func (n *Network) lookup(peer types.PeerID, addrs []ma.Multiaddr) *Transport {
	n.mu.Lock()
	defer n.mu.Unlock()

	if t, ok := n.nodes[peer]; ok {
		return t
	}
	for _, a := range addrs {
		if t, ok := n.byAddr[a.String()]; ok && (peer.IsEmpty() || t.peer == peer) {
			return t
		}
	}
	return nil
}

func (n *Network) connID() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextConn++
	return n.nextConn
}

func (n *Network) remove(t *Transport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.nodes[t.peer] == t {
		delete(n.nodes, t.peer)
	}
	delete(n.byAddr, t.addr.String())
}

// ============================================================================
//                              Transport
// ============================================================================

// link 一条双向连接，两端共享同一个 ID
type link struct {
	id   uint64
	dir  types.Direction
	peer *Transport
}

// SentFrame 一次成功的发送
type SentFrame struct {
	To       types.PeerID
	Protocol types.ProtocolID
	Data     []byte
}

// Transport 进程内传输
type Transport struct {
	net  *Network
	peer types.PeerID
	addr ma.Multiaddr

	mu        sync.Mutex
	links     map[types.PeerID]map[uint64]*link
	protocols map[types.ProtocolID]struct{}
	sent      []SentFrame
	closed    bool

	// pending 未取走的事件；pump 负责投递到 events
	pending []types.NetworkEvent
	events  chan types.NetworkEvent
	wake    chan struct{}
	done    chan struct{}
}

// LocalPeer 返回本地节点 ID
func (t *Transport) LocalPeer() types.PeerID {
	return t.peer
}

// Addr 返回合成地址
func (t *Transport) Addr() ma.Multiaddr {
	return t.addr
}

// Start 记录可接受的协议并宣告监听地址
func (t *Transport) Start(_ context.Context, protocols []types.ProtocolID) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.protocols = make(map[types.ProtocolID]struct{}, len(protocols))
	for _, p := range protocols {
		t.protocols[p] = struct{}{}
	}
	t.mu.Unlock()

	t.push(types.NetworkEvent{Kind: types.EvtNewListenAddr, Addr: t.addr})
	return nil
}

// Events 返回网络事件通道
func (t *Transport) Events() <-chan types.NetworkEvent {
	return t.events
}

// ListenAddrs 返回合成地址
func (t *Transport) ListenAddrs() []ma.Multiaddr {
	return []ma.Multiaddr{t.addr}
}

// Send 把帧投递给对端
//
// 对端未声明该协议时帧被丢弃（相当于协商失败），不计入发送记录。
func (t *Transport) Send(peer types.PeerID, proto types.ProtocolID, data []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	var l *link
	for _, cand := range t.links[peer] {
		if l == nil || cand.id > l.id {
			l = cand
		}
	}
	if l == nil {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotConnected, peer.ShortString())
	}
	t.mu.Unlock()

	remote := l.peer
	if !remote.accepts(proto) {
		return nil
	}

	t.mu.Lock()
	t.sent = append(t.sent, SentFrame{To: peer, Protocol: proto, Data: data})
	t.mu.Unlock()

	remote.push(types.NetworkEvent{
		Kind:      types.EvtFrameReceived,
		Peer:      t.peer,
		ConnID:    l.id,
		Direction: opposite(l.dir),
		Protocol:  proto,
		Data:      append([]byte(nil), data...),
	})
	return nil
}

// Dial 连接目标节点；失败时投递 DialFailed
func (t *Transport) Dial(peer types.PeerID, addrs []ma.Multiaddr) {
	target := t.net.lookup(peer, addrs)
	var addr ma.Multiaddr
	if len(addrs) > 0 {
		addr = addrs[0]
	}
	if target == nil || target == t {
		t.push(types.NetworkEvent{Kind: types.EvtDialFailed, Peer: peer, Addr: addr, Err: ErrUnreachable})
		return
	}
	if err := t.connect(target); err != nil {
		t.push(types.NetworkEvent{Kind: types.EvtDialFailed, Peer: peer, Addr: addr, Err: err})
	}
}

func (t *Transport) connect(remote *Transport) error {
	if t.isClosed() || remote.isClosed() {
		return ErrUnreachable
	}
	id := t.net.connID()

	t.addLink(remote, id, types.DirOutbound)
	remote.addLink(t, id, types.DirInbound)

	t.push(types.NetworkEvent{Kind: types.EvtConnectionOpened, Peer: remote.peer, ConnID: id, Direction: types.DirOutbound, Addr: remote.addr})
	remote.push(types.NetworkEvent{Kind: types.EvtConnectionOpened, Peer: t.peer, ConnID: id, Direction: types.DirInbound, Addr: t.addr})
	return nil
}

func (t *Transport) addLink(remote *Transport, id uint64, dir types.Direction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.links[remote.peer]
	if m == nil {
		m = make(map[uint64]*link)
		t.links[remote.peer] = m
	}
	m[id] = &link{id: id, dir: dir, peer: remote}
}

// removeLink 移除连接并投递 ConnectionClosed
func (t *Transport) removeLink(peer types.PeerID, id uint64) (*link, bool) {
	t.mu.Lock()
	m := t.links[peer]
	l, ok := m[id]
	if !ok {
		t.mu.Unlock()
		return nil, false
	}
	delete(m, id)
	remaining := len(m)
	if remaining == 0 {
		delete(t.links, peer)
	}
	t.mu.Unlock()

	t.push(types.NetworkEvent{Kind: types.EvtConnectionClosed, Peer: peer, ConnID: id, Direction: l.dir, Remaining: remaining})
	return l, true
}

// ClosePeer 关闭到该节点的所有连接（两端都收到 ConnectionClosed）
func (t *Transport) ClosePeer(peer types.PeerID) error {
	t.mu.Lock()
	ids := make([]uint64, 0, len(t.links[peer]))
	for id := range t.links[peer] {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		if l, ok := t.removeLink(peer, id); ok {
			l.peer.removeLink(t.peer, id)
		}
	}
	return nil
}

// FailListener 模拟监听器被销毁
func (t *Transport) FailListener(err error) {
	t.push(types.NetworkEvent{Kind: types.EvtListenerClosed, Addr: t.addr, Err: err})
}

// Close 关闭所有连接并从网络中移除
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	var peers []types.PeerID
	for p := range t.links {
		peers = append(peers, p)
	}
	t.mu.Unlock()

	for _, p := range peers {
		_ = t.ClosePeer(p)
	}
	t.net.remove(t)
	close(t.done)
	return nil
}

// ============================================================================
//                              发送记录
// ============================================================================

// Sent 返回发送记录副本
func (t *Transport) Sent() []SentFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SentFrame(nil), t.sent...)
}

// SentTo 返回发往某节点的帧数
func (t *Transport) SentTo(peer types.PeerID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, f := range t.sent {
		if f.To == peer {
			n++
		}
	}
	return n
}

// ResetSent 清空发送记录
func (t *Transport) ResetSent() {
	t.mu.Lock()
	t.sent = nil
	t.mu.Unlock()
}

// ============================================================================
//                              内部
// ============================================================================

func (t *Transport) accepts(proto types.ProtocolID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.protocols[proto]
	return ok
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// push 追加事件（不阻塞）
func (t *Transport) push(ev types.NetworkEvent) {
	t.mu.Lock()
	t.pending = append(t.pending, ev)
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// pump 按顺序把 pending 投递到 events
func (t *Transport) pump() {
	for {
		t.mu.Lock()
		if len(t.pending) == 0 {
			t.mu.Unlock()
			select {
			case <-t.wake:
				continue
			case <-t.done:
				return
			}
		}
		ev := t.pending[0]
		t.pending = t.pending[1:]
		t.mu.Unlock()

		select {
		case t.events <- ev:
		case <-t.done:
			return
		}
	}
}

func opposite(d types.Direction) types.Direction {
	switch d {
	case types.DirInbound:
		return types.DirOutbound
	case types.DirOutbound:
		return types.DirInbound
	default:
		return d
	}
}
