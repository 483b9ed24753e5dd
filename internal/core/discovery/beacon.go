package discovery

import (
	"sync"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-floodnet/pkg/types"
)

// beaconBuffer 信标事件通道缓冲
const beaconBuffer = 64

// Beacon 在场记录的广播介质
//
// 收到的报文以 FrameReceived 事件（Protocol 为 ProtocolID）投递，
// 报文可能来自本机自身，由 Discovery 过滤。
type Beacon interface {
	// Events 返回收到的报文
	Events() <-chan types.NetworkEvent

	// Announce 广播一条在场记录
	Announce(p *Presence) error

	// Close 关闭信标
	Close() error
}

func packetEvent(data []byte, from ma.Multiaddr) types.NetworkEvent {
	return types.NetworkEvent{
		Kind:     types.EvtFrameReceived,
		Protocol: ProtocolID,
		Addr:     from,
		Data:     data,
	}
}

// ============================================================================
//                              进程内信标
// ============================================================================

// Hub 进程内广播域，连接到同一 Hub 的信标互相可见
type Hub struct {
	mu      sync.Mutex
	beacons map[*HubBeacon]struct{}
}

// NewHub 创建广播域
func NewHub() *Hub {
	return &Hub{beacons: make(map[*HubBeacon]struct{})}
}

// Beacon 创建接入该广播域的信标
func (h *Hub) Beacon() *HubBeacon {
	b := &HubBeacon{hub: h, events: make(chan types.NetworkEvent, beaconBuffer)}
	h.mu.Lock()
	h.beacons[b] = struct{}{}
	h.mu.Unlock()
	return b
}

// HubBeacon 进程内信标
type HubBeacon struct {
	hub    *Hub
	events chan types.NetworkEvent

	mu     sync.Mutex
	closed bool
}

var _ Beacon = (*HubBeacon)(nil)

// Events 实现 Beacon
func (b *HubBeacon) Events() <-chan types.NetworkEvent {
	return b.events
}

// Announce 广播给广播域内所有信标（包括自身）；接收方缓冲满时丢弃
func (b *HubBeacon) Announce(p *Presence) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBeaconClosed
	}

	data := p.Marshal()
	b.hub.mu.Lock()
	targets := make([]*HubBeacon, 0, len(b.hub.beacons))
	for t := range b.hub.beacons {
		targets = append(targets, t)
	}
	b.hub.mu.Unlock()

	for _, t := range targets {
		t.deliver(append([]byte(nil), data...))
	}
	return nil
}

func (b *HubBeacon) deliver(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.events <- packetEvent(data, nil):
	default:
	}
}

// Close 实现 Beacon
func (b *HubBeacon) Close() error {
	b.hub.mu.Lock()
	delete(b.hub.beacons, b)
	b.hub.mu.Unlock()

	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}
