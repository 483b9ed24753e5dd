package discovery

import (
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-floodnet/internal/core/behaviour"
	"github.com/dep2p/go-floodnet/internal/core/metrics"
	"github.com/dep2p/go-floodnet/internal/util/logger"
	"github.com/dep2p/go-floodnet/pkg/types"
)

var log = logger.Logger("discovery")

// Discovery 局域网发现子协议
type Discovery struct {
	local  types.PeerID
	config Config
	beacon Beacon
	table  *Table

	lastAnnounce time.Time

	// lastAddrs 最近一次宣告的地址，Close 发送离开通知时使用
	mu        sync.Mutex
	lastAddrs []ma.Multiaddr
	closed    bool

	metrics *metrics.Metrics
}

var _ behaviour.Behaviour = (*Discovery)(nil)

// New 创建发现子协议
func New(local types.PeerID, beacon Beacon, cfg Config, opts ...Option) (*Discovery, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Discovery{
		local:  local,
		config: cfg,
		beacon: beacon,
		table:  NewTable(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Name 实现 behaviour.Behaviour
func (d *Discovery) Name() string { return "discovery" }

// Protocols 实现 behaviour.Behaviour
func (d *Discovery) Protocols() []types.ProtocolID {
	return []types.ProtocolID{ProtocolID}
}

// Beacon 返回信标（作为分发器的附加事件源）
func (d *Discovery) Beacon() Beacon {
	return d.beacon
}

// Table 返回发现表，只能在事件循环中访问
func (d *Discovery) Table() *Table {
	return d.table
}

// ============================================================================
//                              接收
// ============================================================================

// HandleFrame 处理一个在场报文
func (d *Discovery) HandleFrame(c *behaviour.Context, _ types.PeerID, _ types.ProtocolID, data []byte) error {
	p, err := UnmarshalPresence(data)
	if err != nil {
		return err
	}
	if p.Peer == d.local {
		return nil
	}

	if p.Departing {
		if d.table.Remove(p.Peer) {
			log.Info("节点离开", "peer", p.Peer.ShortString())
			d.metrics.SetDiscoveredPeers(d.table.Len())
			c.Emit(types.PeerExpired{Peer: p.Peer})
		}
		return nil
	}

	addrs := dialable(p.Addrs)
	if d.table.Observe(p.Peer, addrs, c.Now()) {
		log.Info("发现节点", "peer", p.Peer.ShortString(), "addrs", addrs)
		d.metrics.SetDiscoveredPeers(d.table.Len())
		c.Emit(types.PeerDiscovered{Peer: p.Peer, Addrs: d.table.Addrs(p.Peer)})
	}
	return nil
}

// dialable 过滤掉未指定地址
func dialable(addrs []ma.Multiaddr) []ma.Multiaddr {
	out := make([]ma.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		if manet.IsIPUnspecified(a) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// ============================================================================
//                              广播与过期
// ============================================================================

// HandleConnection 新监听地址出现时立即广播
func (d *Discovery) HandleConnection(c *behaviour.Context, ev types.NetworkEvent) {
	if ev.Kind == types.EvtNewListenAddr {
		d.announce(c)
	}
}

// InjectEvent 实现 behaviour.Behaviour
func (d *Discovery) InjectEvent(*behaviour.Context, types.Event) {}

// Poll 到期广播并清理过期节点
func (d *Discovery) Poll(c *behaviour.Context, now time.Time) {
	if now.Sub(d.lastAnnounce) >= d.config.Interval {
		d.announce(c)
	}

	for _, p := range d.table.Expire(now, d.config.Expiry) {
		log.Info("节点过期", "peer", p.ShortString())
		c.Emit(types.PeerExpired{Peer: p})
	}
	d.metrics.SetDiscoveredPeers(d.table.Len())
}

func (d *Discovery) announce(c *behaviour.Context) {
	addrs := c.ListenAddrs()
	d.lastAnnounce = c.Now()

	d.mu.Lock()
	d.lastAddrs = addrs
	closed := d.closed
	d.mu.Unlock()
	if closed || len(addrs) == 0 {
		return
	}

	if err := d.beacon.Announce(&Presence{Peer: d.local, Addrs: addrs}); err != nil {
		log.Debug("广播在场记录失败", "err", err)
	}
}

// Close 发送离开通知并关闭信标
func (d *Discovery) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	addrs := d.lastAddrs
	d.mu.Unlock()

	if err := d.beacon.Announce(&Presence{Peer: d.local, Addrs: addrs, Departing: true}); err != nil {
		log.Debug("发送离开通知失败", "err", err)
	}
	return d.beacon.Close()
}
