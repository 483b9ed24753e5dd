package floodsub

import (
	"sort"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-floodnet/internal/core/behaviour"
	"github.com/dep2p/go-floodnet/internal/core/metrics"
	"github.com/dep2p/go-floodnet/internal/util/logger"
	"github.com/dep2p/go-floodnet/pkg/types"
)

var log = logger.Logger("floodsub")

// Floodsub 泛洪发布订阅子协议
type Floodsub struct {
	local types.PeerID

	// subscribed 本地订阅
	subscribed map[types.Topic]struct{}

	// targets 泛洪目标及其已知地址
	targets map[types.PeerID][]ma.Multiaddr

	// view 部分视图
	view map[types.Topic]map[types.PeerID]struct{}

	seqno   uint64
	seen    *seenCache
	metrics *metrics.Metrics
}

var _ behaviour.Behaviour = (*Floodsub)(nil)

// New 创建泛洪子协议
func New(local types.PeerID, cfg Config, opts ...Option) (*Floodsub, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := &Floodsub{
		local:      local,
		subscribed: make(map[types.Topic]struct{}),
		targets:    make(map[types.PeerID][]ma.Multiaddr),
		view:       make(map[types.Topic]map[types.PeerID]struct{}),
		seen:       newSeenCache(cfg.SeenCacheSize, cfg.SeenCacheTTL),
	}
	for _, opt := range opts {
		opt(f)
	}
	for _, t := range cfg.Topics {
		f.subscribed[t] = struct{}{}
	}
	f.metrics.SetSubscriptions(len(f.subscribed))
	return f, nil
}

// Name 实现 behaviour.Behaviour
func (f *Floodsub) Name() string { return "floodsub" }

// Protocols 实现 behaviour.Behaviour
func (f *Floodsub) Protocols() []types.ProtocolID {
	return []types.ProtocolID{ProtocolID}
}

// ============================================================================
//                              订阅
// ============================================================================

// Subscribe 订阅主题
//
// 已连接的泛洪目标加入该主题的部分视图，并向所有已连接节点宣告。
// 重复订阅返回 false。
func (f *Floodsub) Subscribe(c *behaviour.Context, topic types.Topic) bool {
	if _, ok := f.subscribed[topic]; ok {
		return false
	}
	f.subscribed[topic] = struct{}{}
	f.metrics.SetSubscriptions(len(f.subscribed))

	peers := c.Peers()
	for p := range f.targets {
		if peers.IsConnected(p) {
			f.addToView(topic, p)
		}
	}
	f.announce(c, peers.Connected(), SubOpts{Subscribe: true, Topic: topic, Peer: f.local})
	log.Debug("订阅主题", "topic", topic)
	return true
}

// Unsubscribe 取消订阅，未订阅时返回 false
func (f *Floodsub) Unsubscribe(c *behaviour.Context, topic types.Topic) bool {
	if _, ok := f.subscribed[topic]; !ok {
		return false
	}
	delete(f.subscribed, topic)
	f.metrics.SetSubscriptions(len(f.subscribed))

	f.announce(c, c.Peers().Connected(), SubOpts{Subscribe: false, Topic: topic, Peer: f.local})
	log.Debug("取消订阅", "topic", topic)
	return true
}

// Subscribed 返回本地订阅的主题（有序）
func (f *Floodsub) Subscribed() []types.Topic {
	out := make([]types.Topic, 0, len(f.subscribed))
	for t := range f.subscribed {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsSubscribed 是否订阅了主题
func (f *Floodsub) IsSubscribed(topic types.Topic) bool {
	_, ok := f.subscribed[topic]
	return ok
}

func (f *Floodsub) announce(c *behaviour.Context, peers []types.PeerID, subs ...SubOpts) {
	if len(subs) == 0 || len(peers) == 0 {
		return
	}
	data := (&RPC{Subscriptions: subs}).Marshal()
	for _, p := range peers {
		c.Send(p, ProtocolID, data)
	}
}

// localSubOpts 本地全部订阅的宣告
func (f *Floodsub) localSubOpts() []SubOpts {
	topics := f.Subscribed()
	subs := make([]SubOpts, 0, len(topics))
	for _, t := range topics {
		subs = append(subs, SubOpts{Subscribe: true, Topic: t, Peer: f.local})
	}
	return subs
}

// ============================================================================
//                              发布
// ============================================================================

// Publish 向单个主题发布消息
func (f *Floodsub) Publish(c *behaviour.Context, topic types.Topic, data []byte) *types.Message {
	return f.PublishMany(c, []types.Topic{topic}, data)
}

// PublishMany 向多个主题发布同一条消息
//
// 序列号递增后写入已见缓存，发往各主题部分视图的并集。
// 没有可达节点时不产生任何发送，也不视为错误。
func (f *Floodsub) PublishMany(c *behaviour.Context, topics []types.Topic, data []byte) *types.Message {
	f.seqno++
	msg := &types.Message{
		Source: f.local,
		Seqno:  f.seqno,
		Topics: append([]types.Topic(nil), topics...),
		Data:   data,
	}
	f.seen.add(msg.ID())
	f.metrics.Published()

	n := f.flood(c, msg, "")
	log.Debug("发布消息", "topics", topics, "seqno", msg.Seqno, "peers", n)
	return msg
}

// flood 把消息发给各主题部分视图的并集，排除 except
func (f *Floodsub) flood(c *behaviour.Context, msg *types.Message, except types.PeerID) int {
	peers := c.Peers()
	recipients := make(map[types.PeerID]struct{})
	for _, t := range msg.Topics {
		for p := range f.view[t] {
			if p == except || p == f.local || !peers.IsConnected(p) {
				continue
			}
			recipients[p] = struct{}{}
		}
	}
	if len(recipients) == 0 {
		return 0
	}

	data := (&RPC{Publish: []*types.Message{msg}}).Marshal()
	for _, p := range sortedPeers(recipients) {
		c.Send(p, ProtocolID, data)
	}
	return len(recipients)
}

// ============================================================================
//                              入站处理
// ============================================================================

// HandleFrame 实现 behaviour.Behaviour
func (f *Floodsub) HandleFrame(c *behaviour.Context, from types.PeerID, _ types.ProtocolID, data []byte) error {
	rpc, err := UnmarshalRPC(data)
	if err != nil {
		return err
	}

	for _, sub := range rpc.Subscriptions {
		f.handleSubscription(c, from, sub)
	}
	for _, msg := range rpc.Publish {
		f.handleMessage(c, from, msg)
	}
	return nil
}

func (f *Floodsub) handleSubscription(c *behaviour.Context, from types.PeerID, sub SubOpts) {
	if sub.Subscribe {
		if !c.Peers().IsConnected(from) {
			return
		}
		if f.addToView(sub.Topic, from) {
			log.Debug("节点订阅主题", "peer", from.ShortString(), "topic", sub.Topic)
		}
		c.Emit(types.PeerSubscribed{Peer: from, Topic: sub.Topic})
		return
	}

	f.removeFromView(sub.Topic, from)
	log.Debug("节点取消订阅", "peer", from.ShortString(), "topic", sub.Topic)
	c.Emit(types.PeerUnsubscribed{Peer: from, Topic: sub.Topic})
}

func (f *Floodsub) handleMessage(c *behaviour.Context, from types.PeerID, msg *types.Message) {
	if !f.seen.add(msg.ID()) {
		f.metrics.Duplicate()
		return
	}

	if f.subscribedToAny(msg) {
		f.metrics.Delivered()
		c.Emit(types.MessageReceived{Message: msg, From: from})
	}

	n := f.flood(c, msg, from)
	f.metrics.Relayed(n)
}

func (f *Floodsub) subscribedToAny(msg *types.Message) bool {
	for _, t := range msg.Topics {
		if _, ok := f.subscribed[t]; ok {
			return true
		}
	}
	return false
}

// ============================================================================
//                              连接与发现事件
// ============================================================================

// HandleConnection 实现 behaviour.Behaviour
func (f *Floodsub) HandleConnection(c *behaviour.Context, ev types.NetworkEvent) {
	switch ev.Kind {
	case types.EvtConnectionOpened:
		if c.Peers().NumConns(ev.Peer) != 1 {
			return
		}
		// 主动拨出的连接视为泛洪目标
		if ev.Direction == types.DirOutbound {
			if _, ok := f.targets[ev.Peer]; !ok {
				f.targets[ev.Peer] = addrList(ev.Addr)
			}
		}
		if _, ok := f.targets[ev.Peer]; ok {
			for t := range f.subscribed {
				f.addToView(t, ev.Peer)
			}
		}
		f.announce(c, []types.PeerID{ev.Peer}, f.localSubOpts()...)

	case types.EvtConnectionClosed:
		if ev.Remaining > 0 {
			return
		}
		f.removePeer(ev.Peer)
		if addrs, ok := f.targets[ev.Peer]; ok {
			log.Debug("重新拨号泛洪目标", "peer", ev.Peer.ShortString())
			c.Dial(ev.Peer, addrs)
		}

	case types.EvtDialFailed:
		if _, ok := f.targets[ev.Peer]; ok {
			log.Debug("拨号泛洪目标失败", "peer", ev.Peer.ShortString(), "err", ev.Err)
		}
	}
}

// InjectEvent 实现 behaviour.Behaviour
func (f *Floodsub) InjectEvent(c *behaviour.Context, ev types.Event) {
	switch e := ev.(type) {
	case types.PeerDiscovered:
		f.AddTarget(c, e.Peer, e.Addrs)
	case types.PeerExpired:
		f.RemoveTarget(e.Peer)
	}
}

// Poll 实现 behaviour.Behaviour
func (f *Floodsub) Poll(_ *behaviour.Context, _ time.Time) {
	f.metrics.SetPartialViewSize(f.viewPeerCount())
}

// AddTarget 把节点加入泛洪目标
//
// 已连接时立即加入本地订阅主题的部分视图，否则发起拨号。
func (f *Floodsub) AddTarget(c *behaviour.Context, peer types.PeerID, addrs []ma.Multiaddr) {
	if peer == f.local || peer.IsEmpty() {
		return
	}
	if len(addrs) > 0 || f.targets[peer] == nil {
		f.targets[peer] = append([]ma.Multiaddr(nil), addrs...)
	}

	if c.Peers().IsConnected(peer) {
		for t := range f.subscribed {
			f.addToView(t, peer)
		}
		return
	}
	c.Dial(peer, addrs)
}

// RemoveTarget 移除泛洪目标并从部分视图中删除
func (f *Floodsub) RemoveTarget(peer types.PeerID) {
	delete(f.targets, peer)
	f.removePeer(peer)
}

// IsTarget 是否为泛洪目标
func (f *Floodsub) IsTarget(peer types.PeerID) bool {
	_, ok := f.targets[peer]
	return ok
}

// ============================================================================
//                              部分视图
// ============================================================================

// PartialView 返回主题的部分视图（有序）
func (f *Floodsub) PartialView(topic types.Topic) []types.PeerID {
	return sortedPeers(f.view[topic])
}

// InPartialView 节点是否出现在任一主题的部分视图中
func (f *Floodsub) InPartialView(peer types.PeerID) bool {
	for _, peers := range f.view {
		if _, ok := peers[peer]; ok {
			return true
		}
	}
	return false
}

func (f *Floodsub) addToView(topic types.Topic, peer types.PeerID) bool {
	peers := f.view[topic]
	if peers == nil {
		peers = make(map[types.PeerID]struct{})
		f.view[topic] = peers
	}
	if _, ok := peers[peer]; ok {
		return false
	}
	peers[peer] = struct{}{}
	return true
}

func (f *Floodsub) removeFromView(topic types.Topic, peer types.PeerID) {
	peers := f.view[topic]
	delete(peers, peer)
	if len(peers) == 0 {
		delete(f.view, topic)
	}
}

// removePeer 从所有主题的部分视图中移除节点，已见缓存不变
func (f *Floodsub) removePeer(peer types.PeerID) {
	for t := range f.view {
		f.removeFromView(t, peer)
	}
}

func (f *Floodsub) viewPeerCount() int {
	all := make(map[types.PeerID]struct{})
	for _, peers := range f.view {
		for p := range peers {
			all[p] = struct{}{}
		}
	}
	return len(all)
}

func sortedPeers(set map[types.PeerID]struct{}) []types.PeerID {
	out := make([]types.PeerID, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func addrList(a ma.Multiaddr) []ma.Multiaddr {
	if a == nil {
		return nil
	}
	return []ma.Multiaddr{a}
}
