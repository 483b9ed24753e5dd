package types

import (
	ma "github.com/multiformats/go-multiaddr"
)

// ============================================================================
//                              Event - 通知事件
// ============================================================================

// Event 行为之间以及向应用层传递的事件
//
// 由子协议通过 Context.Emit 产生，分发器先注入其它子协议，再交给应用层。
type Event interface {
	// Type 返回事件类型
	Type() string
}

// 事件类型常量
const (
	EventMessageReceived  = "message_received"
	EventPeerDiscovered   = "peer_discovered"
	EventPeerExpired      = "peer_expired"
	EventPeerSubscribed   = "peer_subscribed"
	EventPeerUnsubscribed = "peer_unsubscribed"
	EventNewListenAddr    = "new_listen_addr"
)

// MessageReceived 一条消息被投递到本地应用
type MessageReceived struct {
	Message *Message

	// From 传递该消息的直连节点（不一定是 Source）
	From PeerID
}

// Type 实现 Event
func (MessageReceived) Type() string { return EventMessageReceived }

// PeerDiscovered 本地网络上发现新节点
type PeerDiscovered struct {
	Peer  PeerID
	Addrs []ma.Multiaddr
}

// Type 实现 Event
func (PeerDiscovered) Type() string { return EventPeerDiscovered }

// PeerExpired 节点发现记录过期或节点主动离开
type PeerExpired struct {
	Peer PeerID
}

// Type 实现 Event
func (PeerExpired) Type() string { return EventPeerExpired }

// PeerSubscribed 远端节点宣告订阅主题
type PeerSubscribed struct {
	Peer  PeerID
	Topic Topic
}

// Type 实现 Event
func (PeerSubscribed) Type() string { return EventPeerSubscribed }

// PeerUnsubscribed 远端节点宣告取消订阅
type PeerUnsubscribed struct {
	Peer  PeerID
	Topic Topic
}

// Type 实现 Event
func (PeerUnsubscribed) Type() string { return EventPeerUnsubscribed }

// NewListenAddr 本地开始在新地址上监听
type NewListenAddr struct {
	Addr ma.Multiaddr
}

// Type 实现 Event
func (NewListenAddr) Type() string { return EventNewListenAddr }
