package behaviour

import (
	"context"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-floodnet/pkg/types"
)

// Behaviour 可组合的网络子协议
//
// 所有方法只在事件循环 goroutine 中调用。
type Behaviour interface {
	// Name 返回子协议名称（用于日志）
	Name() string

	// Protocols 返回该子协议处理的协议 ID
	Protocols() []types.ProtocolID

	// HandleConnection 处理连接事件
	//
	// 包括 ConnectionOpened、ConnectionClosed、DialFailed 和 NewListenAddr。
	// 调用前连接视图已更新。
	HandleConnection(c *Context, ev types.NetworkEvent)

	// HandleFrame 处理一个入站帧
	//
	// 返回错误表示帧无法解码，帧被丢弃，连接保持。
	HandleFrame(c *Context, from types.PeerID, proto types.ProtocolID, data []byte) error

	// InjectEvent 接收其它子协议派发的事件
	InjectEvent(c *Context, ev types.Event)

	// Poll 由内务计时器周期调用
	Poll(c *Context, now time.Time)
}

// Transport 分发器依赖的传输层
type Transport interface {
	// LocalPeer 返回本地节点 ID
	LocalPeer() types.PeerID

	// Start 开始监听；protocols 为入站流可协商的协议集合
	Start(ctx context.Context, protocols []types.ProtocolID) error

	// Events 返回网络事件通道
	Events() <-chan types.NetworkEvent

	// Send 向已连接节点发送一个帧
	Send(peer types.PeerID, proto types.ProtocolID, data []byte) error

	// Dial 异步拨号，结果以 ConnectionOpened 或 DialFailed 事件返回
	Dial(peer types.PeerID, addrs []ma.Multiaddr)

	// ClosePeer 关闭到该节点的所有连接
	ClosePeer(peer types.PeerID) error

	// ListenAddrs 返回监听地址
	ListenAddrs() []ma.Multiaddr

	// Close 关闭传输层
	Close() error
}

// EventSource 附加的网络事件源（如发现服务的信标）
type EventSource interface {
	Events() <-chan types.NetworkEvent
}

// PeerView 连接注册表的只读视图
type PeerView interface {
	// IsConnected 节点是否至少有一条存活连接
	IsConnected(peer types.PeerID) bool

	// NumConns 返回到该节点的连接数
	NumConns(peer types.PeerID) int

	// Connected 返回所有已连接节点
	Connected() []types.PeerID

	// Addrs 返回该节点各连接的远端地址
	Addrs(peer types.PeerID) []ma.Multiaddr
}
