package types

import (
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
)

// Direction 连接方向
type Direction int

const (
	// DirUnknown 未知
	DirUnknown Direction = iota
	// DirInbound 入站
	DirInbound
	// DirOutbound 出站
	DirOutbound
)

// String 返回方向名称
func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// NetworkEventKind 传输层事件种类
type NetworkEventKind int

const (
	// EvtConnectionOpened 连接已建立（完成加密与多路复用升级）
	EvtConnectionOpened NetworkEventKind = iota + 1
	// EvtConnectionClosed 连接已关闭
	EvtConnectionClosed
	// EvtFrameReceived 收到一个完整帧
	EvtFrameReceived
	// EvtDialFailed 拨号失败
	EvtDialFailed
	// EvtNewListenAddr 新的监听地址
	EvtNewListenAddr
	// EvtListenerClosed 监听器意外关闭（致命）
	EvtListenerClosed
)

// String 返回事件种类名称
func (k NetworkEventKind) String() string {
	switch k {
	case EvtConnectionOpened:
		return "connection_opened"
	case EvtConnectionClosed:
		return "connection_closed"
	case EvtFrameReceived:
		return "frame_received"
	case EvtDialFailed:
		return "dial_failed"
	case EvtNewListenAddr:
		return "new_listen_addr"
	case EvtListenerClosed:
		return "listener_closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// NetworkEvent 传输层投递给事件循环的事件
//
// 传输层的后台 goroutine 只通过该结构与事件循环通信。
type NetworkEvent struct {
	Kind NetworkEventKind

	// Peer 对端节点（发现报文等无认证来源时为空）
	Peer PeerID

	// ConnID 连接在本地的唯一编号
	ConnID uint64

	// Direction 连接方向
	Direction Direction

	// Addr 对端地址或监听地址
	Addr ma.Multiaddr

	// Protocol 帧所属协议
	Protocol ProtocolID

	// Data 帧内容
	Data []byte

	// Remaining ConnectionClosed 之后该节点剩余的连接数
	Remaining int

	// Err 失败原因（DialFailed / ListenerClosed / ConnectionClosed）
	Err error
}
