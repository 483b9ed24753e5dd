package behaviour

import (
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-floodnet/pkg/types"
)

type actionKind int

const (
	actSend actionKind = iota
	actDial
	actDisconnect
	actEmit
)

type action struct {
	kind  actionKind
	peer  types.PeerID
	proto types.ProtocolID
	data  []byte
	addrs []ma.Multiaddr
	event types.Event
}

// Context 处理器上下文
//
// 只在处理器执行期间有效。所有副作用请求排队，处理器返回后按登记顺序执行。
type Context struct {
	d       *Dispatcher
	owner   Behaviour
	now     time.Time
	actions []action
}

// LocalPeer 返回本地节点 ID
func (c *Context) LocalPeer() types.PeerID {
	return c.d.transport.LocalPeer()
}

// Now 返回本次迭代的时间
func (c *Context) Now() time.Time {
	return c.now
}

// Peers 返回连接视图
func (c *Context) Peers() PeerView {
	return c.d.registry
}

// ListenAddrs 返回本地监听地址
func (c *Context) ListenAddrs() []ma.Multiaddr {
	return c.d.transport.ListenAddrs()
}

// Send 请求向节点发送一个帧
func (c *Context) Send(peer types.PeerID, proto types.ProtocolID, data []byte) {
	c.actions = append(c.actions, action{kind: actSend, peer: peer, proto: proto, data: data})
}

// Dial 请求拨号
func (c *Context) Dial(peer types.PeerID, addrs []ma.Multiaddr) {
	c.actions = append(c.actions, action{kind: actDial, peer: peer, addrs: addrs})
}

// Disconnect 请求关闭到该节点的所有连接
func (c *Context) Disconnect(peer types.PeerID) {
	c.actions = append(c.actions, action{kind: actDisconnect, peer: peer})
}

// Emit 派发事件：注入其它子协议，并交给应用层
func (c *Context) Emit(ev types.Event) {
	c.actions = append(c.actions, action{kind: actEmit, event: ev})
}
