package floodsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-floodnet/internal/core/behaviour"
	"github.com/dep2p/go-floodnet/internal/core/transport/memory"
	"github.com/dep2p/go-floodnet/pkg/types"
)

const chat = types.Topic("chat")

// ============================================================================
//                              测试节点
// ============================================================================

type node struct {
	peer   types.PeerID
	tr     *memory.Transport
	d      *behaviour.Dispatcher
	fs     *Floodsub
	events chan types.Event
}

func newNode(t *testing.T, n *memory.Network, topics ...types.Topic) *node {
	t.Helper()
	peer := testPeer(t)
	tr := n.NewTransport(peer)

	cfg := DefaultConfig()
	cfg.Topics = topics
	fs, err := New(peer, cfg)
	require.NoError(t, err)

	d := behaviour.New(tr)
	require.NoError(t, d.Register(fs))
	require.NoError(t, d.Start(context.Background()))

	nd := &node{peer: peer, tr: tr, d: d, fs: fs, events: make(chan types.Event, 256)}
	go func() {
		for {
			ev, err := d.Poll(context.Background())
			if err != nil {
				return
			}
			nd.events <- ev
		}
	}()
	t.Cleanup(func() { _ = d.Close() })
	return nd
}

// do 在事件循环中执行 fn 并等待其副作用完成
func (nd *node) do(t *testing.T, fn func(c *behaviour.Context)) {
	t.Helper()
	done := make(chan struct{})
	require.NoError(t, nd.d.Submit(context.Background(), func(c *behaviour.Context) {
		fn(c)
	}))
	require.NoError(t, nd.d.Submit(context.Background(), func(*behaviour.Context) {
		close(done)
	}))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("事件循环无响应")
	}
}

// query 在事件循环中求值
func (nd *node) query(t *testing.T, fn func(c *behaviour.Context) bool) bool {
	t.Helper()
	var ok bool
	nd.do(t, func(c *behaviour.Context) { ok = fn(c) })
	return ok
}

func (nd *node) view(t *testing.T, topic types.Topic) []types.PeerID {
	t.Helper()
	var out []types.PeerID
	nd.do(t, func(*behaviour.Context) { out = nd.fs.PartialView(topic) })
	return out
}

func (nd *node) waitInView(t *testing.T, topic types.Topic, peers ...types.PeerID) {
	t.Helper()
	require.Eventually(t, func() bool {
		return nd.query(t, func(*behaviour.Context) bool {
			for _, p := range peers {
				if _, ok := nd.fs.view[topic][p]; !ok {
					return false
				}
			}
			return true
		})
	}, 5*time.Second, 10*time.Millisecond)
}

// messages 收集 wait 时间内投递的消息
func (nd *node) messages(wait time.Duration) []types.MessageReceived {
	var out []types.MessageReceived
	timeout := time.After(wait)
	for {
		select {
		case ev := <-nd.events:
			if m, ok := ev.(types.MessageReceived); ok {
				out = append(out, m)
			}
		case <-timeout:
			return out
		}
	}
}

// nextMessage 等待下一条投递的消息
func (nd *node) nextMessage(t *testing.T) types.MessageReceived {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-nd.events:
			if m, ok := ev.(types.MessageReceived); ok {
				return m
			}
		case <-timeout:
			t.Fatal("等待消息超时")
			return types.MessageReceived{}
		}
	}
}

func dial(t *testing.T, from, to *node) {
	t.Helper()
	from.do(t, func(c *behaviour.Context) {
		c.Dial(to.peer, to.tr.ListenAddrs())
	})
	require.Eventually(t, func() bool {
		return to.query(t, func(c *behaviour.Context) bool { return c.Peers().IsConnected(from.peer) })
	}, 5*time.Second, 10*time.Millisecond)
}

// publishFrames 统计发往 peer 的消息帧
func publishFrames(t *testing.T, tr *memory.Transport, peer types.PeerID) int {
	t.Helper()
	n := 0
	for _, f := range tr.Sent() {
		if f.To != peer || f.Protocol != ProtocolID {
			continue
		}
		rpc, err := UnmarshalRPC(f.Data)
		require.NoError(t, err)
		n += len(rpc.Publish)
	}
	return n
}

// ============================================================================
//                              测试
// ============================================================================

func TestFloodsub_ThreeNodeScenario(t *testing.T) {
	n := memory.NewNetwork()
	a := newNode(t, n, chat)
	b := newNode(t, n, chat)
	c := newNode(t, n, chat)

	dial(t, a, b)
	dial(t, a, c)
	dial(t, b, c)
	a.waitInView(t, chat, b.peer, c.peer)
	b.waitInView(t, chat, a.peer, c.peer)
	c.waitInView(t, chat, a.peer, b.peer)

	a.do(t, func(ctx *behaviour.Context) { a.fs.Publish(ctx, chat, []byte("hello")) })

	for _, nd := range []*node{b, c} {
		m := nd.nextMessage(t)
		assert.Equal(t, a.peer, m.Message.Source)
		assert.Equal(t, uint64(1), m.Message.Seqno)
		assert.Equal(t, []byte("hello"), m.Message.Data)
	}

	a.do(t, func(ctx *behaviour.Context) { a.fs.Publish(ctx, chat, []byte("world")) })

	for _, nd := range []*node{b, c} {
		got := nd.messages(300 * time.Millisecond)
		require.Len(t, got, 1)
		assert.Equal(t, []byte("world"), got[0].Message.Data)
		assert.Equal(t, uint64(2), got[0].Message.Seqno)
	}

	// 发布者不会收到自己的消息
	assert.Empty(t, a.messages(100*time.Millisecond))
}

func TestFloodsub_TransitiveDelivery(t *testing.T) {
	n := memory.NewNetwork()
	a := newNode(t, n, chat)
	relay := newNode(t, n)
	c := newNode(t, n, chat)
	other := newNode(t, n, "news")

	dial(t, a, relay)
	dial(t, c, relay)
	dial(t, other, relay)
	a.waitInView(t, chat, relay.peer)
	relay.waitInView(t, chat, c.peer)

	a.do(t, func(ctx *behaviour.Context) { a.fs.Publish(ctx, chat, []byte("hi")) })

	m := c.nextMessage(t)
	assert.Equal(t, a.peer, m.Message.Source)
	assert.Equal(t, relay.peer, m.From)

	// 中继节点未订阅，不投递；未订阅该主题的节点收不到
	assert.Empty(t, relay.messages(200*time.Millisecond))
	assert.Empty(t, other.messages(100*time.Millisecond))
	relay.do(t, func(*behaviour.Context) {})
	assert.Zero(t, publishFrames(t, relay.tr, other.peer))
}

func TestFloodsub_DuplicateDroppedAndRelayedOnce(t *testing.T) {
	n := memory.NewNetwork()
	nd := newNode(t, n, chat)

	// x 和 y 为裸传输，直接收发帧
	x := n.NewTransport(testPeer(t))
	y := n.NewTransport(testPeer(t))
	require.NoError(t, x.Start(context.Background(), []types.ProtocolID{ProtocolID}))
	require.NoError(t, y.Start(context.Background(), []types.ProtocolID{ProtocolID}))
	t.Cleanup(func() { _ = x.Close(); _ = y.Close() })

	require.NoError(t, n.Connect(x.LocalPeer(), nd.peer))
	require.NoError(t, n.Connect(y.LocalPeer(), nd.peer))

	sub := (&RPC{Subscriptions: []SubOpts{{Subscribe: true, Topic: chat}}}).Marshal()
	require.NoError(t, x.Send(nd.peer, ProtocolID, sub))
	require.NoError(t, y.Send(nd.peer, ProtocolID, sub))
	nd.waitInView(t, chat, x.LocalPeer(), y.LocalPeer())

	msg := &types.Message{Source: x.LocalPeer(), Seqno: 1, Topics: []types.Topic{chat}, Data: []byte("dup")}
	frame := (&RPC{Publish: []*types.Message{msg}}).Marshal()
	require.NoError(t, x.Send(nd.peer, ProtocolID, frame))
	require.NoError(t, x.Send(nd.peer, ProtocolID, frame))
	require.NoError(t, y.Send(nd.peer, ProtocolID, frame))

	got := nd.messages(300 * time.Millisecond)
	require.Len(t, got, 1)
	assert.Equal(t, x.LocalPeer(), got[0].From)

	nd.do(t, func(*behaviour.Context) {})
	assert.Equal(t, 1, publishFrames(t, nd.tr, y.LocalPeer()))
	// 不回发给来源
	assert.Zero(t, publishFrames(t, nd.tr, x.LocalPeer()))
}

func TestFloodsub_DisconnectPrunesView(t *testing.T) {
	n := memory.NewNetwork()
	a := newNode(t, n, chat)
	b := newNode(t, n, chat)

	dial(t, a, b)
	a.waitInView(t, chat, b.peer)

	require.NoError(t, b.d.Close())

	require.Eventually(t, func() bool {
		return a.query(t, func(*behaviour.Context) bool { return !a.fs.InPartialView(b.peer) })
	}, 5*time.Second, 10*time.Millisecond)

	a.tr.ResetSent()
	a.do(t, func(ctx *behaviour.Context) { a.fs.Publish(ctx, chat, []byte("after")) })
	a.do(t, func(*behaviour.Context) {})
	assert.Zero(t, a.tr.SentTo(b.peer))
}

func TestFloodsub_SubscribeUnsubscribe(t *testing.T) {
	n := memory.NewNetwork()
	a := newNode(t, n)
	b := newNode(t, n)
	dial(t, a, b)

	var first, second bool
	a.do(t, func(c *behaviour.Context) {
		first = a.fs.Subscribe(c, chat)
		second = a.fs.Subscribe(c, chat)
	})
	assert.True(t, first)
	assert.False(t, second)

	// a 主动拨号 b，b 是泛洪目标
	assert.Equal(t, []types.PeerID{b.peer}, a.view(t, chat))
	b.waitInView(t, chat, a.peer)

	a.do(t, func(c *behaviour.Context) {
		first = a.fs.Unsubscribe(c, chat)
		second = a.fs.Unsubscribe(c, "unknown")
	})
	assert.True(t, first)
	assert.False(t, second)

	require.Eventually(t, func() bool {
		return len(b.view(t, chat)) == 0
	}, 5*time.Second, 10*time.Millisecond)

	var subscribed, unsubscribed bool
	timeout := time.After(2 * time.Second)
	for !subscribed || !unsubscribed {
		select {
		case ev := <-b.events:
			switch e := ev.(type) {
			case types.PeerSubscribed:
				subscribed = e.Peer == a.peer && e.Topic == chat
			case types.PeerUnsubscribed:
				unsubscribed = e.Peer == a.peer && e.Topic == chat
			}
		case <-timeout:
			t.Fatal("未收到订阅通知")
		}
	}
}

func TestFloodsub_PublishWithoutPeers(t *testing.T) {
	n := memory.NewNetwork()
	a := newNode(t, n, chat)

	var msgs []*types.Message
	a.do(t, func(c *behaviour.Context) {
		msgs = append(msgs, a.fs.Publish(c, chat, []byte("one")))
		msgs = append(msgs, a.fs.PublishMany(c, []types.Topic{chat, "news"}, []byte("two")))
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, uint64(1), msgs[0].Seqno)
	assert.Equal(t, uint64(2), msgs[1].Seqno)
	assert.Equal(t, []types.Topic{chat, "news"}, msgs[1].Topics)
	assert.Empty(t, a.tr.Sent())
}

func TestFloodsub_DiscoveryEvents(t *testing.T) {
	n := memory.NewNetwork()
	a := newNode(t, n, chat)
	b := newNode(t, n, chat)

	// 发现事件触发拨号，连接后加入部分视图
	a.do(t, func(c *behaviour.Context) {
		c.Emit(types.PeerDiscovered{Peer: b.peer, Addrs: b.tr.ListenAddrs()})
	})
	a.waitInView(t, chat, b.peer)
	assert.True(t, a.query(t, func(*behaviour.Context) bool { return a.fs.IsTarget(b.peer) }))

	// 等 b 的订阅宣告到达，避免其在过期之后重新加入部分视图
	timeout := time.After(5 * time.Second)
	for waiting := true; waiting; {
		select {
		case ev := <-a.events:
			if e, ok := ev.(types.PeerSubscribed); ok && e.Peer == b.peer {
				waiting = false
			}
		case <-timeout:
			t.Fatal("未收到订阅宣告")
		}
	}

	a.do(t, func(c *behaviour.Context) {
		c.Emit(types.PeerExpired{Peer: b.peer})
	})
	assert.True(t, a.query(t, func(*behaviour.Context) bool {
		return !a.fs.InPartialView(b.peer) && !a.fs.IsTarget(b.peer)
	}))
}

func TestFloodsub_RedialTargetAfterClose(t *testing.T) {
	n := memory.NewNetwork()
	a := newNode(t, n, chat)
	b := newNode(t, n, chat)

	dial(t, a, b)
	a.waitInView(t, chat, b.peer)

	// 连接断开而 b 仍在线，a 重新拨号
	n.Disconnect(a.peer, b.peer)
	require.Eventually(t, func() bool {
		return a.query(t, func(c *behaviour.Context) bool {
			return c.Peers().IsConnected(b.peer) && a.fs.InPartialView(b.peer)
		})
	}, 5*time.Second, 10*time.Millisecond)
}

func TestFloodsub_MalformedFrame(t *testing.T) {
	fs, err := New(testPeer(t), DefaultConfig())
	require.NoError(t, err)
	err = fs.HandleFrame(nil, testPeer(t), ProtocolID, []byte{0xff})
	assert.ErrorIs(t, err, ErrMalformedRPC)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.SeenCacheSize = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.Topics = []types.Topic{""}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	_, err := New(testPeer(t), bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
