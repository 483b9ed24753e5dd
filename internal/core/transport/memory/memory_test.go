package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-floodnet/pkg/types"
)

const proto = types.ProtocolID("/test/1.0.0")

func next(t *testing.T, tr *Transport) types.NetworkEvent {
	t.Helper()
	select {
	case ev := <-tr.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("等待事件超时")
		return types.NetworkEvent{}
	}
}

func newPair(t *testing.T) (*Network, *Transport, *Transport) {
	t.Helper()
	n := NewNetwork()
	a := n.NewTransport("A")
	b := n.NewTransport("B")
	require.NoError(t, a.Start(context.Background(), []types.ProtocolID{proto}))
	require.NoError(t, b.Start(context.Background(), []types.ProtocolID{proto}))
	assert.Equal(t, types.EvtNewListenAddr, next(t, a).Kind)
	assert.Equal(t, types.EvtNewListenAddr, next(t, b).Kind)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return n, a, b
}

func TestMemory_DialAndSend(t *testing.T) {
	_, a, b := newPair(t)

	// 按地址拨号
	a.Dial("", b.ListenAddrs())
	evA := next(t, a)
	evB := next(t, b)
	require.Equal(t, types.EvtConnectionOpened, evA.Kind)
	require.Equal(t, types.EvtConnectionOpened, evB.Kind)
	assert.Equal(t, types.PeerID("B"), evA.Peer)
	assert.Equal(t, types.DirInbound, evB.Direction)
	assert.Equal(t, evA.ConnID, evB.ConnID)

	require.NoError(t, a.Send("B", proto, []byte("hi")))
	ev := next(t, b)
	assert.Equal(t, types.EvtFrameReceived, ev.Kind)
	assert.Equal(t, types.PeerID("A"), ev.Peer)
	assert.Equal(t, []byte("hi"), ev.Data)
	assert.Equal(t, 1, a.SentTo("B"))

	// 未声明的协议不投递
	require.NoError(t, a.Send("B", "/other/1.0.0", []byte("x")))
	assert.Equal(t, 1, a.SentTo("B"))
}

func TestMemory_Disconnect(t *testing.T) {
	n, a, b := newPair(t)
	require.NoError(t, n.Connect("A", "B"))
	next(t, a)
	next(t, b)

	n.Disconnect("A", "B")
	evA := next(t, a)
	evB := next(t, b)
	assert.Equal(t, types.EvtConnectionClosed, evA.Kind)
	assert.Equal(t, types.EvtConnectionClosed, evB.Kind)
	assert.Equal(t, 0, evA.Remaining)

	assert.ErrorIs(t, a.Send("B", proto, []byte("x")), ErrNotConnected)
}

func TestMemory_DialFailed(t *testing.T) {
	_, a, _ := newPair(t)
	a.Dial("nobody", nil)
	ev := next(t, a)
	assert.Equal(t, types.EvtDialFailed, ev.Kind)
	assert.ErrorIs(t, ev.Err, ErrUnreachable)
}
