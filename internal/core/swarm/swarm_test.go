package swarm

import (
	"bufio"
	"bytes"
	"context"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-floodnet/internal/core/identity"
	"github.com/dep2p/go-floodnet/pkg/types"
)

const testProto = types.ProtocolID("/test/1.0.0")

// ============================================================================
//                              辅助函数
// ============================================================================

func newTestSwarm(t *testing.T) *Swarm {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.ListenAddrs = []ma.Multiaddr{ma.StringCast("/ip4/127.0.0.1/tcp/0")}

	s, err := New(id, WithConfig(cfg))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background(), []types.ProtocolID{testProto}))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// waitEvent 等待指定种类的事件，跳过其它事件
func waitEvent(t *testing.T, s *Swarm, kind types.NetworkEventKind) types.NetworkEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-s.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("等待事件 %s 超时", kind)
		}
	}
}

func connect(t *testing.T, a, b *Swarm) {
	t.Helper()
	a.Dial(b.LocalPeer(), b.ListenAddrs())
	evA := waitEvent(t, a, types.EvtConnectionOpened)
	evB := waitEvent(t, b, types.EvtConnectionOpened)
	require.Equal(t, b.LocalPeer(), evA.Peer)
	require.Equal(t, a.LocalPeer(), evB.Peer)
	assert.Equal(t, types.DirOutbound, evA.Direction)
	assert.Equal(t, types.DirInbound, evB.Direction)
}

// ============================================================================
//                              测试
// ============================================================================

func TestSwarm_ListenAddr(t *testing.T) {
	s := newTestSwarm(t)

	ev := waitEvent(t, s, types.EvtNewListenAddr)
	require.NotNil(t, ev.Addr)

	addrs := s.ListenAddrs()
	require.Len(t, addrs, 1)
	assert.True(t, ev.Addr.Equal(addrs[0]))
}

func TestSwarm_SendReceive(t *testing.T) {
	a := newTestSwarm(t)
	b := newTestSwarm(t)
	connect(t, a, b)

	require.NoError(t, a.Send(b.LocalPeer(), testProto, []byte("one")))
	require.NoError(t, a.Send(b.LocalPeer(), testProto, []byte("two")))

	// 同一流上的帧保持顺序
	ev := waitEvent(t, b, types.EvtFrameReceived)
	assert.Equal(t, a.LocalPeer(), ev.Peer)
	assert.Equal(t, testProto, ev.Protocol)
	assert.Equal(t, []byte("one"), ev.Data)

	ev = waitEvent(t, b, types.EvtFrameReceived)
	assert.Equal(t, []byte("two"), ev.Data)
}

func TestSwarm_SendErrors(t *testing.T) {
	a := newTestSwarm(t)
	other, err := identity.Generate()
	require.NoError(t, err)

	err = a.Send(other.PeerID(), testProto, []byte("x"))
	assert.ErrorIs(t, err, ErrNotConnected)

	err = a.Send(other.PeerID(), testProto, make([]byte, a.config.MaxFrameSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestSwarm_ClosePeer(t *testing.T) {
	a := newTestSwarm(t)
	b := newTestSwarm(t)
	connect(t, a, b)

	require.NoError(t, a.ClosePeer(b.LocalPeer()))

	evA := waitEvent(t, a, types.EvtConnectionClosed)
	assert.Equal(t, b.LocalPeer(), evA.Peer)
	assert.Equal(t, 0, evA.Remaining)

	evB := waitEvent(t, b, types.EvtConnectionClosed)
	assert.Equal(t, a.LocalPeer(), evB.Peer)
	assert.Equal(t, 0, a.ConnsToPeer(b.LocalPeer()))
}

func TestSwarm_DialFailed(t *testing.T) {
	a := newTestSwarm(t)
	b := newTestSwarm(t)
	addrs := b.ListenAddrs()
	peer := b.LocalPeer()
	require.NoError(t, b.Close())

	a.Dial(peer, addrs)
	ev := waitEvent(t, a, types.EvtDialFailed)
	assert.Equal(t, peer, ev.Peer)
	assert.Error(t, ev.Err)
}

func TestSwarm_DialWrongPeer(t *testing.T) {
	a := newTestSwarm(t)
	b := newTestSwarm(t)
	impostor, err := identity.Generate()
	require.NoError(t, err)

	a.Dial(impostor.PeerID(), b.ListenAddrs())
	ev := waitEvent(t, a, types.EvtDialFailed)
	assert.Equal(t, impostor.PeerID(), ev.Peer)
}

func TestSwarm_DialByAddress(t *testing.T) {
	a := newTestSwarm(t)
	b := newTestSwarm(t)

	// 不带 /p2p 后缀，对端身份由握手确定
	a.Dial("", b.ListenAddrs())
	ev := waitEvent(t, a, types.EvtConnectionOpened)
	assert.Equal(t, b.LocalPeer(), ev.Peer)
}

func TestPeerIDAddr(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)

	full, err := WithPeerID(ma.StringCast("/ip4/127.0.0.1/tcp/4001"), id.PeerID())
	require.NoError(t, err)

	got, err := PeerIDFromAddr(full)
	require.NoError(t, err)
	assert.Equal(t, id.PeerID(), got)

	_, err = PeerIDFromAddr(ma.StringCast("/ip4/127.0.0.1/tcp/4001"))
	assert.Error(t, err)
}

func TestFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte("hello")))
	require.NoError(t, writeFrame(&buf, nil))

	r := bufio.NewReader(&buf)
	got, err := readFrame(r, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	got, err = readFrame(r, 16)
	require.NoError(t, err)
	assert.Empty(t, got)

	buf.Reset()
	require.NoError(t, writeFrame(&buf, make([]byte, 32)))
	_, err = readFrame(bufio.NewReader(&buf), 16)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
