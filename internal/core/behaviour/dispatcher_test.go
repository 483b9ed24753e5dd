package behaviour

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-floodnet/internal/core/identity"
	"github.com/dep2p/go-floodnet/internal/core/metrics"
	"github.com/dep2p/go-floodnet/internal/core/transport/memory"
	"github.com/dep2p/go-floodnet/pkg/types"
)

const (
	protoA = types.ProtocolID("/test/a/1.0.0")
	protoB = types.ProtocolID("/test/b/1.0.0")
)

// ============================================================================
//                              测试子协议
// ============================================================================

type frame struct {
	from types.PeerID
	data string
}

type testEvent struct{ n int }

func (testEvent) Type() string { return "test" }

type recorder struct {
	name   string
	protos []types.ProtocolID

	mu       sync.Mutex
	conns    []types.NetworkEvent
	frames   []frame
	injected []types.Event
	polls    int
	closed   bool

	onPoll func(c *Context, now time.Time)
}

func newRecorder(name string, protos ...types.ProtocolID) *recorder {
	return &recorder{name: name, protos: protos}
}

func (r *recorder) Name() string                  { return r.name }
func (r *recorder) Protocols() []types.ProtocolID { return r.protos }

func (r *recorder) HandleConnection(_ *Context, ev types.NetworkEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns = append(r.conns, ev)
}

func (r *recorder) HandleFrame(_ *Context, from types.PeerID, _ types.ProtocolID, data []byte) error {
	if string(data) == "bad" {
		return errors.New("malformed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame{from: from, data: string(data)})
	return nil
}

func (r *recorder) InjectEvent(_ *Context, ev types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.injected = append(r.injected, ev)
}

func (r *recorder) Poll(c *Context, now time.Time) {
	r.mu.Lock()
	r.polls++
	fn := r.onPoll
	r.mu.Unlock()
	if fn != nil {
		fn(c, now)
	}
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) frameData() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.frames))
	for _, f := range r.frames {
		out = append(out, f.data)
	}
	return out
}

func (r *recorder) connKinds() []types.NetworkEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.NetworkEventKind, 0, len(r.conns))
	for _, ev := range r.conns {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) injectedEvents() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Event(nil), r.injected...)
}

// ============================================================================
//                              辅助函数
// ============================================================================

func newPeer(t *testing.T) types.PeerID {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)
	return id.PeerID()
}

type loop struct {
	events chan types.Event
	errc   chan error
}

// runLoop 在后台持续调用 Poll
func runLoop(t *testing.T, d *Dispatcher) *loop {
	t.Helper()
	l := &loop{events: make(chan types.Event, 64), errc: make(chan error, 1)}
	go func() {
		for {
			ev, err := d.Poll(context.Background())
			if err != nil {
				l.errc <- err
				return
			}
			l.events <- ev
		}
	}()
	t.Cleanup(func() { _ = d.Close() })
	return l
}

func (l *loop) next(t *testing.T, typ string) types.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-l.events:
			if ev.Type() == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("等待通知 %s 超时", typ)
			return nil
		}
	}
}

func (l *loop) err(t *testing.T) error {
	t.Helper()
	select {
	case err := <-l.errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("等待事件循环退出超时")
		return nil
	}
}

func startDispatcher(t *testing.T, tr Transport, bs ...Behaviour) *Dispatcher {
	t.Helper()
	d := New(tr)
	for _, b := range bs {
		require.NoError(t, d.Register(b))
	}
	require.NoError(t, d.Start(context.Background()))
	return d
}

// ============================================================================
//                              测试
// ============================================================================

func TestDispatcher_Register(t *testing.T) {
	n := memory.NewNetwork()
	d := New(n.NewTransport(newPeer(t)))

	assert.ErrorIs(t, d.Register(nil), ErrNilBehaviour)
	require.NoError(t, d.Register(newRecorder("a", protoA)))
	assert.ErrorIs(t, d.Register(newRecorder("dup", protoA)), ErrDuplicateProtocol)

	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Close() })

	assert.ErrorIs(t, d.Register(newRecorder("late", protoB)), ErrAlreadyStarted)
	assert.ErrorIs(t, d.Start(context.Background()), ErrAlreadyStarted)
}

func TestDispatcher_PollNotStarted(t *testing.T) {
	n := memory.NewNetwork()
	d := New(n.NewTransport(newPeer(t)))
	_, err := d.Poll(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestDispatcher_RoutesFrames(t *testing.T) {
	n := memory.NewNetwork()
	ta := n.NewTransport(newPeer(t))
	tb := n.NewTransport(newPeer(t))

	ra := newRecorder("a", protoA)
	rbA := newRecorder("b-a", protoA)
	rbB := newRecorder("b-b", protoB)

	da := startDispatcher(t, ta, ra)
	db := startDispatcher(t, tb, rbA, rbB)
	la := runLoop(t, da)
	runLoop(t, db)

	la.next(t, types.EventNewListenAddr)

	require.NoError(t, da.Submit(context.Background(), func(c *Context) {
		c.Dial(tb.LocalPeer(), tb.ListenAddrs())
	}))
	require.Eventually(t, func() bool {
		kinds := rbB.connKinds()
		return len(kinds) > 0 && kinds[0] == types.EvtConnectionOpened
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, da.Submit(context.Background(), func(c *Context) {
		c.Send(tb.LocalPeer(), protoA, []byte("bad"))
		c.Send(tb.LocalPeer(), protoA, []byte("hi"))
	}))

	require.Eventually(t, func() bool {
		return len(rbA.frameData()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"hi"}, rbA.frameData())
	assert.Empty(t, rbB.frameData())

	// 连接事件发给所有子协议
	assert.Contains(t, rbA.connKinds(), types.EvtConnectionOpened)
	assert.Contains(t, ra.connKinds(), types.EvtConnectionOpened)
}

func TestDispatcher_MalformedFrameMetrics(t *testing.T) {
	n := memory.NewNetwork()
	ta := n.NewTransport(newPeer(t))
	tb := n.NewTransport(newPeer(t))
	m := metrics.New()

	rb := newRecorder("b", protoA)
	da := startDispatcher(t, ta, newRecorder("a", protoA))
	db := New(tb, WithMetrics(m))
	require.NoError(t, db.Register(rb))
	require.NoError(t, db.Start(context.Background()))
	runLoop(t, da)
	runLoop(t, db)

	require.NoError(t, n.Connect(ta.LocalPeer(), tb.LocalPeer()))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ConnectedPeers) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, ta.Send(tb.LocalPeer(), protoA, []byte("bad")))
	require.NoError(t, ta.Send(tb.LocalPeer(), protoA, []byte("ok")))

	require.Eventually(t, func() bool {
		return len(rb.frameData()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesMalformed.WithLabelValues(string(protoA))))
}

func TestDispatcher_PeerView(t *testing.T) {
	n := memory.NewNetwork()
	ta := n.NewTransport(newPeer(t))
	tb := n.NewTransport(newPeer(t))
	ra := newRecorder("a", protoA)
	da := startDispatcher(t, ta, ra)
	db := startDispatcher(t, tb, newRecorder("b", protoA))
	runLoop(t, da)
	runLoop(t, db)

	require.NoError(t, n.Connect(ta.LocalPeer(), tb.LocalPeer()))
	require.Eventually(t, func() bool {
		return len(ra.connKinds()) > 0
	}, 5*time.Second, 10*time.Millisecond)

	type view struct {
		connected bool
		num       int
		peers     []types.PeerID
	}
	got := make(chan view, 1)
	require.NoError(t, da.Submit(context.Background(), func(c *Context) {
		p := c.Peers()
		got <- view{p.IsConnected(tb.LocalPeer()), p.NumConns(tb.LocalPeer()), p.Connected()}
	}))
	v := <-got
	assert.True(t, v.connected)
	assert.Equal(t, 1, v.num)
	assert.Equal(t, []types.PeerID{tb.LocalPeer()}, v.peers)

	require.NoError(t, da.Submit(context.Background(), func(c *Context) {
		c.Disconnect(tb.LocalPeer())
	}))
	require.Eventually(t, func() bool {
		kinds := ra.connKinds()
		return kinds[len(kinds)-1] == types.EvtConnectionClosed
	}, 5*time.Second, 10*time.Millisecond)

	ra.mu.Lock()
	last := ra.conns[len(ra.conns)-1]
	ra.mu.Unlock()
	assert.Equal(t, 0, last.Remaining)
}

func TestDispatcher_EmitInjectsOthers(t *testing.T) {
	n := memory.NewNetwork()
	mock := clock.NewMock()

	emitter := newRecorder("emitter", protoA)
	other := newRecorder("other", protoB)
	var once sync.Once
	emitter.onPoll = func(c *Context, _ time.Time) {
		once.Do(func() { c.Emit(testEvent{n: 1}) })
	}

	d := New(n.NewTransport(newPeer(t)), WithClock(mock), WithTickInterval(time.Second))
	require.NoError(t, d.Register(emitter))
	require.NoError(t, d.Register(other))
	require.NoError(t, d.Start(context.Background()))
	l := runLoop(t, d)

	mock.Add(time.Second)

	ev := l.next(t, "test")
	assert.Equal(t, testEvent{n: 1}, ev)
	assert.Equal(t, []types.Event{testEvent{n: 1}}, other.injectedEvents())
	assert.Empty(t, emitter.injectedEvents())

	// 本地命令派发的事件注入所有子协议
	require.NoError(t, d.Submit(context.Background(), func(c *Context) {
		c.Emit(testEvent{n: 2})
	}))
	l.next(t, "test")
	assert.Equal(t, []types.Event{testEvent{n: 2}}, emitter.injectedEvents())
}

func TestDispatcher_ListenerClosedIsFatal(t *testing.T) {
	n := memory.NewNetwork()
	ta := n.NewTransport(newPeer(t))
	d := startDispatcher(t, ta, newRecorder("a", protoA))
	l := runLoop(t, d)

	cause := errors.New("listener destroyed")
	ta.FailListener(cause)

	err := l.err(t)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.ErrorIs(t, err, cause)
}

func TestDispatcher_Close(t *testing.T) {
	n := memory.NewNetwork()
	r := newRecorder("a", protoA)
	d := startDispatcher(t, n.NewTransport(newPeer(t)), r)
	l := runLoop(t, d)

	require.NoError(t, d.Close())
	assert.ErrorIs(t, l.err(t), ErrClosed)
	assert.ErrorIs(t, d.Submit(context.Background(), func(*Context) {}), ErrClosed)

	r.mu.Lock()
	assert.True(t, r.closed)
	r.mu.Unlock()

	// 幂等
	require.NoError(t, d.Close())
}

func TestDispatcher_PollContextCancel(t *testing.T) {
	n := memory.NewNetwork()
	d := startDispatcher(t, n.NewTransport(newPeer(t)), newRecorder("a", protoA))
	t.Cleanup(func() { _ = d.Close() })

	// 先取走 NewListenAddr
	ev, err := d.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.EventNewListenAddr, ev.Type())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = d.Poll(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNotifyQueueDropsOldest(t *testing.T) {
	m := metrics.New()
	d := New(nil, WithNotifyQueueSize(2), WithMetrics(m))

	d.push(testEvent{n: 1})
	d.push(testEvent{n: 2})
	d.push(testEvent{n: 3})

	ev, ok := d.popPending()
	require.True(t, ok)
	assert.Equal(t, testEvent{n: 2}, ev)
	ev, ok = d.popPending()
	require.True(t, ok)
	assert.Equal(t, testEvent{n: 3}, ev)
	_, ok = d.popPending()
	assert.False(t, ok)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotifyDropped))
}
