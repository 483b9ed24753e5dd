package yamux

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPair(t *testing.T) (*Muxer, *Muxer) {
	t.Helper()
	c, s := net.Pipe()

	client, err := NewMuxer(c, false, nil)
	require.NoError(t, err)
	server, err := NewMuxer(s, true, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestMuxer_Streams(t *testing.T) {
	client, server := newPair(t)
	assert.False(t, client.IsServer())
	assert.True(t, server.IsServer())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan net.Conn, 1)
	go func() {
		s, err := server.AcceptStream()
		if err == nil {
			accepted <- s
		}
	}()

	out, err := client.NewStream(ctx)
	require.NoError(t, err)
	_, err = out.Write([]byte("ping"))
	require.NoError(t, err)

	var in net.Conn
	select {
	case in = <-accepted:
	case <-ctx.Done():
		t.Fatal("等待入站流超时")
	}

	buf := make([]byte, 4)
	_, err = io.ReadFull(in, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestMuxer_Close(t *testing.T) {
	client, server := newPair(t)

	require.NoError(t, client.Close())
	assert.True(t, client.IsClosed())
	// 重复关闭
	assert.NoError(t, client.Close())

	_, err := client.NewStream(context.Background())
	assert.ErrorIs(t, err, ErrMuxerClosed)

	select {
	case <-server.CloseChan():
	case <-time.After(5 * time.Second):
		t.Fatal("对端会话未关闭")
	}
}
