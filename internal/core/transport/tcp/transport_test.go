package tcp

import (
	"context"
	"io"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanDial(t *testing.T) {
	tr := NewTransport(time.Second)

	tests := []struct {
		addr string
		want bool
	}{
		{"/ip4/127.0.0.1/tcp/4001", true},
		{"/ip6/::1/tcp/4001", true},
		{"/ip4/127.0.0.1/udp/4001", false},
		{"/dns4/example.com/tcp/80", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.CanDial(ma.StringCast(tt.addr)))
		})
	}
}

func TestListenDial(t *testing.T) {
	tr := NewTransport(time.Second)

	l, err := tr.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	defer l.Close()

	// 系统分配的端口
	port, err := l.Multiaddr().ValueForProtocol(ma.P_TCP)
	require.NoError(t, err)
	assert.NotEqual(t, "0", port)

	accepted := make(chan []byte, 1)
	go func() {
		c, err := l.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 3)
		_, _ = io.ReadFull(c, buf)
		accepted <- buf
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := tr.Dial(ctx, l.Multiaddr())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("abc"))
	require.NoError(t, err)

	select {
	case got := <-accepted:
		assert.Equal(t, "abc", string(got))
	case <-ctx.Done():
		t.Fatal("超时")
	}
}

func TestDial_Unsupported(t *testing.T) {
	tr := NewTransport(time.Second)
	_, err := tr.Dial(context.Background(), ma.StringCast("/ip4/127.0.0.1/udp/1"))
	assert.ErrorIs(t, err, ErrUnsupportedAddr)
}

func TestExpandUnspecified(t *testing.T) {
	addrs := ExpandUnspecified(ma.StringCast("/ip4/0.0.0.0/tcp/4001"))
	require.NotEmpty(t, addrs)
	for _, a := range addrs {
		port, err := a.ValueForProtocol(ma.P_TCP)
		require.NoError(t, err)
		assert.Equal(t, "4001", port)
	}

	// 已指定地址原样返回
	specific := ma.StringCast("/ip4/127.0.0.1/tcp/4001")
	assert.Equal(t, []ma.Multiaddr{specific}, ExpandUnspecified(specific))
}
