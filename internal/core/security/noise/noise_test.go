package noise

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-floodnet/internal/core/identity"
	"github.com/dep2p/go-floodnet/pkg/types"
)

// ============================================================================
//                              辅助函数
// ============================================================================

func newTransport(t *testing.T) (*Transport, *identity.Identity) {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)
	tr, err := New(id)
	require.NoError(t, err)
	return tr, id
}

type result struct {
	conn SecureConn
	err  error
}

// handshake 在 net.Pipe 两端并发握手
func handshake(t *testing.T, client, server *Transport, expect types.PeerID) (SecureConn, SecureConn, error, error) {
	t.Helper()
	c, s := net.Pipe()
	t.Cleanup(func() {
		c.Close()
		s.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		conn, err := server.SecureInbound(ctx, s)
		if err != nil {
			s.Close()
		}
		done <- result{conn, err}
	}()

	cc, cerr := client.SecureOutbound(ctx, c, expect)
	if cerr != nil {
		c.Close()
	}
	r := <-done
	return cc, r.conn, cerr, r.err
}

// ============================================================================
//                              握手测试
// ============================================================================

func TestHandshake(t *testing.T) {
	client, clientID := newTransport(t)
	server, serverID := newTransport(t)

	cc, sc, cerr, serr := handshake(t, client, server, serverID.PeerID())
	require.NoError(t, cerr)
	require.NoError(t, serr)

	assert.Equal(t, serverID.PeerID(), cc.RemotePeer())
	assert.Equal(t, clientID.PeerID(), sc.RemotePeer())
	assert.Equal(t, clientID.PeerID(), cc.LocalPeer())

	t.Run("双向加密通信", func(t *testing.T) {
		go func() {
			_, _ = cc.Write([]byte("hello"))
		}()
		buf := make([]byte, 5)
		_, err := io.ReadFull(sc, buf)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(buf))
	})

	t.Run("大于单条记录的数据分片", func(t *testing.T) {
		payload := bytes.Repeat([]byte{0xAB}, 3*maxPlaintext+7)
		go func() {
			_, _ = sc.Write(payload)
		}()
		buf := make([]byte, len(payload))
		_, err := io.ReadFull(cc, buf)
		require.NoError(t, err)
		assert.Equal(t, payload, buf)
	})
}

func TestHandshake_PeerIDMismatch(t *testing.T) {
	client, _ := newTransport(t)
	server, _ := newTransport(t)
	other, err := identity.Generate()
	require.NoError(t, err)

	_, _, cerr, _ := handshake(t, client, server, other.PeerID())
	assert.ErrorIs(t, cerr, ErrPeerIDMismatch)
}

func TestVerifyPayload(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)
	static, err := ed25519ToCurve25519Public(id.PublicKey())
	require.NoError(t, err)

	t.Run("有效签名", func(t *testing.T) {
		payload := encodePayload(id.PublicKey(), id.Sign(append([]byte(payloadSigPrefix), static...)))
		got, err := verifyPayload(payload, static)
		require.NoError(t, err)
		assert.Equal(t, id.PeerID(), got)
	})

	t.Run("签名不匹配静态密钥", func(t *testing.T) {
		payload := encodePayload(id.PublicKey(), id.Sign([]byte("something else")))
		_, err := verifyPayload(payload, static)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("无法解析", func(t *testing.T) {
		_, err := verifyPayload([]byte{0xff}, static)
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}

func TestNew_NilIdentity(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
