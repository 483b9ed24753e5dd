package types

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPeerID(t *testing.T) PeerID {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	id, err := PeerIDFromPublicKey(pub)
	require.NoError(t, err)
	return id
}

func TestPeerIDFromPublicKey(t *testing.T) {
	t.Run("确定性派生", func(t *testing.T) {
		pub, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)

		a, err := PeerIDFromPublicKey(pub)
		require.NoError(t, err)
		b, err := PeerIDFromPublicKey(pub)
		require.NoError(t, err)

		assert.Equal(t, a, b)
		assert.False(t, a.IsEmpty())
	})

	t.Run("不同公钥不同 ID", func(t *testing.T) {
		assert.NotEqual(t, newTestPeerID(t), newTestPeerID(t))
	})

	t.Run("multihash 前缀", func(t *testing.T) {
		raw := newTestPeerID(t).Bytes()
		require.Len(t, raw, 34)
		assert.Equal(t, byte(0x12), raw[0])
		assert.Equal(t, byte(0x20), raw[1])
	})

	t.Run("公钥长度错误", func(t *testing.T) {
		_, err := PeerIDFromPublicKey(make([]byte, 10))
		assert.ErrorIs(t, err, ErrInvalidPeerID)
	})
}

func TestParsePeerID(t *testing.T) {
	id := newTestPeerID(t)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"有效", id.String(), false},
		{"空串", "", true},
		{"非 base58", "0OIl", true},
		{"长度错误", "12D3KooWTest", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeerID(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPeerID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, got)
		})
	}
}

func TestPeerIDBytesRoundTrip(t *testing.T) {
	id := newTestPeerID(t)

	got, err := PeerIDFromBytes(id.Bytes())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = PeerIDFromBytes([]byte{0x12, 0x20, 0x01})
	assert.ErrorIs(t, err, ErrInvalidPeerID)
}

func TestPeerIDShortString(t *testing.T) {
	// 长 ID：前8...后3
	id := PeerID("12D3KooWTestLongPeerID")
	assert.Equal(t, "12D3KooW...rID", id.ShortString())

	// 短 ID：原样返回
	assert.Equal(t, "12D3KooW", PeerID("12D3KooW").ShortString())
}

func TestMessageID(t *testing.T) {
	src := newTestPeerID(t)

	a := &Message{Source: src, Seqno: 7, Topics: []Topic{"chat"}, Data: []byte("x")}
	b := &Message{Source: src, Seqno: 7, Topics: []Topic{"other"}, Data: []byte("y")}
	c := &Message{Source: src, Seqno: 8}

	// 去重只看 (source, seqno)
	assert.Equal(t, a.ID(), b.ID())
	assert.NotEqual(t, a.ID(), c.ID())

	assert.True(t, a.HasTopic("chat"))
	assert.False(t, a.HasTopic("other"))
}
