package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/dep2p/go-floodnet/pkg/types"
)

// ============================================================================
//                              Identity
// ============================================================================

// Identity 节点身份（Ed25519 密钥对 + 派生的 PeerID）
//
// 创建后不可变，可在多个 goroutine 间共享。
type Identity struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	id   types.PeerID
}

// Generate 生成新的随机身份
func Generate() (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return FromPrivateKey(priv)
}

// FromPrivateKey 从 Ed25519 私钥创建身份
func FromPrivateKey(priv ed25519.PrivateKey) (*Identity, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKeySize, len(priv))
	}
	pub := priv.Public().(ed25519.PublicKey)
	id, err := types.PeerIDFromPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return &Identity{priv: priv, pub: pub, id: id}, nil
}

// PeerID 返回节点 ID
func (i *Identity) PeerID() types.PeerID {
	return i.id
}

// PublicKey 返回公钥
func (i *Identity) PublicKey() ed25519.PublicKey {
	return i.pub
}

// PrivateKey 返回私钥
func (i *Identity) PrivateKey() ed25519.PrivateKey {
	return i.priv
}

// Sign 签名数据
func (i *Identity) Sign(data []byte) []byte {
	return ed25519.Sign(i.priv, data)
}

// Verify 用给定公钥验证签名
func Verify(pub ed25519.PublicKey, data, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, data, sig)
}
