package types

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/minio/sha256-simd"
	"github.com/mr-tron/base58"
)

// ============================================================================
//                              PeerID - 节点标识
// ============================================================================

// multihash 前缀：sha2-256 (0x12)，摘要长度 32 (0x20)
const (
	mhSHA256    = 0x12
	mhSHA256Len = 0x20

	peerIDLen = 2 + sha256.Size
)

// ErrInvalidPeerID 无效的节点 ID
var ErrInvalidPeerID = errors.New("invalid peer id")

// PeerID 节点唯一标识符
//
// 由公钥确定性派生：Base58(0x12 0x20 || SHA-256(ed25519 公钥))。
// 创建后不可变。
type PeerID string

// PeerIDFromPublicKey 从 Ed25519 公钥派生 PeerID
func PeerIDFromPublicKey(pub ed25519.PublicKey) (PeerID, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: public key size %d", ErrInvalidPeerID, len(pub))
	}
	digest := sha256.Sum256(pub)

	raw := make([]byte, 0, peerIDLen)
	raw = append(raw, mhSHA256, mhSHA256Len)
	raw = append(raw, digest[:]...)
	return PeerID(base58.Encode(raw)), nil
}

// PeerIDFromBytes 从线上格式（multihash 原始字节）还原 PeerID
func PeerIDFromBytes(b []byte) (PeerID, error) {
	if err := validateRaw(b); err != nil {
		return "", err
	}
	return PeerID(base58.Encode(b)), nil
}

// ParsePeerID 解析 Base58 字符串形式的 PeerID
func ParsePeerID(s string) (PeerID, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPeerID, err)
	}
	if err := validateRaw(raw); err != nil {
		return "", err
	}
	return PeerID(s), nil
}

func validateRaw(b []byte) error {
	if len(b) != peerIDLen || b[0] != mhSHA256 || b[1] != mhSHA256Len {
		return ErrInvalidPeerID
	}
	return nil
}

// Bytes 返回 PeerID 的线上格式（Base58 解码后的原始字节）
func (p PeerID) Bytes() []byte {
	raw, err := base58.Decode(string(p))
	if err != nil {
		return nil
	}
	return raw
}

// String 返回 Base58 字符串
func (p PeerID) String() string {
	return string(p)
}

// ShortString 返回日志用的短标识：前 8 个字符...后 3 个字符
func (p PeerID) ShortString() string {
	s := string(p)
	if len(s) <= 12 {
		return s
	}
	return s[:8] + "..." + s[len(s)-3:]
}

// IsEmpty 检查是否为空
func (p PeerID) IsEmpty() bool {
	return p == ""
}

// Validate 检查 PeerID 格式
func (p PeerID) Validate() error {
	_, err := ParsePeerID(string(p))
	return err
}

// ============================================================================
//                              Topic / ProtocolID
// ============================================================================

// Topic 发布订阅主题
type Topic string

// String 返回主题名
func (t Topic) String() string {
	return string(t)
}

// ProtocolID 协议标识符（连接建立时通过 multistream-select 协商）
type ProtocolID string

// String 返回协议 ID 的字符串表示
func (p ProtocolID) String() string {
	return string(p)
}
