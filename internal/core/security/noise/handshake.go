package noise

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"filippo.io/edwards25519"
	"github.com/flynn/noise"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-floodnet/internal/core/identity"
	"github.com/dep2p/go-floodnet/pkg/types"
)

// payloadSigPrefix 签名前缀
const payloadSigPrefix = "noise-floodnet-static-key:"

// payload 字段号
const (
	fieldIdentityKey protowire.Number = 1
	fieldIdentitySig protowire.Number = 2
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// ============================================================================
//                              Noise XX 握手
// ============================================================================

// performHandshake 执行 Noise XX 握手
//
// remotePeer 非空时校验对端身份。
func performHandshake(conn net.Conn, id *identity.Identity, remotePeer types.PeerID, initiator bool) (*secureConn, error) {
	staticPriv := ed25519ToCurve25519Private(id.PrivateKey())
	staticPub, err := ed25519ToCurve25519Public(id.PublicKey())
	if err != nil {
		return nil, err
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: noise.DHKey{Private: staticPriv, Public: staticPub},
	})
	if err != nil {
		return nil, fmt.Errorf("create handshake state: %w", err)
	}

	localPayload := encodePayload(id.PublicKey(), id.Sign(append([]byte(payloadSigPrefix), staticPub...)))

	var sendCS, recvCS *noise.CipherState
	var remotePayload []byte
	if initiator {
		sendCS, recvCS, remotePayload, err = clientHandshake(conn, hs, localPayload)
	} else {
		sendCS, recvCS, remotePayload, err = serverHandshake(conn, hs, localPayload)
	}
	if err != nil {
		return nil, err
	}

	actual, err := verifyPayload(remotePayload, hs.PeerStatic())
	if err != nil {
		return nil, err
	}
	if remotePeer != "" && actual != remotePeer {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrPeerIDMismatch, remotePeer, actual)
	}

	return &secureConn{
		Conn:       conn,
		sendCS:     sendCS,
		recvCS:     recvCS,
		localPeer:  id.PeerID(),
		remotePeer: actual,
	}, nil
}

// clientHandshake 发起者：-> e; <- e, ee, s, es; -> s, se
func clientHandshake(conn net.Conn, hs *noise.HandshakeState, localPayload []byte) (*noise.CipherState, *noise.CipherState, []byte, error) {
	msg1, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 1: %w", err)
	}
	if err := writeFrame(conn, msg1); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 1: %w", err)
	}

	msg2, err := readFrame(conn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 2: %w", err)
	}
	remotePayload, _, _, err := hs.ReadMessage(nil, msg2)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read message 2: %w", err)
	}

	msg3, cs1, cs2, err := hs.WriteMessage(nil, localPayload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 3: %w", err)
	}
	if err := writeFrame(conn, msg3); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 3: %w", err)
	}

	// 发起者：cs1 发送，cs2 接收
	return cs1, cs2, remotePayload, nil
}

// serverHandshake 响应者：<- e; -> e, ee, s, es; <- s, se
func serverHandshake(conn net.Conn, hs *noise.HandshakeState, localPayload []byte) (*noise.CipherState, *noise.CipherState, []byte, error) {
	msg1, err := readFrame(conn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 1: %w", err)
	}
	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return nil, nil, nil, fmt.Errorf("read message 1: %w", err)
	}

	msg2, _, _, err := hs.WriteMessage(nil, localPayload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 2: %w", err)
	}
	if err := writeFrame(conn, msg2); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 2: %w", err)
	}

	msg3, err := readFrame(conn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 3: %w", err)
	}
	remotePayload, cs1, cs2, err := hs.ReadMessage(nil, msg3)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read message 3: %w", err)
	}

	// 响应者与发起者相反
	return cs2, cs1, remotePayload, nil
}

// ============================================================================
//                              payload
// ============================================================================

func encodePayload(pub ed25519.PublicKey, sig []byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldIdentityKey, protowire.BytesType)
	b = protowire.AppendBytes(b, pub)
	b = protowire.AppendTag(b, fieldIdentitySig, protowire.BytesType)
	b = protowire.AppendBytes(b, sig)
	return b
}

func decodePayload(b []byte) (pub, sig []byte, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, nil, ErrInvalidPayload
		}
		b = b[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, nil, ErrInvalidPayload
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, nil, ErrInvalidPayload
		}
		b = b[n:]

		switch num {
		case fieldIdentityKey:
			pub = v
		case fieldIdentitySig:
			sig = v
		}
	}
	return pub, sig, nil
}

// verifyPayload 校验对端签名并派生 PeerID
func verifyPayload(payload, remoteStatic []byte) (types.PeerID, error) {
	if len(remoteStatic) != 32 {
		return "", fmt.Errorf("%w: remote static key length %d", ErrInvalidPayload, len(remoteStatic))
	}
	pub, sig, err := decodePayload(payload)
	if err != nil {
		return "", err
	}
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: identity key length %d", ErrInvalidPayload, len(pub))
	}
	if !identity.Verify(pub, append([]byte(payloadSigPrefix), remoteStatic...), sig) {
		return "", ErrInvalidSignature
	}
	return types.PeerIDFromPublicKey(pub)
}

// ============================================================================
//                              密钥转换
// ============================================================================

// ed25519ToCurve25519Private SHA-512(seed) 前 32 字节并 clamp（RFC 7748）
func ed25519ToCurve25519Private(priv ed25519.PrivateKey) []byte {
	h := sha512.Sum512(priv.Seed())
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	return h[:32]
}

// ed25519ToCurve25519Public Edwards -> Montgomery: u = (1 + y) / (1 - y)
func ed25519ToCurve25519Public(pub ed25519.PublicKey) ([]byte, error) {
	point, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return nil, fmt.Errorf("convert ed25519 public key: %w", err)
	}
	return point.BytesMontgomery(), nil
}

// ============================================================================
//                              帧
// ============================================================================

// writeFrame 2 字节长度 + 数据
func writeFrame(w io.Writer, data []byte) error {
	buf := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(buf, uint16(len(data)))
	copy(buf[2:], data)
	_, err := w.Write(buf)
	return err
}

// readFrame 读取 2 字节长度 + 数据
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	data := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
