package noise

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dep2p/go-floodnet/internal/core/identity"
	"github.com/dep2p/go-floodnet/internal/util/logger"
	"github.com/dep2p/go-floodnet/pkg/types"
)

var log = logger.Logger("noise")

// ProtocolID 安全协议标识（multistream-select 协商）
const ProtocolID = types.ProtocolID("/noise")

// SecureConn 已认证的加密连接
type SecureConn interface {
	net.Conn

	LocalPeer() types.PeerID
	RemotePeer() types.PeerID
}

// Transport Noise 安全传输
type Transport struct {
	identity *identity.Identity
}

// New 创建 Noise 传输
func New(id *identity.Identity) (*Transport, error) {
	if id == nil {
		return nil, errors.New("noise: identity is nil")
	}
	return &Transport{identity: id}, nil
}

// ID 返回协议标识
func (t *Transport) ID() types.ProtocolID {
	return ProtocolID
}

// SecureInbound 作为响应者握手
func (t *Transport) SecureInbound(ctx context.Context, conn net.Conn) (SecureConn, error) {
	return t.secure(ctx, conn, "", false)
}

// SecureOutbound 作为发起者握手；remotePeer 为空时不校验对端身份
func (t *Transport) SecureOutbound(ctx context.Context, conn net.Conn, remotePeer types.PeerID) (SecureConn, error) {
	return t.secure(ctx, conn, remotePeer, true)
}

func (t *Transport) secure(ctx context.Context, conn net.Conn, remotePeer types.PeerID, initiator bool) (SecureConn, error) {
	if conn == nil {
		return nil, errors.New("noise: conn is nil")
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	sc, err := performHandshake(conn, t.identity, remotePeer, initiator)
	if err != nil {
		log.Debug("Noise 握手失败", "remote", conn.RemoteAddr(), "initiator", initiator, "err", err)
		return nil, fmt.Errorf("noise handshake: %w", err)
	}
	log.Debug("Noise 握手成功", "peer", sc.RemotePeer().ShortString(), "initiator", initiator)
	return sc, nil
}
