package upgrader

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/dep2p/go-floodnet/internal/core/identity"
	"github.com/dep2p/go-floodnet/internal/core/muxer/yamux"
	"github.com/dep2p/go-floodnet/internal/core/security/noise"
	"github.com/dep2p/go-floodnet/internal/util/logger"
	"github.com/dep2p/go-floodnet/pkg/types"
)

var log = logger.Logger("upgrader")

// DefaultHandshakeTimeout 默认协商 + 握手超时
const DefaultHandshakeTimeout = 5 * time.Second

// Conn 升级后的连接
type Conn struct {
	*yamux.Muxer

	secure     noise.SecureConn
	remotePeer types.PeerID
	direction  types.Direction
}

// RemotePeer 返回已认证的对端
func (c *Conn) RemotePeer() types.PeerID {
	return c.remotePeer
}

// Direction 返回连接方向
func (c *Conn) Direction() types.Direction {
	return c.direction
}

// RemoteAddr 返回底层连接的远端地址
func (c *Conn) RemoteAddr() net.Addr {
	return c.secure.RemoteAddr()
}

// Close 关闭会话和底层连接
func (c *Conn) Close() error {
	err := c.Muxer.Close()
	_ = c.secure.Close()
	return err
}

// Upgrader 连接升级器
type Upgrader struct {
	security *noise.Transport
	timeout  time.Duration
}

// New 创建连接升级器
func New(id *identity.Identity, timeout time.Duration) (*Upgrader, error) {
	if id == nil {
		return nil, ErrNilIdentity
	}
	sec, err := noise.New(id)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	return &Upgrader{security: sec, timeout: timeout}, nil
}

// Upgrade 升级原始连接
//
// 出站连接 remotePeer 非空时校验对端身份。失败时关闭 conn。
func (u *Upgrader) Upgrade(ctx context.Context, conn net.Conn, dir types.Direction, remotePeer types.PeerID) (*Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	c, err := u.upgrade(ctx, conn, dir, remotePeer)
	if err != nil {
		conn.Close()
		log.Debug("连接升级失败", "remote", conn.RemoteAddr(), "direction", dir, "err", err)
		return nil, err
	}
	log.Debug("连接升级成功", "peer", c.remotePeer.ShortString(), "direction", dir)
	return c, nil
}

func (u *Upgrader) upgrade(ctx context.Context, conn net.Conn, dir types.Direction, remotePeer types.PeerID) (*Conn, error) {
	isServer := dir == types.DirInbound

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	// 上下文提前取消时中断阻塞的读写
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := negotiate(conn, noise.ProtocolID, isServer); err != nil {
		return nil, fmt.Errorf("security negotiation: %w", err)
	}

	var (
		sc  noise.SecureConn
		err error
	)
	if isServer {
		sc, err = u.security.SecureInbound(ctx, conn)
	} else {
		sc, err = u.security.SecureOutbound(ctx, conn, remotePeer)
	}
	if err != nil {
		return nil, fmt.Errorf("security handshake: %w", err)
	}

	// SecureInbound/Outbound 会清除截止时间
	_ = conn.SetDeadline(deadline)

	if err := negotiate(sc, yamux.ProtocolID, isServer); err != nil {
		return nil, fmt.Errorf("muxer negotiation: %w", err)
	}

	if !stop() {
		return nil, ctx.Err()
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("clear deadline: %w", err)
	}

	m, err := yamux.NewMuxer(sc, isServer, yamux.DefaultConfig())
	if err != nil {
		return nil, err
	}

	return &Conn{
		Muxer:      m,
		secure:     sc,
		remotePeer: sc.RemotePeer(),
		direction:  dir,
	}, nil
}
