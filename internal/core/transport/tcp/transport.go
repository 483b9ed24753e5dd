package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

// ErrUnsupportedAddr 地址不是 TCP 地址
var ErrUnsupportedAddr = errors.New("tcp: unsupported address")

// DefaultKeepAlive TCP keepalive 周期
const DefaultKeepAlive = 15 * time.Second

// Transport TCP 传输
type Transport struct {
	dialTimeout time.Duration
}

// NewTransport 创建 TCP 传输
func NewTransport(dialTimeout time.Duration) *Transport {
	return &Transport{dialTimeout: dialTimeout}
}

// CanDial 检查是否为 /ip{4,6}/.../tcp/<port> 形式的地址
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	if addr == nil {
		return false
	}
	if _, err := addr.ValueForProtocol(ma.P_TCP); err != nil {
		return false
	}
	_, err := addr.ValueForProtocol(ma.P_IP4)
	if err != nil {
		_, err = addr.ValueForProtocol(ma.P_IP6)
	}
	return err == nil
}

// Dial 建立出站 TCP 连接
func (t *Transport) Dial(ctx context.Context, addr ma.Multiaddr) (manet.Conn, error) {
	if !t.CanDial(addr) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAddr, addr)
	}
	if t.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.dialTimeout)
		defer cancel()
	}

	network, host, err := manet.DialArgs(transportOnly(addr))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAddr, err)
	}

	d := net.Dialer{KeepAlive: DefaultKeepAlive}
	conn, err := d.DialContext(ctx, network, host)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	tune(conn)
	return manet.WrapNetConn(conn)
}

// Listen 在指定地址监听
func (t *Transport) Listen(addr ma.Multiaddr) (*Listener, error) {
	if !t.CanDial(addr) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAddr, addr)
	}
	network, host, err := manet.DialArgs(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAddr, err)
	}

	lc := net.ListenConfig{KeepAlive: DefaultKeepAlive}
	l, err := lc.Listen(context.Background(), network, host)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	// 端口为 0 时取实际分配的地址
	laddr, err := manet.FromNetAddr(l.Addr())
	if err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("listen addr: %w", err)
	}
	return &Listener{listener: l, addr: laddr}, nil
}

// Listener TCP 监听器
type Listener struct {
	listener net.Listener
	addr     ma.Multiaddr
}

// Accept 接受连接并设置 TCP 选项
func (l *Listener) Accept() (manet.Conn, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}
	tune(conn)
	mc, err := manet.WrapNetConn(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return mc, nil
}

// Multiaddr 返回实际监听地址
func (l *Listener) Multiaddr() ma.Multiaddr {
	return l.addr
}

// Close 关闭监听器
func (l *Listener) Close() error {
	return l.listener.Close()
}

// ExpandUnspecified 将 0.0.0.0 / :: 监听地址展开为各网卡地址
//
// 展开失败时返回原地址。
func ExpandUnspecified(addr ma.Multiaddr) []ma.Multiaddr {
	ifaces, err := manet.InterfaceMultiaddrs()
	if err != nil {
		return []ma.Multiaddr{addr}
	}
	resolved, err := manet.ResolveUnspecifiedAddress(addr, ifaces)
	if err != nil || len(resolved) == 0 {
		return []ma.Multiaddr{addr}
	}
	return resolved
}

// transportOnly 去掉 /p2p/<id> 等非传输层后缀
func transportOnly(addr ma.Multiaddr) ma.Multiaddr {
	head, _ := ma.SplitFunc(addr, func(c ma.Component) bool {
		return c.Protocol().Code == ma.P_P2P
	})
	if head == nil {
		return addr
	}
	return head
}

func tune(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
}
