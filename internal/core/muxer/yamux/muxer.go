package yamux

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/hashicorp/yamux"
)

// ErrMuxerClosed 多路复用器已关闭
var ErrMuxerClosed = errors.New("yamux: muxer closed")

// Muxer 封装 yamux.Session
type Muxer struct {
	session  *yamux.Session
	isServer bool
	closed   atomic.Bool
}

// NewMuxer 在已加密的连接上建立 yamux 会话
//
// 入站连接作为服务端，出站连接作为客户端。
func NewMuxer(conn net.Conn, isServer bool, cfg *yamux.Config) (*Muxer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var (
		session *yamux.Session
		err     error
	)
	if isServer {
		session, err = yamux.Server(conn, cfg)
	} else {
		session, err = yamux.Client(conn, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("create yamux session: %w", err)
	}
	return &Muxer{session: session, isServer: isServer}, nil
}

// NewStream 打开新流
func (m *Muxer) NewStream(ctx context.Context) (net.Conn, error) {
	if m.IsClosed() {
		return nil, ErrMuxerClosed
	}

	type result struct {
		stream *yamux.Stream
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		s, err := m.session.OpenStream()
		select {
		case resultCh <- result{stream: s, err: err}:
		case <-ctx.Done():
			if s != nil {
				_ = s.Close()
			}
		}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultCh:
		if r.err != nil {
			return nil, fmt.Errorf("open stream: %w", r.err)
		}
		return r.stream, nil
	}
}

// AcceptStream 阻塞等待对端打开的流
func (m *Muxer) AcceptStream() (net.Conn, error) {
	s, err := m.session.AcceptStream()
	if err != nil {
		return nil, fmt.Errorf("accept stream: %w", err)
	}
	return s, nil
}

// Close 关闭会话及其所有流
func (m *Muxer) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	return m.session.Close()
}

// IsClosed 检查是否已关闭
func (m *Muxer) IsClosed() bool {
	return m.closed.Load() || m.session.IsClosed()
}

// CloseChan 会话关闭时关闭的通道
func (m *Muxer) CloseChan() <-chan struct{} {
	return m.session.CloseChan()
}

// NumStreams 返回当前流数量
func (m *Muxer) NumStreams() int {
	return m.session.NumStreams()
}

// IsServer 是否为服务端
func (m *Muxer) IsServer() bool {
	return m.isServer
}
