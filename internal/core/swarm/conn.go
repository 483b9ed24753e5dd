package swarm

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"

	ma "github.com/multiformats/go-multiaddr"
	mss "github.com/multiformats/go-multistream"

	"github.com/dep2p/go-floodnet/internal/core/upgrader"
	"github.com/dep2p/go-floodnet/pkg/types"
)

// conn 一条已升级的连接
type conn struct {
	s    *Swarm
	id   uint64
	uc   *upgrader.Conn
	peer types.PeerID
	dir  types.Direction
	addr ma.Multiaddr

	mu      sync.Mutex
	writers map[types.ProtocolID]*streamWriter

	closeOnce sync.Once
	closeErr  error
}

func newConn(s *Swarm, id uint64, uc *upgrader.Conn, addr ma.Multiaddr) *conn {
	return &conn{
		s:       s,
		id:      id,
		uc:      uc,
		peer:    uc.RemotePeer(),
		dir:     uc.Direction(),
		addr:    addr,
		writers: make(map[types.ProtocolID]*streamWriter),
	}
}

// close 关闭连接，watch 负责移除并投递事件
func (c *conn) close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.uc.Close()
	})
	return c.closeErr
}

// watch 等待会话结束后清理
func (c *conn) watch() {
	defer c.s.wg.Done()
	<-c.uc.CloseChan()
	_ = c.close()

	c.mu.Lock()
	for proto, w := range c.writers {
		w.stop()
		delete(c.writers, proto)
	}
	c.mu.Unlock()

	c.s.removeConn(c, nil)
}

// ============================================================================
//                              出站
// ============================================================================

// send 把帧放入该协议的出站队列
func (c *conn) send(proto types.ProtocolID, data []byte) error {
	c.mu.Lock()
	w, ok := c.writers[proto]
	if !ok || w.isDone() {
		w = newStreamWriter(c, proto, c.s.config.SendQueueSize)
		c.writers[proto] = w
		c.s.wg.Add(1)
		go w.run()
	}
	c.mu.Unlock()

	if !w.enqueue(data) {
		log.Warn("出站队列已满，丢弃帧", "peer", c.peer.ShortString(), "protocol", proto)
		return ErrQueueFull
	}
	return nil
}

// streamWriter 串行写入某协议出站流
type streamWriter struct {
	c     *conn
	proto types.ProtocolID
	queue chan []byte

	done     chan struct{}
	stopOnce sync.Once
}

func newStreamWriter(c *conn, proto types.ProtocolID, size int) *streamWriter {
	return &streamWriter{
		c:     c,
		proto: proto,
		queue: make(chan []byte, size),
		done:  make(chan struct{}),
	}
}

func (w *streamWriter) enqueue(data []byte) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.queue <- data:
		return true
	default:
		return false
	}
}

func (w *streamWriter) stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *streamWriter) isDone() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// run 懒打开流并持续写入；任何错误都结束该 writer，下次发送重新建立
func (w *streamWriter) run() {
	defer w.c.s.wg.Done()
	defer w.stop()

	var stream net.Conn
	defer func() {
		if stream != nil {
			_ = stream.Close()
		}
	}()

	for {
		var data []byte
		select {
		case <-w.done:
			return
		case <-w.c.s.ctx.Done():
			return
		case data = <-w.queue:
		}

		if stream == nil {
			s, err := w.open()
			if err != nil {
				log.Debug("打开出站流失败", "peer", w.c.peer.ShortString(), "protocol", w.proto, "err", err)
				return
			}
			stream = s
		}

		if err := writeFrame(stream, data); err != nil {
			log.Debug("写入出站流失败", "peer", w.c.peer.ShortString(), "protocol", w.proto, "err", err)
			return
		}
	}
}

func (w *streamWriter) open() (net.Conn, error) {
	ctx, cancel := context.WithTimeout(w.c.s.ctx, w.c.s.config.NewStreamTimeout)
	defer cancel()

	stream, err := w.c.uc.NewStream(ctx)
	if err != nil {
		return nil, err
	}
	// 协商结果在首次读写时确认
	lazy := mss.NewMSSelect(stream, string(w.proto))
	return &lazyStream{Conn: stream, rw: lazy}, nil
}

// lazyStream 把读写交给 multistream 懒协商连接，其余方法沿用底层流
type lazyStream struct {
	net.Conn
	rw io.ReadWriteCloser
}

func (l *lazyStream) Read(p []byte) (int, error)  { return l.rw.Read(p) }
func (l *lazyStream) Write(p []byte) (int, error) { return l.rw.Write(p) }
func (l *lazyStream) Close() error                { return l.rw.Close() }

// ============================================================================
//                              入站
// ============================================================================

// acceptStreams 接受对端打开的流
func (c *conn) acceptStreams() {
	defer c.s.wg.Done()
	for {
		stream, err := c.uc.AcceptStream()
		if err != nil {
			return
		}
		c.s.wg.Add(1)
		go c.handleStream(stream)
	}
}

// handleStream 协商协议后逐帧投递 FrameReceived
func (c *conn) handleStream(stream net.Conn) {
	defer c.s.wg.Done()
	defer stream.Close()

	protocols := c.s.protocolList()
	muxer := mss.NewMultistreamMuxer[types.ProtocolID]()
	for _, p := range protocols {
		muxer.AddHandler(p, nil)
	}

	proto, _, err := muxer.Negotiate(stream)
	if err != nil {
		log.Debug("入站流协商失败", "peer", c.peer.ShortString(), "err", err)
		return
	}

	r := bufio.NewReader(stream)
	for {
		data, err := readFrame(r, c.s.config.MaxFrameSize)
		if err != nil {
			if errors.Is(err, ErrFrameTooLarge) {
				log.Warn("入站帧过大，关闭流", "peer", c.peer.ShortString(), "protocol", proto, "err", err)
			} else if !errors.Is(err, io.EOF) {
				log.Debug("入站流结束", "peer", c.peer.ShortString(), "protocol", proto, "err", err)
			}
			return
		}

		c.s.emit(types.NetworkEvent{
			Kind:      types.EvtFrameReceived,
			Peer:      c.peer,
			ConnID:    c.id,
			Direction: c.dir,
			Protocol:  proto,
			Data:      data,
		})
	}
}
