package swarm

import (
	tec "github.com/jbenet/go-temp-err-catcher"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-floodnet/internal/core/transport/tcp"
	"github.com/dep2p/go-floodnet/pkg/types"
)

// acceptLoop 接受入站连接
//
// 临时错误（如 EMFILE）退避后重试；其余错误在非关闭状态下投递 ListenerClosed。
func (s *Swarm) acceptLoop(l *tcp.Listener) {
	defer s.wg.Done()

	var catcher tec.TempErrCatcher
	for {
		raw, err := l.Accept()
		if err != nil {
			if catcher.IsTemporary(err) {
				log.Debug("accept 临时错误", "addr", l.Multiaddr(), "err", err)
				continue
			}
			if s.closed.Load() {
				return
			}
			log.Error("监听器意外关闭", "addr", l.Multiaddr(), "err", err)
			s.emit(types.NetworkEvent{Kind: types.EvtListenerClosed, Addr: l.Multiaddr(), Err: err})
			return
		}
		catcher.Reset()

		s.wg.Add(1)
		go s.handleInbound(raw)
	}
}

// handleInbound 升级入站连接
func (s *Swarm) handleInbound(raw manet.Conn) {
	defer s.wg.Done()

	uc, err := s.upgrader.Upgrade(s.ctx, raw, types.DirInbound, "")
	if err != nil {
		log.Debug("入站连接升级失败", "remote", raw.RemoteMultiaddr(), "err", err)
		return
	}
	if uc.RemotePeer() == s.localPeer {
		_ = uc.Close()
		return
	}
	s.addConn(uc, raw.RemoteMultiaddr())
}
