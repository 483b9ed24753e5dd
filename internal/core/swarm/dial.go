package swarm

import (
	"context"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/multierr"

	"github.com/dep2p/go-floodnet/pkg/types"
)

// Dial 异步拨号
//
// peer 为空时按地址拨号，对端身份由握手确定（地址带 /p2p/<id> 时以其为准）。
// 同一节点同时只有一个拨号在进行；全部地址失败后投递 DialFailed。
func (s *Swarm) Dial(peer types.PeerID, addrs []ma.Multiaddr) {
	if s.closed.Load() {
		return
	}

	if peer.IsEmpty() && len(addrs) > 0 {
		if id, err := PeerIDFromAddr(addrs[0]); err == nil {
			peer = id
		}
	}

	var dialable []ma.Multiaddr
	for _, a := range addrs {
		if s.tcp.CanDial(a) {
			dialable = append(dialable, a)
		}
	}

	key := string(peer)
	if key == "" && len(dialable) > 0 {
		key = dialable[0].String()
	}

	s.mu.Lock()
	if _, busy := s.dialing[key]; busy && key != "" {
		s.mu.Unlock()
		return
	}
	s.dialing[key] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.dialing, key)
			s.mu.Unlock()
		}()

		var addr ma.Multiaddr
		if len(dialable) > 0 {
			addr = dialable[0]
		}
		if err := s.dial(peer, dialable); err != nil {
			log.Debug("拨号失败", "peer", peer.ShortString(), "addrs", len(dialable), "err", err)
			s.emit(types.NetworkEvent{Kind: types.EvtDialFailed, Peer: peer, Addr: addr, Err: err})
		}
	}()
}

// dial 依次尝试每个地址，直到一个成功
func (s *Swarm) dial(peer types.PeerID, addrs []ma.Multiaddr) error {
	if peer == s.localPeer {
		return ErrDialSelf
	}
	if len(addrs) == 0 {
		return ErrNoAddresses
	}

	var errs error
	for _, addr := range addrs {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return multierr.Append(errs, err)
		}

		err := s.dialAddr(s.ctx, peer, addr)
		if err == nil {
			return nil
		}
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", addr, err))
	}
	return errs
}

func (s *Swarm) dialAddr(ctx context.Context, peer types.PeerID, addr ma.Multiaddr) error {
	raw, err := s.tcp.Dial(ctx, addr)
	if err != nil {
		return err
	}

	uc, err := s.upgrader.Upgrade(ctx, raw, types.DirOutbound, peer)
	if err != nil {
		return err
	}
	if uc.RemotePeer() == s.localPeer {
		_ = uc.Close()
		return ErrDialSelf
	}

	s.addConn(uc, raw.RemoteMultiaddr())
	return nil
}

// PeerIDFromAddr 提取地址末尾 /p2p/<id> 中的节点 ID
func PeerIDFromAddr(addr ma.Multiaddr) (types.PeerID, error) {
	v, err := addr.ValueForProtocol(ma.P_P2P)
	if err != nil {
		return "", err
	}
	return types.ParsePeerID(v)
}

// WithPeerID 在传输地址后追加 /p2p/<id>
func WithPeerID(addr ma.Multiaddr, peer types.PeerID) (ma.Multiaddr, error) {
	p2p, err := ma.NewMultiaddr("/p2p/" + peer.String())
	if err != nil {
		return nil, err
	}
	return addr.Encapsulate(p2p), nil
}
