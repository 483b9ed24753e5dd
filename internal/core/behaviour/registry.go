package behaviour

import (
	"sort"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-floodnet/pkg/types"
)

// registry 连接注册表，只在事件循环中修改
type registry struct {
	conns map[types.PeerID]map[uint64]ma.Multiaddr
}

func newRegistry() *registry {
	return &registry{conns: make(map[types.PeerID]map[uint64]ma.Multiaddr)}
}

// opened 登记连接，返回是否为该节点的第一条连接
func (r *registry) opened(peer types.PeerID, id uint64, addr ma.Multiaddr) bool {
	m := r.conns[peer]
	first := len(m) == 0
	if m == nil {
		m = make(map[uint64]ma.Multiaddr)
		r.conns[peer] = m
	}
	m[id] = addr
	return first
}

// closed 注销连接，返回剩余连接数
func (r *registry) closed(peer types.PeerID, id uint64) int {
	m := r.conns[peer]
	delete(m, id)
	if len(m) == 0 {
		delete(r.conns, peer)
		return 0
	}
	return len(m)
}

func (r *registry) IsConnected(peer types.PeerID) bool {
	return len(r.conns[peer]) > 0
}

func (r *registry) NumConns(peer types.PeerID) int {
	return len(r.conns[peer])
}

func (r *registry) Connected() []types.PeerID {
	out := make([]types.PeerID, 0, len(r.conns))
	for p := range r.conns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *registry) Addrs(peer types.PeerID) []ma.Multiaddr {
	m := r.conns[peer]
	out := make([]ma.Multiaddr, 0, len(m))
	for _, a := range m {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}

func (r *registry) len() int {
	return len(r.conns)
}
