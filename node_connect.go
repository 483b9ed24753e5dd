package floodnet

import (
	"context"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-floodnet/internal/core/behaviour"
	"github.com/dep2p/go-floodnet/internal/core/swarm"
	"github.com/dep2p/go-floodnet/pkg/types"
)

// Dial 拨号一个地址，连接建立后对端成为泛洪目标
//
// 地址带 /p2p/<id> 时以该 ID 登记为目标（断线后自动重拨）；
// 否则按地址拨号，对端身份由握手确定。
func (n *Node) Dial(ctx context.Context, addr ma.Multiaddr) error {
	if addr == nil {
		return fmt.Errorf("%w: nil addr", ErrInvalidOption)
	}

	peer, err := swarm.PeerIDFromAddr(addr)
	if err != nil {
		return n.submit(ctx, func(c *behaviour.Context) {
			c.Dial("", []ma.Multiaddr{addr})
		})
	}

	var addrs []ma.Multiaddr
	if base := addr.Decapsulate(ma.StringCast("/p2p/" + peer.String())); base != nil && len(base.Bytes()) > 0 {
		addrs = []ma.Multiaddr{base}
	}
	return n.submit(ctx, func(c *behaviour.Context) {
		n.floodsub.AddTarget(c, peer, addrs)
	})
}

// DialString 解析并拨号一个 multiaddr 字符串
func (n *Node) DialString(ctx context.Context, s string) error {
	addr, err := ma.NewMultiaddr(s)
	if err != nil {
		return fmt.Errorf("%w: parse addr %q: %v", ErrInvalidOption, s, err)
	}
	return n.Dial(ctx, addr)
}

// ConnectedPeers 返回已连接节点
//
// 需要另一个 goroutine 正在驱动事件循环。
func (n *Node) ConnectedPeers(ctx context.Context) ([]types.PeerID, error) {
	return query(ctx, n, func(c *behaviour.Context) []types.PeerID {
		return c.Peers().Connected()
	})
}

// DiscoveredPeers 返回发现表中尚未过期的节点
//
// 需要另一个 goroutine 正在驱动事件循环。
func (n *Node) DiscoveredPeers(ctx context.Context) ([]types.PeerID, error) {
	if n.discovery == nil {
		return nil, ErrDiscoveryDisabled
	}
	return query(ctx, n, func(*behaviour.Context) []types.PeerID {
		return n.discovery.Table().Peers()
	})
}
