package discovery

import (
	"sort"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-floodnet/pkg/types"
)

type addrEntry struct {
	addr     ma.Multiaddr
	lastSeen time.Time
}

// Table 发现表：节点 -> 地址 -> 最后可见时间
//
// 不加锁，只在事件循环中使用。
type Table struct {
	peers map[types.PeerID]map[string]*addrEntry
}

// NewTable 创建发现表
func NewTable() *Table {
	return &Table{peers: make(map[types.PeerID]map[string]*addrEntry)}
}

// Observe 记录一次在场，返回节点是否为新节点
//
// 未知节点的记录没有地址时不登记。
func (t *Table) Observe(peer types.PeerID, addrs []ma.Multiaddr, now time.Time) bool {
	entries, known := t.peers[peer]
	if !known {
		if len(addrs) == 0 {
			return false
		}
		entries = make(map[string]*addrEntry, len(addrs))
		t.peers[peer] = entries
	}
	for _, a := range addrs {
		key := a.String()
		if e, ok := entries[key]; ok {
			e.lastSeen = now
			continue
		}
		entries[key] = &addrEntry{addr: a, lastSeen: now}
	}
	return !known
}

// Remove 移除节点，返回节点是否存在
func (t *Table) Remove(peer types.PeerID) bool {
	if _, ok := t.peers[peer]; !ok {
		return false
	}
	delete(t.peers, peer)
	return true
}

// Expire 移除 window 内未刷新的地址，返回失去全部地址的节点（有序）
func (t *Table) Expire(now time.Time, window time.Duration) []types.PeerID {
	var expired []types.PeerID
	for peer, entries := range t.peers {
		for key, e := range entries {
			if now.Sub(e.lastSeen) >= window {
				delete(entries, key)
			}
		}
		if len(entries) == 0 {
			delete(t.peers, peer)
			expired = append(expired, peer)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	return expired
}

// Has 节点是否在表中
func (t *Table) Has(peer types.PeerID) bool {
	_, ok := t.peers[peer]
	return ok
}

// Addrs 返回节点当前未过期的地址（按字符串排序）
func (t *Table) Addrs(peer types.PeerID) []ma.Multiaddr {
	entries := t.peers[peer]
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]ma.Multiaddr, 0, len(keys))
	for _, k := range keys {
		out = append(out, entries[k].addr)
	}
	return out
}

// Peers 返回表中的节点（有序）
func (t *Table) Peers() []types.PeerID {
	out := make([]types.PeerID, 0, len(t.peers))
	for p := range t.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len 返回节点数
func (t *Table) Len() int {
	return len(t.peers)
}
