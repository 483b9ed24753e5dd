package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/mdns"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-floodnet/pkg/types"
)

const (
	// mdnsQueryTimeout 单次查询等待应答的时长
	mdnsQueryTimeout = time.Second

	// txtMaxLen 单条 TXT 记录上限
	txtMaxLen = 255

	txtIDPrefix    = "id="
	txtAddrsPrefix = "addrs="
)

// MDNSBeacon 基于 mDNS 的信标
//
// Announce 把在场记录发布为 mDNS 服务（记录变化时重建服务器），并发起一次
// 查询；查询到的服务条目转换为在场记录报文投递。离开通知关闭服务器。
type MDNSBeacon struct {
	service string
	iface   *net.Interface

	mu      sync.Mutex
	server  *mdns.Server
	current string

	querying atomic.Bool
	events   chan types.NetworkEvent
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

var _ Beacon = (*MDNSBeacon)(nil)

// NewMDNSBeacon 创建 mDNS 信标
func NewMDNSBeacon(service, iface string) (*MDNSBeacon, error) {
	if service == "" {
		return nil, fmt.Errorf("%w: empty mdns service name", ErrInvalidConfig)
	}
	b := &MDNSBeacon{
		service: service,
		events:  make(chan types.NetworkEvent, beaconBuffer),
		done:    make(chan struct{}),
	}
	if iface != "" {
		ifi, err := net.InterfaceByName(iface)
		if err != nil {
			return nil, fmt.Errorf("lookup interface %s: %w", iface, err)
		}
		b.iface = ifi
	}
	return b, nil
}

// Events 实现 Beacon
func (b *MDNSBeacon) Events() <-chan types.NetworkEvent {
	return b.events
}

// Announce 实现 Beacon
func (b *MDNSBeacon) Announce(p *Presence) error {
	select {
	case <-b.done:
		return ErrBeaconClosed
	default:
	}

	if p.Departing {
		b.mu.Lock()
		b.stopServerLocked()
		b.mu.Unlock()
		return nil
	}

	txt := buildTXTRecords(p.Peer, p.Addrs)
	sig := strings.Join(txt, "\n")

	b.mu.Lock()
	if sig != b.current || b.server == nil {
		b.stopServerLocked()
		if err := b.startServerLocked(p, txt); err != nil {
			b.mu.Unlock()
			return err
		}
		b.current = sig
	}
	b.mu.Unlock()

	b.query()
	return nil
}

func (b *MDNSBeacon) startServerLocked(p *Presence, txt []string) error {
	ips, port := serviceEndpoint(p.Addrs)
	if len(ips) == 0 {
		ips = localIPv4s(b.iface)
	}
	if len(ips) == 0 {
		ips = []net.IP{net.IPv4(127, 0, 0, 1)}
	}

	svc, err := mdns.NewMDNSService(p.Peer.String(), b.service, "", "", port, ips, txt)
	if err != nil {
		return fmt.Errorf("create mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: svc, Iface: b.iface})
	if err != nil {
		return fmt.Errorf("start mdns server: %w", err)
	}
	b.server = server
	log.Debug("mDNS 服务已发布", "service", b.service, "port", port, "ips", ips)
	return nil
}

func (b *MDNSBeacon) stopServerLocked() {
	if b.server != nil {
		_ = b.server.Shutdown()
		b.server = nil
	}
	b.current = ""
}

// query 发起一次查询；上一次查询未结束时跳过
func (b *MDNSBeacon) query() {
	if !b.querying.CompareAndSwap(false, true) {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.querying.Store(false)

		entries := make(chan *mdns.ServiceEntry, 16)
		collected := make(chan struct{})
		go func() {
			defer close(collected)
			for e := range entries {
				b.handleEntry(e)
			}
		}()

		params := mdns.DefaultParams(b.service)
		params.Entries = entries
		params.Timeout = mdnsQueryTimeout
		params.Interface = b.iface
		params.DisableIPv6 = true
		if err := mdns.Query(params); err != nil {
			log.Debug("mDNS 查询失败", "err", err)
		}
		close(entries)
		<-collected
	}()
}

// handleEntry 把服务条目转换为在场记录报文
func (b *MDNSBeacon) handleEntry(e *mdns.ServiceEntry) {
	if e == nil {
		return
	}
	p, err := presenceFromTXT(e.InfoFields)
	if err != nil {
		log.Debug("忽略无法解析的 mDNS 条目", "name", e.Name, "err", err)
		return
	}
	if len(p.Addrs) == 0 && e.AddrV4 != nil && e.Port > 0 {
		if a, err := manet.FromNetAddr(&net.TCPAddr{IP: e.AddrV4, Port: e.Port}); err == nil {
			p.Addrs = append(p.Addrs, a)
		}
	}

	select {
	case b.events <- packetEvent(p.Marshal(), nil):
	case <-b.done:
	}
}

// Close 实现 Beacon
func (b *MDNSBeacon) Close() error {
	b.once.Do(func() {
		close(b.done)
		b.mu.Lock()
		b.stopServerLocked()
		b.mu.Unlock()
		b.wg.Wait()
	})
	return nil
}

// ============================================================================
//                              TXT 记录
// ============================================================================

// buildTXTRecords 构建 TXT 记录
//
// 始终包含 "id=<peer>"；地址用多条 "addrs=" 分片发布，每条不超过 255 字节。
func buildTXTRecords(peer types.PeerID, addrs []ma.Multiaddr) []string {
	txt := []string{txtIDPrefix + peer.String()}

	cur := txtAddrsPrefix
	flush := func() {
		if cur != txtAddrsPrefix {
			txt = append(txt, cur)
		}
		cur = txtAddrsPrefix
	}
	for _, a := range addrs {
		s := a.String()
		if len(txtAddrsPrefix)+len(s) > txtMaxLen {
			continue
		}
		next := s
		if cur != txtAddrsPrefix {
			next = "," + s
		}
		if len(cur)+len(next) > txtMaxLen {
			flush()
			next = s
		}
		cur += next
	}
	flush()
	return txt
}

// presenceFromTXT 解析 TXT 记录，多条 addrs= 聚合
func presenceFromTXT(fields []string) (*Presence, error) {
	p := &Presence{}
	seen := make(map[string]struct{})
	for _, f := range fields {
		switch {
		case strings.HasPrefix(f, txtIDPrefix):
			peer, err := types.ParsePeerID(strings.TrimPrefix(f, txtIDPrefix))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
			}
			p.Peer = peer
		case strings.HasPrefix(f, txtAddrsPrefix):
			for _, s := range strings.Split(strings.TrimPrefix(f, txtAddrsPrefix), ",") {
				if s == "" {
					continue
				}
				if _, dup := seen[s]; dup {
					continue
				}
				a, err := ma.NewMultiaddr(s)
				if err != nil {
					continue
				}
				seen[s] = struct{}{}
				p.Addrs = append(p.Addrs, a)
			}
		}
	}
	if p.Peer.IsEmpty() {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}
	return p, nil
}

// serviceEndpoint 从监听地址提取可发布的 IPv4 地址和 TCP 端口
func serviceEndpoint(addrs []ma.Multiaddr) ([]net.IP, int) {
	var ips []net.IP
	port := 0
	for _, a := range addrs {
		ip, err := manet.ToIP(a)
		if err != nil || ip.To4() == nil || ip.IsUnspecified() {
			continue
		}
		ips = append(ips, ip)
		if port == 0 {
			if v, err := a.ValueForProtocol(ma.P_TCP); err == nil {
				port, _ = strconv.Atoi(v)
			}
		}
	}
	return ips, port
}

// localIPv4s 返回活动网卡上的非回环 IPv4 地址
func localIPv4s(only *net.Interface) []net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []net.IP
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		if only != nil && ifi.Name != only.Name {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil || ipNet.IP.IsLinkLocalUnicast() {
				continue
			}
			out = append(out, ipNet.IP)
		}
	}
	return out
}
