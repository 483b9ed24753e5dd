package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	tec "github.com/jbenet/go-temp-err-catcher"
	manet "github.com/multiformats/go-multiaddr/net"
	"golang.org/x/net/ipv4"

	"github.com/dep2p/go-floodnet/pkg/types"
)

// maxPacketSize 单个报文上限
const maxPacketSize = 64 * 1024

// MulticastBeacon 基于 UDP 组播的信标
type MulticastBeacon struct {
	raw   net.PacketConn
	conn  *ipv4.PacketConn
	group *net.UDPAddr

	events chan types.NetworkEvent
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

var _ Beacon = (*MulticastBeacon)(nil)

// NewMulticastBeacon 加入组播组并开始接收
//
// group 形如 "239.255.70.78:6464"；iface 为空时加入所有支持组播的活动网卡。
func NewMulticastBeacon(group, iface string) (*MulticastBeacon, error) {
	gaddr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, fmt.Errorf("resolve multicast group: %w", err)
	}
	if !gaddr.IP.IsMulticast() {
		return nil, fmt.Errorf("%w: %s is not a multicast address", ErrInvalidConfig, group)
	}

	ifaces, err := multicastInterfaces(iface)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{Control: reuseControl}
	raw, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(gaddr.Port)))
	if err != nil {
		return nil, fmt.Errorf("listen multicast: %w", err)
	}
	conn := ipv4.NewPacketConn(raw)

	joined := 0
	for i := range ifaces {
		if err := conn.JoinGroup(&ifaces[i], &net.UDPAddr{IP: gaddr.IP}); err != nil {
			log.Debug("加入组播组失败", "iface", ifaces[i].Name, "err", err)
			continue
		}
		joined++
	}
	if joined == 0 {
		_ = raw.Close()
		return nil, ErrNoInterface
	}

	// 仅限本地链路；回环使同机节点互相可见
	if err := conn.SetMulticastTTL(1); err != nil {
		log.Debug("设置组播 TTL 失败", "err", err)
	}
	if err := conn.SetMulticastLoopback(true); err != nil {
		log.Debug("开启组播回环失败", "err", err)
	}
	if iface != "" {
		if err := conn.SetMulticastInterface(&ifaces[0]); err != nil {
			log.Debug("设置组播出口网卡失败", "iface", iface, "err", err)
		}
	}

	b := &MulticastBeacon{
		raw:    raw,
		conn:   conn,
		group:  gaddr,
		events: make(chan types.NetworkEvent, beaconBuffer),
		done:   make(chan struct{}),
	}
	b.wg.Add(1)
	go b.readLoop()

	log.Info("组播信标已启动", "group", gaddr, "interfaces", joined)
	return b, nil
}

// multicastInterfaces 返回可用于组播的网卡
func multicastInterfaces(name string) ([]net.Interface, error) {
	if name != "" {
		ifi, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("lookup interface %s: %w", name, err)
		}
		return []net.Interface{*ifi}, nil
	}

	all, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []net.Interface
	for _, ifi := range all {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		out = append(out, ifi)
	}
	if len(out) == 0 {
		return nil, ErrNoInterface
	}
	return out, nil
}

// Events 实现 Beacon
func (b *MulticastBeacon) Events() <-chan types.NetworkEvent {
	return b.events
}

// Announce 实现 Beacon
func (b *MulticastBeacon) Announce(p *Presence) error {
	select {
	case <-b.done:
		return ErrBeaconClosed
	default:
	}
	data := p.Marshal()
	if len(data) > maxPacketSize {
		return fmt.Errorf("%w: record too large (%d bytes)", ErrMalformedRecord, len(data))
	}
	_, err := b.conn.WriteTo(data, nil, b.group)
	return err
}

func (b *MulticastBeacon) readLoop() {
	defer b.wg.Done()

	var catcher tec.TempErrCatcher
	buf := make([]byte, maxPacketSize)
	for {
		n, _, src, err := b.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-b.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if catcher.IsTemporary(err) {
				continue
			}
			log.Warn("组播读取失败", "err", err)
			return
		}

		ev := packetEvent(append([]byte(nil), buf[:n]...), nil)
		if from, err := manet.FromNetAddr(src); err == nil {
			ev.Addr = from
		}
		select {
		case b.events <- ev:
		case <-b.done:
			return
		}
	}
}

// Close 实现 Beacon
func (b *MulticastBeacon) Close() error {
	var err error
	b.once.Do(func() {
		close(b.done)
		err = b.raw.Close()
		b.wg.Wait()
	})
	return err
}
