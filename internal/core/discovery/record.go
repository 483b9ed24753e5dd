package discovery

import (
	"bytes"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-floodnet/pkg/types"
)

// magic 在场记录报文前缀
var magic = []byte("FLNP")

// 字段号
const (
	fieldPeer      protowire.Number = 1
	fieldAddrs     protowire.Number = 2
	fieldDeparting protowire.Number = 3
)

// Presence 在场记录
type Presence struct {
	Peer      types.PeerID
	Addrs     []ma.Multiaddr
	Departing bool
}

// Marshal 编码为报文
func (p *Presence) Marshal() []byte {
	b := append([]byte(nil), magic...)
	b = protowire.AppendTag(b, fieldPeer, protowire.BytesType)
	b = protowire.AppendBytes(b, p.Peer.Bytes())
	for _, a := range p.Addrs {
		b = protowire.AppendTag(b, fieldAddrs, protowire.BytesType)
		b = protowire.AppendString(b, a.String())
	}
	if p.Departing {
		b = protowire.AppendTag(b, fieldDeparting, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

// UnmarshalPresence 解码报文
//
// 无法解析的地址被跳过；节点 ID 缺失或无效时返回错误。
func UnmarshalPresence(data []byte) (*Presence, error) {
	if !bytes.HasPrefix(data, magic) {
		return nil, ErrBadMagic
	}
	b := data[len(magic):]

	p := &Presence{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldPeer && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
			}
			b = b[n:]
			peer, err := types.PeerIDFromBytes(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
			}
			p.Peer = peer

		case num == fieldAddrs && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
			}
			b = b[n:]
			addr, err := ma.NewMultiaddr(string(v))
			if err != nil {
				log.Debug("跳过无效地址", "addr", string(v), "err", err)
				continue
			}
			p.Addrs = append(p.Addrs, addr)

		case num == fieldDeparting && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
			}
			b = b[n:]
			p.Departing = protowire.DecodeBool(v)

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if p.Peer.IsEmpty() {
		return nil, fmt.Errorf("%w: missing peer", ErrMalformedRecord)
	}
	return p, nil
}
