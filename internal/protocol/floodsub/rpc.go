package floodsub

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-floodnet/pkg/types"
)

// RPC 一个帧承载的协议数据
type RPC struct {
	Subscriptions []SubOpts
	Publish       []*types.Message
}

// SubOpts 订阅宣告
type SubOpts struct {
	Subscribe bool
	Topic     types.Topic

	// Peer 宣告者，可为空
	Peer types.PeerID
}

// 字段号
const (
	fieldRPCSubscriptions protowire.Number = 1
	fieldRPCPublish       protowire.Number = 2

	fieldSubSubscribe protowire.Number = 1
	fieldSubTopic     protowire.Number = 2
	fieldSubPeer      protowire.Number = 3

	fieldMsgFrom   protowire.Number = 1
	fieldMsgSeqno  protowire.Number = 2
	fieldMsgData   protowire.Number = 3
	fieldMsgTopics protowire.Number = 4
)

// ============================================================================
//                              编码
// ============================================================================

// Marshal 编码 RPC
func (r *RPC) Marshal() []byte {
	var b []byte
	for _, s := range r.Subscriptions {
		b = protowire.AppendTag(b, fieldRPCSubscriptions, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalSubOpts(s))
	}
	for _, m := range r.Publish {
		b = protowire.AppendTag(b, fieldRPCPublish, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalMessage(m))
	}
	return b
}

func marshalSubOpts(s SubOpts) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldSubSubscribe, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(s.Subscribe))
	b = protowire.AppendTag(b, fieldSubTopic, protowire.BytesType)
	b = protowire.AppendString(b, string(s.Topic))
	if !s.Peer.IsEmpty() {
		b = protowire.AppendTag(b, fieldSubPeer, protowire.BytesType)
		b = protowire.AppendBytes(b, s.Peer.Bytes())
	}
	return b
}

func marshalMessage(m *types.Message) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldMsgFrom, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Source.Bytes())
	b = protowire.AppendTag(b, fieldMsgSeqno, protowire.VarintType)
	b = protowire.AppendVarint(b, m.Seqno)
	b = protowire.AppendTag(b, fieldMsgData, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Data)
	for _, t := range m.Topics {
		b = protowire.AppendTag(b, fieldMsgTopics, protowire.BytesType)
		b = protowire.AppendString(b, string(t))
	}
	return b
}

// ============================================================================
//                              解码
// ============================================================================

// UnmarshalRPC 解码 RPC
//
// 未知字段被跳过。
func UnmarshalRPC(b []byte) (*RPC, error) {
	r := &RPC{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case fieldRPCSubscriptions:
			s, err := unmarshalSubOpts(v)
			if err != nil {
				return err
			}
			r.Subscriptions = append(r.Subscriptions, s)
		case fieldRPCPublish:
			m, err := unmarshalMessage(v)
			if err != nil {
				return err
			}
			r.Publish = append(r.Publish, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func unmarshalSubOpts(b []byte) (SubOpts, error) {
	var s SubOpts
	var hasTopic bool
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == fieldSubSubscribe && typ == protowire.VarintType:
			s.Subscribe = protowire.DecodeBool(x)
		case num == fieldSubTopic && typ == protowire.BytesType:
			s.Topic = types.Topic(v)
			hasTopic = true
		case num == fieldSubPeer && typ == protowire.BytesType:
			p, err := types.PeerIDFromBytes(v)
			if err != nil {
				return fmt.Errorf("%w: subscription peer: %v", ErrMalformedRPC, err)
			}
			s.Peer = p
		}
		return nil
	})
	if err != nil {
		return SubOpts{}, err
	}
	if !hasTopic || s.Topic == "" {
		return SubOpts{}, fmt.Errorf("%w: subscription without topic", ErrMalformedRPC)
	}
	return s, nil
}

func unmarshalMessage(b []byte) (*types.Message, error) {
	m := &types.Message{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == fieldMsgFrom && typ == protowire.BytesType:
			p, err := types.PeerIDFromBytes(v)
			if err != nil {
				return fmt.Errorf("%w: message source: %v", ErrMalformedRPC, err)
			}
			m.Source = p
		case num == fieldMsgSeqno && typ == protowire.VarintType:
			m.Seqno = x
		case num == fieldMsgData && typ == protowire.BytesType:
			m.Data = append([]byte(nil), v...)
		case num == fieldMsgTopics && typ == protowire.BytesType:
			m.Topics = append(m.Topics, types.Topic(v))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if m.Source.IsEmpty() {
		return nil, fmt.Errorf("%w: message without source", ErrMalformedRPC)
	}
	if len(m.Topics) == 0 {
		return nil, fmt.Errorf("%w: message without topics", ErrMalformedRPC)
	}
	return m, nil
}

// walk 依次回调每个字段；bytes 字段传 v，varint 字段传 x
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedRPC, protowire.ParseError(n))
		}
		b = b[n:]

		var (
			v []byte
			x uint64
		)
		switch typ {
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(b)
		case protowire.VarintType:
			x, n = protowire.ConsumeVarint(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedRPC, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(num, typ, v, x); err != nil {
			return err
		}
	}
	return nil
}
