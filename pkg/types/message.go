package types

import "fmt"

// MessageID 消息的去重标识
//
// 由 (来源节点, 序列号) 唯一确定，负载和主题不参与比较。
type MessageID struct {
	Source PeerID
	Seqno  uint64
}

// String 返回 "<source>:<seqno>"
func (id MessageID) String() string {
	return fmt.Sprintf("%s:%d", id.Source, id.Seqno)
}

// Message 泛洪消息
//
// 构造后 Topics 与 Data 不再修改；中继时原样转发。
type Message struct {
	// Source 发起节点（应用层元数据，未做签名校验）
	Source PeerID

	// Seqno 发起节点分配的序列号，单调递增，从 1 开始
	Seqno uint64

	// Topics 消息所属主题集合
	Topics []Topic

	// Data 负载
	Data []byte
}

// ID 返回消息去重标识
func (m *Message) ID() MessageID {
	return MessageID{Source: m.Source, Seqno: m.Seqno}
}

// HasTopic 检查消息是否属于指定主题
func (m *Message) HasTopic(t Topic) bool {
	for _, mt := range m.Topics {
		if mt == t {
			return true
		}
	}
	return false
}
