// Package types 定义 floodnet 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 floodnet 内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - ids.go      - PeerID, Topic, ProtocolID
//   - message.go  - Message, MessageID
//   - events.go   - 应用层通知事件（MessageReceived、PeerDiscovered 等）
//   - network.go  - 传输层事件（NetworkEvent）与连接方向
package types
