// Package swarm 管理监听器与连接，并把网络活动转换为事件
//
// Swarm 拥有所有监听器、已升级的连接以及其上的流。后台 goroutine
// （accept 循环、握手、流读写）只通过 Events() 通道与事件循环通信：
//
//   - ConnectionOpened / ConnectionClosed
//   - FrameReceived：入站流上的一个完整帧
//   - DialFailed：所有候选地址均拨号失败
//   - NewListenAddr / ListenerClosed
//
// 入站流在打开时通过 multistream-select 协商协议，之后每个帧为
// uvarint 长度前缀 + 数据。出站方向每个 (节点, 协议) 复用一条流，
// 由有界队列缓冲，队列满时丢弃。
package swarm
