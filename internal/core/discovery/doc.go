// Package discovery 实现局域网节点发现
//
// 协议标识: /floodnet/discovery/1.0.0（仅用于在分发器中路由信标报文）
//
// # 工作方式
//
// 每隔 Interval 通过信标广播一条在场记录 {PeerID, []Address}，同时持续
// 接收其它节点的在场记录：
//
//   - 新节点或已过期后重新出现的节点：写入发现表并派发 PeerDiscovered
//   - 已知节点：只刷新地址的最后可见时间
//   - 离开通知（departing=true）：立即移除并派发 PeerExpired
//
// 地址在 Expiry 内未被刷新即过期；节点最后一个地址过期时派发 PeerExpired。
// Expiry 必须大于 Interval，以容忍少量丢失的广播。
//
// # 信标
//
//   - MulticastBeacon: UDP 组播（默认 239.255.70.78:6464，TTL 1）
//   - MDNSBeacon: mDNS 服务 _floodnet._udp，TXT 携带 id= 与 addrs=
//   - Hub: 进程内信标，用于测试
//
// 信标把收到的报文作为 FrameReceived 事件交给分发器，由 Discovery 在事件
// 循环中解析，发现表只在事件循环中访问。
package discovery
