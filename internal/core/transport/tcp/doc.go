// Package tcp 提供基于 TCP 的传输层
//
// 地址使用 multiaddr 表示（/ip4/<ip>/tcp/<port> 或 /ip6/...）。
// 监听与拨号通过 go-multiaddr/net 完成，连接默认启用 NoDelay 与 KeepAlive。
package tcp
