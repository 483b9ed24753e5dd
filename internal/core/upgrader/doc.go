// Package upgrader 将原始连接升级为加密、多路复用的连接
//
// 升级流程：
//  1. multistream-select 协商安全协议（/noise）
//  2. Noise XX 握手，确定对端 PeerID
//  3. multistream-select 协商多路复用协议（/yamux/1.0.0）
//  4. 建立 yamux 会话
//
// 协商与握手共享一个截止时间，超时即关闭原始连接。
package upgrader
