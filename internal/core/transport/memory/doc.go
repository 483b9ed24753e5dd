// Package memory 提供进程内的传输实现
//
// 多个节点共享一个 Network，彼此之间的连接、帧与断开都以同步、确定的
// 方式转换为网络事件。每个节点分配一个 /ip4/127.0.0.1/tcp/<port> 形式的
// 合成地址，可以像真实地址一样被宣告和拨号。
//
// Transport 记录所有成功发出的帧，便于断言发送次数。
package memory
