// Package floodsub 实现基于泛洪的发布订阅协议
//
// 协议标识: /floodnet/floodsub/1.0.0
//
// # 核心功能
//
//  1. 订阅管理 (Subscribe / Unsubscribe) - 变更本地订阅并向已连接节点宣告
//  2. 消息发布 (Publish / PublishMany) - 分配序列号后发往部分视图
//  3. 消息中继 - 未见过的消息原样转发给部分视图，排除来源连接
//  4. 去重 - 按 (来源, 序列号) 记录已见消息，有界且按时间过期
//  5. 部分视图维护 - 随连接、订阅宣告和发现事件增删
//
// # 部分视图
//
// 部分视图是 主题 -> 节点集合 的映射，表示该主题需要泛洪到的节点。
// 其中的节点一定至少有一条存活连接：连接全部关闭或发现记录过期时移除。
//
// 节点以两种方式进入部分视图：
//   - 泛洪目标（发现的节点或主动拨号的节点）连接后，加入本地订阅的每个主题
//   - 远端宣告订阅某主题后，加入该主题
//
// # 使用示例
//
//	fs, err := floodsub.New(localPeer, floodsub.DefaultConfig())
//	_ = dispatcher.Register(fs)
//
//	_ = dispatcher.Submit(ctx, func(c *behaviour.Context) {
//	    fs.Subscribe(c, "chat")
//	    fs.Publish(c, "chat", []byte("hello"))
//	})
//
// Floodsub 的所有方法只能在事件循环中调用。
package floodsub
