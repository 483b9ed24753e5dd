// Package behaviour 实现网络行为分发器（事件循环）
//
// 分发器是节点唯一的调度原语。调用方循环调用 Poll，每次迭代从以下
// 就绪源中取出一个处理：
//
//   - 传输层和附加事件源的网络事件（帧、连接开关、拨号失败、发现报文）
//   - 本地输入（Submit 提交的发布、订阅、拨号等命令）
//   - 内务计时器，驱动各子协议的 Poll(now)
//
// 网络帧按打开流时协商的协议 ID 路由到声明该协议的唯一子协议；
// 连接事件发给所有子协议。子协议处理器通过 *Context 读取只读的
// 连接视图，并登记发送、拨号、断开和事件派发请求，这些请求在处理器
// 返回后按顺序执行。
//
// 子协议状态只在 Poll 的调用 goroutine 中访问，无需加锁。
//
// # 使用示例
//
//	d := behaviour.New(transport)
//	_ = d.Register(floodsub.New(...))
//	_ = d.Start(ctx)
//	for {
//	    ev, err := d.Poll(ctx)
//	    if err != nil {
//	        break
//	    }
//	    handle(ev)
//	}
package behaviour
