// Package floodnet 提供局域网泛洪发布订阅节点
//
// 节点由三部分组成：
//
//   - 行为分发器：单 goroutine 事件循环，把传输层事件路由给子协议
//   - Floodsub：按主题泛洪消息，基于 (来源, 序号) 去重并转发
//   - Discovery：组播 / mDNS 存在宣告，记录过期后通知 Floodsub
//
// # 快速开始
//
//	node, err := floodnet.New(
//	    floodnet.WithListenAddrs("/ip4/0.0.0.0/tcp/0"),
//	    floodnet.WithTopics("chat"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// 事件循环：所有状态变更都在调用 Next 的 goroutine 中执行
//	go node.Run(ctx, func(ev types.Event) error {
//	    if m, ok := ev.(types.MessageReceived); ok {
//	        fmt.Printf("Received: '%s' from %s\n", m.Message.Data, m.Message.Source)
//	    }
//	    return nil
//	})
//
//	_ = node.Publish(ctx, "chat", []byte("hello"))
//
// # 并发模型
//
// Publish、Subscribe、Dial 等命令只是把闭包提交到事件循环，
// 由正在执行 Next 或 Run 的 goroutine 依次执行。没有 goroutine 驱动事件循环时，
// 命令在输入缓冲满后阻塞；查询类方法（如 PartialView）会一直等到被执行。
//
// # 文件组织
//
//	floodnet/
//	├── floodnet.go        # 版本信息、Start 便捷入口
//	├── options.go         # 用户选项
//	├── fx.go              # Fx 模块装配
//	├── node.go            # Node 结构定义、New()、基本信息
//	├── node_lifecycle.go  # Start、Next、Run、Close
//	├── node_pubsub.go     # Publish、Subscribe、PartialView
//	└── node_connect.go    # Dial、已连接 / 已发现节点
package floodnet
