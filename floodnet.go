package floodnet

import (
	"context"
	"fmt"
	"runtime"
)

// Version 版本号
const Version = "0.1.0"

// VersionInfo 返回版本信息
func VersionInfo() string {
	return fmt.Sprintf("floodnet %s (%s %s/%s)", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Start 创建并启动节点
//
// 等价于 New 之后调用 Start；启动失败时节点已被关闭。
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	n, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := n.Start(ctx); err != nil {
		_ = n.Close()
		return nil, err
	}
	return n, nil
}
