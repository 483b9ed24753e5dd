package floodnet

import "errors"

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 节点生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 节点未启动
	ErrNotStarted = errors.New("node not started")

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("node already started")

	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("node closed")

	// ────────────────────────────────────────────────────────────────────────
	// 参数错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrInvalidOption 无效选项
	ErrInvalidOption = errors.New("invalid option")

	// ErrEmptyTopic 主题为空
	ErrEmptyTopic = errors.New("empty topic")

	// ErrDiscoveryDisabled 未启用发现
	ErrDiscoveryDisabled = errors.New("discovery disabled")
)
