package swarm

import "errors"

var (
	// ErrSwarmClosed swarm 已关闭
	ErrSwarmClosed = errors.New("swarm: closed")
	// ErrNotConnected 没有到该节点的连接
	ErrNotConnected = errors.New("swarm: peer not connected")
	// ErrQueueFull 出站队列已满，帧被丢弃
	ErrQueueFull = errors.New("swarm: send queue full")
	// ErrFrameTooLarge 帧超过上限
	ErrFrameTooLarge = errors.New("swarm: frame too large")
	// ErrDialSelf 拨号到自身
	ErrDialSelf = errors.New("swarm: dial to self")
	// ErrNoAddresses 没有可拨号的地址
	ErrNoAddresses = errors.New("swarm: no dialable addresses")
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("swarm: invalid config")
)
