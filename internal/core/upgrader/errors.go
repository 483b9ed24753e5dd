package upgrader

import "errors"

var (
	// ErrNilIdentity 未提供身份
	ErrNilIdentity = errors.New("upgrader: identity is nil")
	// ErrProtocolMismatch 协商结果不在本地支持的协议中
	ErrProtocolMismatch = errors.New("upgrader: negotiated unsupported protocol")
)
