package floodsub

import "errors"

var (
	// ErrMalformedRPC RPC 帧无法解析
	ErrMalformedRPC = errors.New("floodsub: malformed rpc")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("floodsub: invalid config")
)
