package noise

import "errors"

var (
	// ErrPeerIDMismatch 对端身份与期望不符
	ErrPeerIDMismatch = errors.New("noise: peer id mismatch")
	// ErrInvalidSignature 静态密钥未被身份密钥签名
	ErrInvalidSignature = errors.New("noise: invalid static key signature")
	// ErrInvalidPayload 握手 payload 无法解析
	ErrInvalidPayload = errors.New("noise: invalid handshake payload")
)
