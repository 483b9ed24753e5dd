package identity

import "errors"

var (
	// ErrInvalidPEM 无效的 PEM 数据
	ErrInvalidPEM = errors.New("invalid PEM data")
	// ErrUnsupportedKeyType 不支持的密钥类型
	ErrUnsupportedKeyType = errors.New("unsupported key type")
	// ErrKeyNotFound 密钥文件不存在
	ErrKeyNotFound = errors.New("key not found")
	// ErrInvalidKeySize 密钥长度错误
	ErrInvalidKeySize = errors.New("invalid key size")
)
