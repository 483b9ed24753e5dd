package discovery

import "errors"

var (
	// ErrBadMagic 报文不是在场记录
	ErrBadMagic = errors.New("discovery: bad magic")

	// ErrMalformedRecord 在场记录无法解析
	ErrMalformedRecord = errors.New("discovery: malformed presence record")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("discovery: invalid config")

	// ErrBeaconClosed 信标已关闭
	ErrBeaconClosed = errors.New("discovery: beacon closed")

	// ErrNoInterface 没有可用的组播网卡
	ErrNoInterface = errors.New("discovery: no multicast interface")
)
