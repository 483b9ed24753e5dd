//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package discovery

import "syscall"

// reuseControl 在不支持 SO_REUSEPORT 的平台上不做处理
func reuseControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
