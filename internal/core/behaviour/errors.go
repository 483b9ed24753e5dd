package behaviour

import "errors"

var (
	// ErrClosed 分发器已关闭
	ErrClosed = errors.New("behaviour: dispatcher closed")

	// ErrAlreadyStarted 分发器已启动
	ErrAlreadyStarted = errors.New("behaviour: dispatcher already started")

	// ErrNotStarted 分发器尚未启动
	ErrNotStarted = errors.New("behaviour: dispatcher not started")

	// ErrDuplicateProtocol 协议已被其它子协议声明
	ErrDuplicateProtocol = errors.New("behaviour: protocol already registered")

	// ErrNilBehaviour 子协议为 nil
	ErrNilBehaviour = errors.New("behaviour: nil behaviour")
)

// FatalError 致命传输错误（如监听器被销毁），事件循环随之终止
type FatalError struct {
	Err error
}

// Error 实现 error
func (e *FatalError) Error() string {
	if e.Err == nil {
		return "behaviour: fatal transport error"
	}
	return "behaviour: fatal transport error: " + e.Err.Error()
}

// Unwrap 返回原因
func (e *FatalError) Unwrap() error {
	return e.Err
}
