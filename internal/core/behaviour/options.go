package behaviour

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-floodnet/internal/core/metrics"
)

const (
	// DefaultTickInterval 内务计时器默认周期
	DefaultTickInterval = time.Second

	// DefaultNotifyQueueSize 待取通知队列默认容量
	DefaultNotifyQueueSize = 1024

	// DefaultInputBuffer 本地输入通道默认缓冲
	DefaultInputBuffer = 256
)

// Option 分发器选项
type Option func(*Dispatcher)

// WithClock 设置时钟（测试中使用 clock.NewMock）
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithTickInterval 设置内务计时器周期
func WithTickInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.tickInterval = interval
		}
	}
}

// WithNotifyQueueSize 设置待取通知队列容量，满时丢弃最旧的通知
func WithNotifyQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.notifyCap = n
		}
	}
}

// WithInputBuffer 设置本地输入通道缓冲
func WithInputBuffer(n int) Option {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.inputBuffer = n
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}
