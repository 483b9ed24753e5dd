// Package logger 提供 floodnet 的统一日志系统
//
// 基于标准库 log/slog，支持：
//   - 按子系统配置日志级别
//   - 环境变量配置（FLOODNET_LOG_LEVEL, FLOODNET_LOG_FORMAT）
//   - 运行时调整级别（命令行 -log-level）
//
// 使用示例:
//
//	var log = logger.Logger("floodsub")
//
//	func foo() {
//	    log.Info("peer subscribed", "peer", peerID, "topic", topic)
//	    log.Debug("relay", "msg", id, "targets", n)
//	}
//
// 环境变量配置:
//
//	# 所有模块 info，floodsub 模块 debug
//	FLOODNET_LOG_LEVEL=floodsub=debug,info
//
//	# JSON 格式输出
//	FLOODNET_LOG_FORMAT=json
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	// loggers 缓存各子系统的 Logger
	loggers sync.Map // map[string]*slog.Logger

	// levels 各子系统的动态级别
	levels sync.Map // map[string]*slog.LevelVar

	// overrideMu 保护 override，SetGlobalLevel 之后新建的子系统也使用该级别
	overrideMu sync.RWMutex
	override   *slog.Level
)

// Logger 获取指定子系统的 Logger
//
// 同一子系统多次调用返回相同实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := ConfigFromEnv()
	lv := new(slog.LevelVar)
	lv.Set(cfg.LevelForSubsystem(subsystem))

	overrideMu.RLock()
	if override != nil {
		if _, explicit := cfg.SubsystemLevels[subsystem]; !explicit {
			lv.Set(*override)
		}
	}
	overrideMu.RUnlock()

	l := slog.New(newHandler(subsystem, lv, cfg))

	actual, loaded := loggers.LoadOrStore(subsystem, l)
	if !loaded {
		levels.Store(subsystem, lv)
	}
	return actual.(*slog.Logger)
}

// SetLevel 动态设置子系统的日志级别
func SetLevel(subsystem string, level slog.Level) {
	Logger(subsystem)
	if lv, ok := levels.Load(subsystem); ok {
		lv.(*slog.LevelVar).Set(level)
	}
}

// SetGlobalLevel 设置所有子系统的日志级别（包括之后创建的子系统）
//
// 环境变量中显式指定的子系统级别保持不变。
func SetGlobalLevel(level slog.Level) {
	overrideMu.Lock()
	override = &level
	overrideMu.Unlock()

	explicit := ConfigFromEnv().SubsystemLevels
	levels.Range(func(key, value any) bool {
		if _, ok := explicit[key.(string)]; !ok {
			value.(*slog.LevelVar).Set(level)
		}
		return true
	})
}

// Discard 返回丢弃所有日志的 Logger（测试用）
func Discard() *slog.Logger {
	return slog.New(DiscardHandler())
}

// SetOutput 设置全局日志输出目标
//
// 已创建的 Logger 同样会切换到新的输出。
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}
