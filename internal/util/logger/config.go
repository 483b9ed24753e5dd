package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// 环境变量
const (
	EnvLogLevel     = "FLOODNET_LOG_LEVEL"
	EnvLogFormat    = "FLOODNET_LOG_FORMAT"
	EnvLogAddSource = "FLOODNET_LOG_ADD_SOURCE"
)

// LogFormat 日志输出格式
type LogFormat int

const (
	// FormatText 文本格式（默认）
	FormatText LogFormat = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
type Config struct {
	// DefaultLevel 默认日志级别
	DefaultLevel slog.Level

	// SubsystemLevels 各子系统的日志级别
	SubsystemLevels map[string]slog.Level

	// Format 输出格式
	Format LogFormat

	// AddSource 是否添加源码位置
	AddSource bool
}

// LevelForSubsystem 获取指定子系统的日志级别
func (c *Config) LevelForSubsystem(subsystem string) slog.Level {
	if level, ok := c.SubsystemLevels[subsystem]; ok {
		return level
	}
	return c.DefaultLevel
}

var (
	configCache *Config
	configOnce  sync.Once
)

// ConfigFromEnv 从环境变量解析配置（结果缓存）
//
//   - FLOODNET_LOG_LEVEL: 子系统=级别,子系统=级别,默认级别
//   - FLOODNET_LOG_FORMAT: text 或 json
//   - FLOODNET_LOG_ADD_SOURCE: true 或 false
func ConfigFromEnv() *Config {
	configOnce.Do(func() {
		configCache = parseConfig(os.Getenv)
	})
	return configCache
}

func parseConfig(getenv func(string) string) *Config {
	cfg := &Config{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
		Format:          FormatText,
	}

	if levelStr := getenv(EnvLogLevel); levelStr != "" {
		parseLevelConfig(cfg, levelStr)
	}

	if strings.EqualFold(getenv(EnvLogFormat), "json") {
		cfg.Format = FormatJSON
	}

	if s := getenv(EnvLogAddSource); s != "" {
		cfg.AddSource = s != "false" && s != "0"
	}

	return cfg
}

// parseLevelConfig 解析 subsystem=level,subsystem=level,defaultLevel
func parseLevelConfig(cfg *Config, levelStr string) {
	for _, part := range strings.Split(levelStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if subsystem, levelName, ok := strings.Cut(part, "="); ok {
			if level, err := ParseLevel(strings.TrimSpace(levelName)); err == nil {
				cfg.SubsystemLevels[strings.TrimSpace(subsystem)] = level
			}
			continue
		}
		if level, err := ParseLevel(part); err == nil {
			cfg.DefaultLevel = level
		}
	}
}

// ParseLevel 解析日志级别名称
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// ResetConfig 重置配置缓存（仅用于测试）
func ResetConfig() {
	configOnce = sync.Once{}
	configCache = nil
}
