package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dep2p/go-floodnet/config"
	"github.com/dep2p/go-floodnet/internal/util/logger"
)

// buildConfig 构建节点配置
//
// 配置优先级（从高到低）：
//  1. 命令行参数
//  2. 环境变量（FLOODNET_* 前缀）
//  3. 配置文件
//  4. 默认值
func buildConfig() (*config.Config, error) {
	var cfg *config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
	} else {
		cfg = config.NewConfig()
		config.ApplyEnv(cfg, os.Getenv)
	}

	if isFlagSet("listen") {
		cfg.Transport.ListenAddrs = splitAndTrim(*listenAddr)
	}
	if isFlagSet("topic") {
		cfg.PubSub.Topics = splitAndTrim(*topics)
	}
	if isFlagSet("identity") {
		cfg.Identity = cfg.Identity.WithKeyFile(*identityFile)
	}
	if isFlagSet("discovery") {
		switch mode := strings.ToLower(*discovery); mode {
		case "off", "none", "false":
			cfg.Discovery.Enabled = false
		default:
			cfg.Discovery.Enabled = true
			cfg.Discovery.Mode = mode
		}
	}
	if isFlagSet("metrics") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddr = *metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging 设置日志级别与输出，返回关闭函数
func setupLogging() (func(), error) {
	if *logLevel != "" {
		level, err := logger.ParseLevel(*logLevel)
		if err != nil {
			return nil, err
		}
		logger.SetGlobalLevel(level)
	}

	if *logFile == "" {
		return func() {}, nil
	}
	f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开日志文件失败: %w", err)
	}
	logger.SetOutput(f)
	return func() {
		logger.SetOutput(os.Stderr)
		_ = f.Close()
	}, nil
}

// isFlagSet 检查命令行参数是否显式设置
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
