// Package main 提供 floodnet 局域网聊天命令行入口
//
// 用法：
//
//	floodnet [flags] [dial-addr]
//
// 标准输入的每一行发布到所有配置主题，收到的消息打印为
// "Received: '<data>' from <peer>"。
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-floodnet"
	"github.com/dep2p/go-floodnet/internal/util/logger"
	"github.com/dep2p/go-floodnet/pkg/types"
)

var log = logger.Logger("cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
var (
	configFile   = flag.String("config", "", "配置文件路径（.json / .yaml）")
	listenAddr   = flag.String("listen", "", "监听地址（默认 /ip4/0.0.0.0/tcp/0）")
	topics       = flag.String("topic", "", "订阅并发布的主题，逗号分隔（默认 chat）")
	identityFile = flag.String("identity", "", "身份密钥文件路径")
	discovery    = flag.String("discovery", "", "发现方式: multicast / mdns / off")
	metricsAddr  = flag.String("metrics", "", "/metrics HTTP 监听地址（如 127.0.0.1:9100）")
	logLevel     = flag.String("log-level", "", "日志级别: debug / info / warn / error")
	logFile      = flag.String("log", "", "日志文件路径（默认输出到 stderr）")
	showVersion  = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(floodnet.VersionInfo())
		return nil
	}

	closeLog, err := setupLogging()
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := buildConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}
	if addr := flag.Arg(0); addr != "" {
		cfg.Bootstrap = append(cfg.Bootstrap, addr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	node, err := floodnet.Start(ctx, floodnet.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() { _ = node.Close() }()

	fmt.Printf("Local peer id: %s\n", node.ID())
	log.Info("节点已启动", "version", floodnet.Version, "topics", cfg.PubSub.Topics)

	g, ctx := errgroup.WithContext(ctx)

	if reg := node.Registry(); reg != nil && cfg.Metrics.ListenAddr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("指标服务已启动", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// 事件循环
	g.Go(func() error {
		err := node.Run(ctx, printEvent)
		stop()
		return err
	})

	// 标准输入的 Scan 无法被取消，读到 EOF 之前不计入 errgroup
	go readStdin(ctx, node, cfg.PubSub.Topics)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("事件循环终止: %w", err)
	}
	return nil
}

// printEvent 打印应用层通知
func printEvent(ev types.Event) error {
	switch e := ev.(type) {
	case types.MessageReceived:
		fmt.Printf("Received: '%s' from %s\n", e.Message.Data, e.Message.Source)
	case types.NewListenAddr:
		fmt.Printf("Listening on %s\n", e.Addr)
	case types.PeerDiscovered:
		log.Info("发现节点", "peer", e.Peer, "addrs", e.Addrs)
	case types.PeerExpired:
		log.Info("节点过期", "peer", e.Peer)
	case types.PeerSubscribed:
		log.Debug("对端订阅", "peer", e.Peer, "topic", e.Topic)
	case types.PeerUnsubscribed:
		log.Debug("对端取消订阅", "peer", e.Peer, "topic", e.Topic)
	}
	return nil
}

// readStdin 把每一行发布到所有主题
func readStdin(ctx context.Context, node *floodnet.Node, topics []string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := node.PublishMany(ctx, topics, []byte(line)); err != nil {
			if ctx.Err() == nil {
				log.Warn("发布失败", "err", err)
			}
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn("读取标准输入失败", "err", err)
	}
}
