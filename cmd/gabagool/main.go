package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/betbot/gabagool/internal/engine"
	"github.com/betbot/gabagool/pkg/config"
	"github.com/betbot/gabagool/pkg/logger"
	"github.com/betbot/gabagool/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（.yaml/.yml）")
	dryRun := flag.Bool("dry-run", false, "纸交易模式：不发真实订单")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.DryRun = true
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		logger.Errorf("引擎初始化失败: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		logger.Errorf("引擎启动失败: %v", err)
		os.Exit(1)
	}

	mgr := shutdown.NewManager()
	mgr.OnShutdown(func(ctx context.Context) {
		if err := eng.Shutdown(ctx); err != nil {
			logger.Errorf("引擎关闭失败: %v", err)
		}
	})

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigC
	logger.Infof("收到信号 %s，开始优雅退出", sig)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	mgr.Shutdown(shutdownCtx)
}
