package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"vandaq/internal/acquirer"
	"vandaq/internal/pkg"
)

// syncLog 安全地同步日志，忽略与标准输出相关的错误
func syncLog(log *zap.Logger) {
	_ = log.Sync()
}

func main() {
	configDir := flag.String("config", "config", "配置目录")
	flag.Parse()

	// 1. 加载配置
	config, err := pkg.LoadAcquirerConfig(*configDir)
	if err != nil {
		fmt.Printf("[main] 加载配置失败: %s\n", err)
		os.Exit(1)
	}

	// 2. 初始化log
	log := pkg.NewLogger(config.Log)

	log.Info("程序启动",
		zap.String("version", config.Version),
		zap.String("platform", config.Platform),
		zap.String("instrument", config.Instrument))

	// 3. 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 10)
	ctx = pkg.WithErrChan(ctx, errChan)
	ctx = pkg.WithLogger(ctx, log)

	acq, err := acquirer.New(ctx, config)
	if err != nil {
		log.Error("创建采集进程失败", zap.Error(err))
		cancel()
		syncLog(log)
		os.Exit(1)
	}

	// 4. 启动采集循环
	go func() {
		if err := acq.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- err
		}
	}()

	// 5. 主线程监听终止信号
	si := make(chan os.Signal, 1)
	signal.Notify(si, os.Interrupt, syscall.SIGTERM)
	select {
	case <-si:
		log.Info("收到退出信号，关停采集进程")
		cancel()
		time.Sleep(1 * time.Second) // 给采集循环时间冲刷
		syncLog(log)
	case bad := <-errChan:
		log.Error("致命错误，关停采集进程", zap.Error(bad))
		cancel()
		time.Sleep(1 * time.Second)
		syncLog(log)
		os.Exit(1)
	}
}
