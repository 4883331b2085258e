package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"vandaq/internal/admin/db"
	"vandaq/internal/admin/router"
	"vandaq/internal/pkg"
)

func main() {
	configDir := flag.String("config", "config", "配置目录")
	flag.Parse()

	config, err := pkg.LoadAdminConfig(*configDir)
	if err != nil {
		fmt.Printf("[main] 加载配置失败: %s\n", err)
		os.Exit(1)
	}

	log := pkg.NewLogger(config.Log)
	log.Info("管理面启动", zap.String("listen", config.Listen))

	// 初始化 MongoDB 连接
	if err := db.InitMongoDB(config.MongoURI, config.Database); err != nil {
		log.Error("无法初始化 MongoDB", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if err := db.CloseMongoDB(); err != nil {
			log.Error("关闭 MongoDB 连接失败", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:    config.Listen,
		Handler: router.SetupRouter(),
	}

	// 优雅地启动和关闭服务器
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("管理面服务启动失败", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("正在关闭管理面服务")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("管理面服务关闭失败", zap.Error(err))
	}
}
