package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/qs3c/mlm_go_server/config"
	"github.com/qs3c/mlm_go_server/internal/app"
	"github.com/qs3c/mlm_go_server/internal/database"
	"github.com/qs3c/mlm_go_server/internal/pkg/logger"
	"github.com/qs3c/mlm_go_server/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	// 初始化数据库
	db, err := database.Open(&cfg.Database)
	if err != nil {
		zlog.Fatal("failed to connect database", zap.Error(err))
	}
	zlog.Info("database connected", zap.String("driver", cfg.Database.Driver))

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		zlog.Fatal("failed to connect redis", zap.Error(err))
	}
	zlog.Info("redis connected")

	services := app.NewServices(cfg, db, rdb, zlog)

	// 创建分配处理器，失败的消息回推到同一队列
	processor := worker.NewProcessor(services.Commissions, services.Queue, cfg.Queue.MaxAttempts, zlog)

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		zlog.Info("received shutdown signal")
		cancel()
	}()

	zlog.Info("worker started",
		zap.String("queue", cfg.Queue.AllocationQueue),
		zap.Int("max_workers", cfg.Queue.MaxWorkers),
		zap.Int("max_attempts", cfg.Queue.MaxAttempts),
	)

	processor.Run(ctx, services.Queue, cfg.Queue.MaxWorkers)
	zlog.Info("worker shutdown complete")
}
