package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/mlm_go_server/config"
	"github.com/qs3c/mlm_go_server/internal/api"
	"github.com/qs3c/mlm_go_server/internal/api/handler"
	"github.com/qs3c/mlm_go_server/internal/app"
	"github.com/qs3c/mlm_go_server/internal/database"
	"github.com/qs3c/mlm_go_server/internal/pkg/cron"
	"github.com/qs3c/mlm_go_server/internal/pkg/logger"
	"github.com/qs3c/mlm_go_server/internal/pkg/pubsub"
	"github.com/qs3c/mlm_go_server/internal/pkg/ws"
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
	if err := database.AutoMigrate(db); err != nil {
		zlog.Fatal("failed to migrate database", zap.Error(err))
	}
	zlog.Info("database connected", zap.String("driver", cfg.Database.Driver))

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		zlog.Fatal("failed to connect redis", zap.Error(err))
	}
	zlog.Info("redis connected")

	// 初始化 Service
	services := app.NewServices(cfg, db, rdb, zlog)
	if err := services.Bootstrap(cfg, zlog); err != nil {
		zlog.Fatal("failed to bootstrap", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// WebSocket Hub 通过 Redis Pub/Sub 接收 worker 和其他实例的事件
	wsHub := ws.NewHub(zlog)
	subscriber := pubsub.NewSubscriber(rdb)
	go func() {
		if err := subscriber.Subscribe(ctx, wsHub.Dispatch); err != nil && !errors.Is(err, context.Canceled) {
			zlog.Error("event subscription stopped", zap.Error(err))
		}
	}()

	// 定时补偿任务
	scheduler := cron.NewService(
		services.Commissions,
		services.Payments,
		services.Members,
		time.Duration(cfg.Cron.AllocationSweepMinutes)*time.Minute,
		time.Duration(cfg.Cron.ExpirySweepMinutes)*time.Minute,
		zlog,
	)
	scheduler.Start()
	defer scheduler.Stop()

	// 初始化 Handler
	authHandler := handler.NewAuthHandler(services.Auth)
	userHandler := handler.NewUserHandler(services.Members, services.Referrals, services.Milestones, services.KYC)
	earningsHandler := handler.NewEarningsHandler(services.Earnings)
	referralHandler := handler.NewReferralHandler(services.Referrals)
	tierHandler := handler.NewTierHandler(services.Tiers)
	paymentHandler := handler.NewPaymentHandler(services.Payments)
	adminHandler := handler.NewAdminHandler(
		services.Members,
		services.Referrals,
		services.KYC,
		services.Earnings,
		services.Milestones,
		services.Payments,
	)
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins, zlog)

	// 初始化 Router
	router := api.NewRouter(
		authHandler,
		userHandler,
		earningsHandler,
		referralHandler,
		tierHandler,
		paymentHandler,
		adminHandler,
		websocketHandler,
		cfg,
		zlog,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	zlog.Info("received shutdown signal")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server shutdown failed", zap.Error(err))
	}
	zlog.Info("server stopped")
}
