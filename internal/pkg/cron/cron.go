package cron

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/mlm_go_server/internal/pkg/logger"
)

// sweepBatch 每轮补偿分配处理的支付数量上限
const sweepBatch = 100

// AllocationSweeper 重新分配已确认但未处理佣金的支付
type AllocationSweeper interface {
	SweepUnprocessed(ctx context.Context, limit int) (int, error)
}

// PaymentExpirer 过期超时未支付的订单
type PaymentExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// SubscriptionDowngrader 订阅到期降级
type SubscriptionDowngrader interface {
	DowngradeExpired(ctx context.Context) (int64, error)
}

type Service struct {
	allocations        AllocationSweeper
	payments           PaymentExpirer
	subscriptions      SubscriptionDowngrader
	allocationInterval time.Duration
	expiryInterval     time.Duration
	logger             *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewService(
	allocations AllocationSweeper,
	payments PaymentExpirer,
	subscriptions SubscriptionDowngrader,
	allocationInterval, expiryInterval time.Duration,
	log *zap.Logger,
) *Service {
	if allocationInterval <= 0 {
		allocationInterval = 5 * time.Minute
	}
	if expiryInterval <= 0 {
		expiryInterval = 10 * time.Minute
	}
	return &Service{
		allocations:        allocations,
		payments:           payments,
		subscriptions:      subscriptions,
		allocationInterval: allocationInterval,
		expiryInterval:     expiryInterval,
		logger:             logger.OrNop(log),
		stopChan:           make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	s.wg.Add(2)
	go s.every(s.allocationInterval, s.SweepAllocations)
	go s.every(s.expiryInterval, s.SweepExpiry)
	s.logger.Info("cron service started",
		zap.Duration("allocation_interval", s.allocationInterval),
		zap.Duration("expiry_interval", s.expiryInterval),
	)
}

// Stop 停止定时任务，等待正在执行的任务结束
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.logger.Info("cron service stopped")
}

func (s *Service) every(interval time.Duration, task func(ctx context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			task(context.Background())
		}
	}
}

// SweepAllocations 补偿分配：webhook 时分配失败且重试队列未能完成的支付
func (s *Service) SweepAllocations(ctx context.Context) {
	if s.allocations == nil {
		return
	}
	n, err := s.allocations.SweepUnprocessed(ctx, sweepBatch)
	if err != nil {
		s.logger.Error("allocation sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("allocation sweep completed", zap.Int("allocated", n))
	}
}

// SweepExpiry 过期超时订单并降级到期会员
func (s *Service) SweepExpiry(ctx context.Context) {
	if s.payments != nil {
		if _, err := s.payments.ExpireStale(ctx); err != nil {
			s.logger.Error("payment expiry sweep failed", zap.Error(err))
		}
	}
	if s.subscriptions != nil {
		if _, err := s.subscriptions.DowngradeExpired(ctx); err != nil {
			s.logger.Error("subscription downgrade sweep failed", zap.Error(err))
		}
	}
}

// RunNow 立即执行全部任务（用于测试或手动触发）
func (s *Service) RunNow(ctx context.Context) {
	s.SweepAllocations(ctx)
	s.SweepExpiry(ctx)
}
