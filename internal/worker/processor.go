package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/mlm_go_server/internal/pkg/logger"
	"github.com/qs3c/mlm_go_server/internal/pkg/queue"
	"github.com/qs3c/mlm_go_server/internal/service"
)

const popTimeout = 5 * time.Second

// Allocator 佣金分配
type Allocator interface {
	Allocate(ctx context.Context, paymentID string) (int, error)
}

// Requeuer 把失败的任务放回队列，放弃的任务进入死信
type Requeuer interface {
	Push(ctx context.Context, msg *queue.AllocationMessage) error
	DeadLetter(ctx context.Context, msg *queue.AllocationMessage) error
}

// Processor 佣金分配重试任务处理器
type Processor struct {
	allocator   Allocator
	queue       Requeuer
	maxAttempts int
	logger      *zap.Logger
}

// NewProcessor 创建任务处理器
func NewProcessor(allocator Allocator, requeuer Requeuer, maxAttempts int, log *zap.Logger) *Processor {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Processor{
		allocator:   allocator,
		queue:       requeuer,
		maxAttempts: maxAttempts,
		logger:      logger.OrNop(log),
	}
}

// permanent 重试也不会成功的错误，交给定时补偿或人工处理
func permanent(err error) bool {
	return errors.Is(err, service.ErrReferralCycle) ||
		errors.Is(err, service.ErrPaymentNotConfirmed) ||
		errors.Is(err, service.ErrPaymentNotFound) ||
		errors.Is(err, service.ErrTierNotFound)
}

// Process 处理一条分配任务，临时错误重新入队直到达到最大次数
func (p *Processor) Process(ctx context.Context, msg *queue.AllocationMessage) error {
	log := p.logger.With(zap.String("payment_id", msg.PaymentID), zap.Int("attempt", msg.Attempt))

	created, err := p.allocator.Allocate(ctx, msg.PaymentID)
	if err == nil {
		log.Info("allocation retry succeeded", zap.Int("created", created))
		return nil
	}

	if permanent(err) || msg.Attempt >= p.maxAttempts {
		log.Error("allocation retry abandoned", zap.Int("max_attempts", p.maxAttempts), zap.Error(err))
		dead := &queue.AllocationMessage{PaymentID: msg.PaymentID, Attempt: msg.Attempt, LastError: err.Error()}
		if qerr := p.queue.DeadLetter(ctx, dead); qerr != nil {
			log.Error("failed to dead-letter allocation", zap.Error(qerr))
		}
		return err
	}

	next := &queue.AllocationMessage{
		PaymentID: msg.PaymentID,
		Attempt:   msg.Attempt + 1,
		LastError: err.Error(),
	}
	if qerr := p.queue.Push(ctx, next); qerr != nil {
		return fmt.Errorf("failed to requeue payment %s: %w", msg.PaymentID, qerr)
	}
	log.Warn("allocation requeued", zap.Int("next_attempt", next.Attempt), zap.Error(err))
	return err
}

// Run 启动 workers 个消费协程，ctx 取消后返回
func (p *Processor) Run(ctx context.Context, q *queue.Queue, workers int) {
	if workers <= 0 {
		workers = 1
	}

	done := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		go func(workerID int) {
			defer func() { done <- struct{}{} }()
			p.loop(ctx, q, workerID)
		}(i)
	}
	for i := 0; i < workers; i++ {
		<-done
	}
}

func (p *Processor) loop(ctx context.Context, q *queue.Queue, workerID int) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker shutting down", zap.Int("worker", workerID))
			return
		default:
		}

		msg, err := q.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("failed to pop allocation message", zap.Int("worker", workerID), zap.Error(err))
			continue
		}
		if msg == nil {
			continue // 超时，继续等待
		}

		_ = p.Process(ctx, msg)
	}
}
