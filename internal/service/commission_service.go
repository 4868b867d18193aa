package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/mlm_go_server/internal/model"
	"github.com/qs3c/mlm_go_server/internal/pkg/logger"
	"github.com/qs3c/mlm_go_server/internal/pkg/metrics"
	"github.com/qs3c/mlm_go_server/internal/repository"
)

var (
	ErrPaymentNotFound     = errors.New("支付记录不存在")
	ErrPaymentNotConfirmed = errors.New("支付尚未确认")
)

// 分配失败原因，对应 allocation_failures_total 的 reason 标签
const (
	FailureReasonCycle       = "cycle"
	FailureReasonTierMissing = "tier_missing"
	FailureReasonStorage     = "storage"
)

// PlanCommissions 根据等级佣金比例和上线链路生成佣金记录，不访问存储
// 记录数为 min(len(rates), len(upline))，第 i 层金额为 amount * rates[i-1] 保留两位小数
func PlanCommissions(payment *model.Payment, rates []decimal.Decimal, upline []int64) []*model.Commission {
	n := len(rates)
	if len(upline) < n {
		n = len(upline)
	}

	records := make([]*model.Commission, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, &model.Commission{
			PaymentID:   payment.ID,
			Level:       i + 1,
			RecipientID: upline[i],
			NewMemberID: payment.UserID,
			Tier:        payment.Tier,
			Rate:        rates[i],
			Amount:      payment.Amount.Mul(rates[i]).Round(2),
			Status:      model.CommissionPending,
		})
	}
	return records
}

type CommissionService struct {
	db             *gorm.DB
	paymentRepo    *repository.PaymentRepository
	tierRepo       *repository.TierRepository
	memberRepo     *repository.MemberRepository
	commissionRepo *repository.CommissionRepository
	referrals      *ReferralService
	notifier       *Notifier
	logger         *zap.Logger
}

func NewCommissionService(
	db *gorm.DB,
	paymentRepo *repository.PaymentRepository,
	tierRepo *repository.TierRepository,
	memberRepo *repository.MemberRepository,
	commissionRepo *repository.CommissionRepository,
	referrals *ReferralService,
	notifier *Notifier,
	log *zap.Logger,
) *CommissionService {
	return &CommissionService{
		db:             db,
		paymentRepo:    paymentRepo,
		tierRepo:       tierRepo,
		memberRepo:     memberRepo,
		commissionRepo: commissionRepo,
		referrals:      referrals,
		notifier:       notifier,
		logger:         logger.OrNop(log),
	}
}

// Allocate 为已确认的支付分配佣金，返回新写入的记录数
// 整个过程在一个事务内完成，失败时支付保持未分配状态以便重试
func (s *CommissionService) Allocate(ctx context.Context, paymentID string) (int, error) {
	var created []*model.Commission

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.paymentRepo.WithTx(tx).GetByIDForUpdate(paymentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}
		if payment.Status != model.PaymentConfirmed {
			return ErrPaymentNotConfirmed
		}
		if payment.CommissionsProcessed {
			return nil
		}

		tier, err := s.tierRepo.WithTx(tx).GetByName(payment.Tier)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrTierNotFound, payment.Tier)
			}
			return err
		}

		upline, err := s.referrals.resolveUpline(s.memberRepo.WithTx(tx), payment.UserID, tier.MaxDepth())
		if err != nil {
			return err
		}

		records := PlanCommissions(payment, tier.Commissions, upline)
		repo := s.commissionRepo.WithTx(tx)
		inserted, err := repo.CreateBatch(records)
		if err != nil {
			return err
		}
		if int(inserted) != len(records) {
			// 部分层级已存在，只通知实际写入的记录
			s.logger.Warn("commission levels already present",
				zap.String("payment_id", paymentID),
				zap.Int("planned", len(records)),
				zap.Int64("inserted", inserted),
			)
			records = nil
		}

		if err := s.paymentRepo.WithTx(tx).MarkCommissionsProcessed(paymentID); err != nil {
			return err
		}

		created = records
		return nil
	})
	if err != nil {
		s.recordFailure(paymentID, err)
		return 0, err
	}

	if len(created) > 0 {
		s.logger.Info("commissions allocated",
			zap.String("payment_id", paymentID),
			zap.Int("records", len(created)),
		)
		s.notifier.CommissionsCreated(ctx, created)
	}
	return len(created), nil
}

func (s *CommissionService) recordFailure(paymentID string, err error) {
	switch {
	case errors.Is(err, ErrPaymentNotConfirmed), errors.Is(err, ErrPaymentNotFound):
		return
	case errors.Is(err, ErrReferralCycle):
		metrics.AllocationFailures.WithLabelValues(FailureReasonCycle).Inc()
	case errors.Is(err, ErrTierNotFound):
		metrics.AllocationFailures.WithLabelValues(FailureReasonTierMissing).Inc()
	default:
		metrics.AllocationFailures.WithLabelValues(FailureReasonStorage).Inc()
	}
	s.logger.Error("commission allocation failed", zap.String("payment_id", paymentID), zap.Error(err))
}

// ListUnprocessed 已确认但佣金未分配的支付
func (s *CommissionService) ListUnprocessed(limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.paymentRepo.ListUnprocessedConfirmed(limit)
}

// SweepUnprocessed 补偿任务：逐笔重新分配，单笔失败不影响其他支付
func (s *CommissionService) SweepUnprocessed(ctx context.Context, limit int) (int, error) {
	payments, err := s.ListUnprocessed(limit)
	if err != nil {
		return 0, err
	}

	allocated := 0
	for _, p := range payments {
		if ctx.Err() != nil {
			return allocated, ctx.Err()
		}
		if _, err := s.Allocate(ctx, p.ID); err != nil {
			continue
		}
		allocated++
	}

	if len(payments) > 0 {
		s.logger.Info("allocation sweep finished",
			zap.Int("candidates", len(payments)),
			zap.Int("allocated", allocated),
		)
	}
	return allocated, nil
}
