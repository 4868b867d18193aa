package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/mlm_go_server/config"
	"github.com/qs3c/mlm_go_server/internal/model"
	"github.com/qs3c/mlm_go_server/internal/model/dto"
	"github.com/qs3c/mlm_go_server/internal/pkg/logger"
	"github.com/qs3c/mlm_go_server/internal/pkg/queue"
	"github.com/qs3c/mlm_go_server/internal/repository"
)

// SignatureHeader 支付回调签名头，值为请求体的 HMAC-SHA256 十六进制
const SignatureHeader = "X-Payment-Signature"

var (
	ErrMemberSuspended         = errors.New("账号已被停用")
	ErrUnsupportedCurrency     = errors.New("不支持的支付币种")
	ErrInvalidWebhookSignature = errors.New("回调签名校验失败")
	ErrUnknownPaymentStatus    = errors.New("未知的支付状态")
	ErrInvalidPaymentFilter    = errors.New("无效的支付状态筛选条件")
)

// paymentTransitions 支付网关状态只能向前推进
var paymentTransitions = map[string][]string{
	model.PaymentWaiting:       {model.PaymentConfirming, model.PaymentConfirmed, model.PaymentPartiallyPaid, model.PaymentFailed, model.PaymentExpired},
	model.PaymentConfirming:    {model.PaymentConfirmed, model.PaymentPartiallyPaid, model.PaymentFailed},
	model.PaymentPartiallyPaid: {model.PaymentConfirming, model.PaymentConfirmed, model.PaymentFailed, model.PaymentExpired},
	model.PaymentConfirmed:     {model.PaymentRefunded},
}

// CanTransitionPayment 判断支付状态变更是否合法
func CanTransitionPayment(from, to string) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func isPaymentStatus(status string) bool {
	switch status {
	case model.PaymentWaiting, model.PaymentConfirming, model.PaymentConfirmed, model.PaymentPartiallyPaid,
		model.PaymentFailed, model.PaymentExpired, model.PaymentRefunded:
		return true
	}
	return false
}

// AllocationQueue 佣金分配重试队列
type AllocationQueue interface {
	Push(ctx context.Context, msg *queue.AllocationMessage) error
}

type PaymentService struct {
	db          *gorm.DB
	paymentRepo *repository.PaymentRepository
	memberRepo  *repository.MemberRepository
	tierRepo    *repository.TierRepository
	tiers       *TierService
	commissions *CommissionService
	earnings    *EarningsService
	queue       AllocationQueue
	notifier    *Notifier
	cfg         config.PaymentsConfig
	logger      *zap.Logger
}

// NewPaymentService allocationQueue 为 nil 时分配失败只依赖定时补偿
func NewPaymentService(
	db *gorm.DB,
	paymentRepo *repository.PaymentRepository,
	memberRepo *repository.MemberRepository,
	tierRepo *repository.TierRepository,
	tiers *TierService,
	commissions *CommissionService,
	earnings *EarningsService,
	allocationQueue AllocationQueue,
	notifier *Notifier,
	cfg *config.Config,
	log *zap.Logger,
) *PaymentService {
	return &PaymentService{
		db:          db,
		paymentRepo: paymentRepo,
		memberRepo:  memberRepo,
		tierRepo:    tierRepo,
		tiers:       tiers,
		commissions: commissions,
		earnings:    earnings,
		queue:       allocationQueue,
		notifier:    notifier,
		cfg:         cfg.Payments,
		logger:      logger.OrNop(log),
	}
}

// depositAddress 配置的键由 viper 统一转为小写
func (s *PaymentService) depositAddress(currency string) (string, bool) {
	for k, addr := range s.cfg.Addresses {
		if strings.EqualFold(k, currency) && addr != "" {
			return addr, true
		}
	}
	return "", false
}

func (s *PaymentService) paymentURL(id string) string {
	if s.cfg.PaymentURLBase == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.PaymentURLBase, "/") + "/" + id
}

// Create 为会员创建一笔等级购买订单
func (s *PaymentService) Create(memberID int64, req *dto.CreatePaymentRequest) (*dto.CreatePaymentResponse, error) {
	member, err := s.memberRepo.GetByID(memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	if member.Suspended {
		return nil, ErrMemberSuspended
	}

	tier, err := s.tiers.GetPurchasable(req.Tier)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(req.Currency)
	address, ok := s.depositAddress(currency)
	if !ok {
		return nil, ErrUnsupportedCurrency
	}

	ttl := s.cfg.TTLMinutes
	if ttl <= 0 {
		ttl = 60
	}

	id := uuid.NewString()
	payment := &model.Payment{
		ID:         id,
		UserID:     memberID,
		Tier:       tier.Name,
		Amount:     tier.Price.Round(2),
		Currency:   currency,
		Address:    address,
		PaymentURL: s.paymentURL(id),
		Status:     model.PaymentWaiting,
		ExpiresAt:  time.Now().Add(time.Duration(ttl) * time.Minute),
	}
	if err := s.paymentRepo.Create(payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	s.logger.Info("payment created",
		zap.String("payment_id", id),
		zap.Int64("user_id", memberID),
		zap.String("tier", tier.Name),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.String("currency", currency),
	)

	return &dto.CreatePaymentResponse{
		PaymentID:  payment.ID,
		Amount:     payment.Amount,
		Currency:   payment.Currency,
		Address:    payment.Address,
		PaymentURL: payment.PaymentURL,
		ExpiresAt:  payment.ExpiresAt,
	}, nil
}

// VerifySignature 校验回调请求体的 HMAC-SHA256 签名
func (s *PaymentService) VerifySignature(body []byte, signature string) error {
	if s.cfg.WebhookSecret == "" || signature == "" {
		return ErrInvalidWebhookSignature
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return ErrInvalidWebhookSignature
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidWebhookSignature
	}
	return nil
}

// SignPayload 生成回调签名，供测试和联调使用
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HandleWebhook 处理支付网关状态回调，重复和乱序的回调直接忽略
func (s *PaymentService) HandleWebhook(ctx context.Context, req *dto.PaymentWebhookRequest) error {
	to := strings.ToLower(req.Status)
	if !isPaymentStatus(to) {
		return ErrUnknownPaymentStatus
	}

	var payment *model.Payment
	transitioned := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.paymentRepo.WithTx(tx)

		p, err := repo.GetByIDForUpdate(req.PaymentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}
		payment = p

		if p.Status == to {
			s.logger.Debug("duplicate payment webhook", zap.String("payment_id", p.ID), zap.String("status", to))
			return nil
		}
		if !CanTransitionPayment(p.Status, to) {
			s.logger.Warn("out-of-order payment webhook ignored",
				zap.String("payment_id", p.ID),
				zap.String("current", p.Status),
				zap.String("received", to),
			)
			return nil
		}

		fields := map[string]interface{}{}
		now := time.Now()
		if to == model.PaymentConfirmed {
			fields["confirmed_at"] = now
		}
		updated, err := repo.UpdateStatusFrom(p.ID, p.Status, to, fields)
		if err != nil {
			return err
		}
		if !updated {
			return nil
		}

		s.logger.Info("payment status changed",
			zap.String("payment_id", p.ID),
			zap.String("from", p.Status),
			zap.String("to", to),
			zap.String("tx_hash", req.TxHash),
		)
		p.Status = to
		if to == model.PaymentConfirmed {
			p.ConfirmedAt = &now
		}
		transitioned = true

		switch to {
		case model.PaymentConfirmed:
			return s.activateMembership(tx, p, now)
		case model.PaymentRefunded:
			_, err := s.earnings.failByPayment(tx, p.ID)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	if transitioned {
		s.notifier.PaymentUpdated(ctx, payment)
	}
	if payment.Status == model.PaymentConfirmed && to == model.PaymentConfirmed && !payment.CommissionsProcessed {
		s.allocate(ctx, payment.ID)
	}
	return nil
}

// activateMembership 到期时间从 max(now, 当前到期时间) 起顺延
func (s *PaymentService) activateMembership(tx *gorm.DB, payment *model.Payment, now time.Time) error {
	tier, err := s.tierRepo.WithTx(tx).GetByName(payment.Tier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrTierNotFound, payment.Tier)
		}
		return err
	}

	repo := s.memberRepo.WithTx(tx)
	member, err := repo.GetByIDForUpdate(payment.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMemberNotFound
		}
		return err
	}

	days := tier.DurationDays
	if days <= 0 {
		days = 30
	}
	base := now
	if member.SubscriptionExpiresAt != nil && member.SubscriptionExpiresAt.After(now) {
		base = *member.SubscriptionExpiresAt
	}
	expiresAt := base.AddDate(0, 0, days)

	if err := repo.UpdateFields(member.ID, map[string]interface{}{
		"membership_tier":         tier.Name,
		"subscription_expires_at": expiresAt,
	}); err != nil {
		return err
	}

	s.logger.Info("membership activated",
		zap.Int64("user_id", member.ID),
		zap.String("tier", tier.Name),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}

// allocate 分配失败时推入重试队列，循环引用不重试
func (s *PaymentService) allocate(ctx context.Context, paymentID string) {
	_, err := s.commissions.Allocate(ctx, paymentID)
	if err == nil || errors.Is(err, ErrReferralCycle) || s.queue == nil {
		return
	}

	msg := &queue.AllocationMessage{PaymentID: paymentID, Attempt: 1, LastError: err.Error()}
	if qerr := s.queue.Push(ctx, msg); qerr != nil {
		s.logger.Error("enqueue allocation retry failed", zap.String("payment_id", paymentID), zap.Error(qerr))
		return
	}
	s.logger.Warn("allocation queued for retry", zap.String("payment_id", paymentID), zap.Error(err))
}

// Get 会员只能查看自己的支付
func (s *PaymentService) Get(memberID int64, paymentID string) (*model.Payment, error) {
	payment, err := s.paymentRepo.GetByID(paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if payment.UserID != memberID {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

func (s *PaymentService) ListForMember(memberID int64, page, pageSize int) ([]*model.Payment, int64, error) {
	page, pageSize = NormalizePage(page, pageSize)
	return s.paymentRepo.ListByUser(memberID, page, pageSize)
}

// List 后台支付列表
func (s *PaymentService) List(req *dto.PaymentListRequest) ([]*model.Payment, int64, error) {
	if req.Status != "" && !isPaymentStatus(req.Status) {
		return nil, 0, ErrInvalidPaymentFilter
	}
	page, pageSize := NormalizePage(req.Page, req.PageSize)
	return s.paymentRepo.List(repository.PaymentFilter{Status: req.Status, UserID: req.UserID}, page, pageSize)
}

// ExpireStale 将超时未支付的订单置为 expired
func (s *PaymentService) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.paymentRepo.WithTx(s.db.WithContext(ctx)).ExpireWaiting(time.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("stale payments expired", zap.Int64("count", n))
	}
	return n, nil
}

// CountStale 可过期的订单数量
func (s *PaymentService) CountStale() (int64, error) {
	return s.paymentRepo.CountWaitingExpired(time.Now())
}
