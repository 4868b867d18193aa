package service

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/qs3c/mlm_go_server/internal/model"
	"github.com/qs3c/mlm_go_server/internal/pkg/email"
	"github.com/qs3c/mlm_go_server/internal/pkg/logger"
	"github.com/qs3c/mlm_go_server/internal/pkg/metrics"
	"github.com/qs3c/mlm_go_server/internal/pkg/pubsub"
	"github.com/qs3c/mlm_go_server/internal/repository"
)

// EventPublisher 会员事件发布
type EventPublisher interface {
	Publish(ctx context.Context, evt *pubsub.Event) error
}

// Notifier 事务提交后的通知：pubsub 事件、邮件与指标
// 所有方法对 nil 接收者安全
type Notifier struct {
	publisher  EventPublisher
	mailer     *email.Service
	memberRepo *repository.MemberRepository
	logger     *zap.Logger
}

func NewNotifier(publisher EventPublisher, mailer *email.Service, memberRepo *repository.MemberRepository, log *zap.Logger) *Notifier {
	return &Notifier{
		publisher:  publisher,
		mailer:     mailer,
		memberRepo: memberRepo,
		logger:     logger.OrNop(log),
	}
}

func (n *Notifier) publish(ctx context.Context, eventType string, userID int64, data interface{}) {
	if n == nil || n.publisher == nil {
		return
	}
	evt, err := pubsub.NewEvent(eventType, userID, data)
	if err != nil {
		n.logger.Warn("build event failed", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := n.publisher.Publish(ctx, evt); err != nil {
		n.logger.Warn("publish event failed", zap.String("type", eventType), zap.Int64("user_id", userID), zap.Error(err))
	}
}

// sendMail 异步发送邮件，失败只记录日志
func (n *Notifier) sendMail(kind string, userID int64, send func() error) {
	if n == nil || !n.mailer.Enabled() {
		return
	}
	go func() {
		if err := send(); err != nil {
			n.logger.Warn("send email failed", zap.String("kind", kind), zap.Int64("user_id", userID), zap.Error(err))
		}
	}()
}

// CommissionsCreated 每位收益人收到 commission_created 事件
func (n *Notifier) CommissionsCreated(ctx context.Context, records []*model.Commission) {
	if n == nil {
		return
	}
	for _, c := range records {
		metrics.CommissionsCreated.WithLabelValues(c.Tier, strconv.Itoa(c.Level)).Inc()
		n.publish(ctx, pubsub.EventCommissionCreated, c.RecipientID, map[string]interface{}{
			"commission_id": c.ID,
			"payment_id":    c.PaymentID,
			"level":         c.Level,
			"amount":        c.Amount.StringFixed(2),
			"new_member_id": c.NewMemberID,
		})
	}
}

// MilestonesAchieved 里程碑达成事件与邮件
func (n *Notifier) MilestonesAchieved(ctx context.Context, awards []*model.MilestoneAward) {
	if n == nil {
		return
	}
	for _, a := range awards {
		metrics.MilestoneAwards.WithLabelValues(strconv.Itoa(a.MilestoneCount)).Inc()
		n.logger.Info("milestone achieved",
			zap.Int64("user_id", a.UserID),
			zap.Int("milestone_count", a.MilestoneCount),
			zap.String("bonus", a.BonusAmount.StringFixed(2)),
		)
		n.publish(ctx, pubsub.EventMilestoneAchieved, a.UserID, map[string]interface{}{
			"milestone_id":    a.ID,
			"milestone_count": a.MilestoneCount,
			"bonus_amount":    a.BonusAmount.StringFixed(2),
		})

		award := a
		n.sendMail("milestone", award.UserID, func() error {
			member, err := n.memberRepo.GetByID(award.UserID)
			if err != nil {
				return err
			}
			return n.mailer.SendMilestoneAchieved(member.Email, member.Username, award.MilestoneCount, award.BonusAmount.StringFixed(2))
		})
	}
}

// KYCReviewed KYC 审核结果通知
func (n *Notifier) KYCReviewed(ctx context.Context, member *model.Member) {
	if n == nil || member == nil {
		return
	}
	n.publish(ctx, pubsub.EventKYCReviewed, member.ID, map[string]interface{}{
		"kyc_status":       member.KYCStatus,
		"rejection_reason": member.KYCRejectionReason,
	})
	approved := member.KYCStatus == model.KYCVerified
	n.sendMail("kyc", member.ID, func() error {
		return n.mailer.SendKYCReviewed(member.Email, member.Username, approved, member.KYCRejectionReason)
	})
}

// PaymentUpdated 支付状态变化通知
func (n *Notifier) PaymentUpdated(ctx context.Context, payment *model.Payment) {
	if n == nil || payment == nil {
		return
	}
	metrics.PaymentTransitions.WithLabelValues(payment.Status).Inc()
	n.publish(ctx, pubsub.EventPaymentUpdated, payment.UserID, map[string]interface{}{
		"payment_id": payment.ID,
		"status":     payment.Status,
		"tier":       payment.Tier,
	})
}

// Welcome 注册欢迎邮件
func (n *Notifier) Welcome(member *model.Member) {
	if n == nil || member == nil {
		return
	}
	n.sendMail("welcome", member.ID, func() error {
		return n.mailer.SendWelcome(member.Email, member.Username, member.ReferralCode)
	})
}
