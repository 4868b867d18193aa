package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/mlm_go_server/internal/model"
	"github.com/qs3c/mlm_go_server/internal/pkg/logger"
	"github.com/qs3c/mlm_go_server/internal/repository"
)

var (
	ErrKYCInvalidState   = errors.New("当前 KYC 状态不允许此操作")
	ErrKYCReasonRequired = errors.New("驳回 KYC 时必须填写原因")
)

type KYCService struct {
	memberRepo *repository.MemberRepository
	notifier   *Notifier
	logger     *zap.Logger
}

func NewKYCService(memberRepo *repository.MemberRepository, notifier *Notifier, log *zap.Logger) *KYCService {
	return &KYCService{
		memberRepo: memberRepo,
		notifier:   notifier,
		logger:     logger.OrNop(log),
	}
}

// Submit 会员提交 KYC 认证：unverified | rejected -> pending
func (s *KYCService) Submit(memberID int64) (*model.Member, error) {
	if _, err := s.getMember(memberID); err != nil {
		return nil, err
	}

	updated, err := s.memberRepo.UpdateKYCFrom(memberID, []string{model.KYCUnverified, model.KYCRejected}, map[string]interface{}{
		"kyc_status":           model.KYCPending,
		"kyc_submitted_at":     time.Now(),
		"kyc_rejection_reason": "",
	})
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrKYCInvalidState
	}

	s.logger.Info("kyc submitted", zap.Int64("user_id", memberID))
	return s.getMember(memberID)
}

// Review 后台审核 KYC：pending -> verified | rejected
func (s *KYCService) Review(ctx context.Context, memberID int64, approved bool, reason string) (*model.Member, error) {
	if _, err := s.getMember(memberID); err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	fields := map[string]interface{}{
		"kyc_status":           model.KYCVerified,
		"kyc_rejection_reason": "",
	}
	if !approved {
		if reason == "" {
			return nil, ErrKYCReasonRequired
		}
		fields["kyc_status"] = model.KYCRejected
		fields["kyc_rejection_reason"] = reason
	}

	updated, err := s.memberRepo.UpdateKYCFrom(memberID, []string{model.KYCPending}, fields)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrKYCInvalidState
	}

	member, err := s.getMember(memberID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("kyc reviewed", zap.Int64("user_id", memberID), zap.String("kyc_status", member.KYCStatus))
	s.notifier.KYCReviewed(ctx, member)
	return member, nil
}

func (s *KYCService) getMember(memberID int64) (*model.Member, error) {
	member, err := s.memberRepo.GetByID(memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return member, nil
}
