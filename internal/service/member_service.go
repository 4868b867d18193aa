package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/mlm_go_server/internal/model"
	"github.com/qs3c/mlm_go_server/internal/model/dto"
	"github.com/qs3c/mlm_go_server/internal/pkg/logger"
	"github.com/qs3c/mlm_go_server/internal/pkg/wallet"
	"github.com/qs3c/mlm_go_server/internal/repository"
)

var ErrInvalidMemberTier = errors.New("会员等级无效")

type MemberService struct {
	memberRepo *repository.MemberRepository
	logger     *zap.Logger
}

func NewMemberService(memberRepo *repository.MemberRepository, log *zap.Logger) *MemberService {
	return &MemberService{
		memberRepo: memberRepo,
		logger:     logger.OrNop(log),
	}
}

// GetProfile 获取会员详情
func (s *MemberService) GetProfile(memberID int64) (*dto.MemberInfo, error) {
	member, err := s.getMember(memberID)
	if err != nil {
		return nil, err
	}
	return toMemberInfo(member), nil
}

// WalletChallenge 返回绑定钱包时需要签名的消息
func (s *MemberService) WalletChallenge(memberID int64, address string) (string, error) {
	addr, err := wallet.Normalize(address)
	if err != nil {
		return "", err
	}
	return wallet.LinkMessage(addr, memberID), nil
}

// LinkWallet 校验签名后绑定钱包，地址以校验和格式保存
func (s *MemberService) LinkWallet(memberID int64, req *dto.LinkWalletRequest) (*dto.MemberInfo, error) {
	if _, err := s.getMember(memberID); err != nil {
		return nil, err
	}

	addr, err := wallet.Normalize(req.WalletAddress)
	if err != nil {
		return nil, err
	}
	if err := wallet.VerifySignature(addr, wallet.LinkMessage(addr, memberID), req.Signature); err != nil {
		return nil, err
	}

	exists, err := s.memberRepo.ExistsByWallet(addr, memberID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrWalletExists
	}

	if err := s.memberRepo.UpdateFields(memberID, map[string]interface{}{"wallet_address": addr}); err != nil {
		return nil, err
	}

	s.logger.Info("wallet linked", zap.Int64("user_id", memberID), zap.String("wallet_address", addr))
	return s.GetProfile(memberID)
}

// AdminList 后台会员列表
func (s *MemberService) AdminList(req *dto.AdminMemberListRequest) ([]*dto.MemberInfo, int64, error) {
	page, pageSize := NormalizePage(req.Page, req.PageSize)

	members, total, err := s.memberRepo.List(repository.MemberFilter{
		Search:    req.Search,
		Tier:      req.Tier,
		Suspended: req.Suspended,
		KYCStatus: req.KYCStatus,
	}, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.MemberInfo, len(members))
	for i, m := range members {
		items[i] = toMemberInfo(m)
	}
	return items, total, nil
}

// AdminUpdate 后台修改会员邮箱、等级或订阅到期时间
func (s *MemberService) AdminUpdate(memberID int64, req *dto.AdminUpdateMemberRequest) (*dto.MemberInfo, error) {
	member, err := s.getMember(memberID)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}

	// 检查邮箱是否已被占用
	if req.Email != nil && *req.Email != member.Email {
		exists, err := s.memberRepo.ExistsByEmail(*req.Email)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrEmailExists
		}
		fields["email"] = *req.Email
	}
	if req.MembershipTier != nil {
		if !model.IsValidTier(*req.MembershipTier) {
			return nil, ErrInvalidMemberTier
		}
		fields["membership_tier"] = *req.MembershipTier
	}
	if req.SubscriptionExpiresAt != nil {
		fields["subscription_expires_at"] = *req.SubscriptionExpiresAt
	}

	if len(fields) > 0 {
		if err := s.memberRepo.UpdateFields(memberID, fields); err != nil {
			return nil, err
		}
		s.logger.Info("member updated by admin", zap.Int64("user_id", memberID), zap.Int("fields", len(fields)))
	}
	return s.GetProfile(memberID)
}

// SetSuspended 封禁或解封会员，会员记录不做物理删除
func (s *MemberService) SetSuspended(memberID int64, suspended bool) (*dto.MemberInfo, error) {
	if _, err := s.getMember(memberID); err != nil {
		return nil, err
	}
	if err := s.memberRepo.UpdateFields(memberID, map[string]interface{}{"suspended": suspended}); err != nil {
		return nil, err
	}
	s.logger.Info("member suspension changed", zap.Int64("user_id", memberID), zap.Bool("suspended", suspended))
	return s.GetProfile(memberID)
}

// DowngradeExpired 订阅到期的会员降级为 affiliate
func (s *MemberService) DowngradeExpired(ctx context.Context) (int64, error) {
	n, err := s.memberRepo.DowngradeExpired(time.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired subscriptions downgraded", zap.Int64("count", n))
	}
	return n, nil
}

func (s *MemberService) getMember(memberID int64) (*model.Member, error) {
	member, err := s.memberRepo.GetByID(memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return member, nil
}

func toMemberInfo(m *model.Member) *dto.MemberInfo {
	info := &dto.MemberInfo{
		ID:                    m.ID,
		Username:              m.Username,
		Email:                 m.Email,
		MembershipTier:        m.MembershipTier,
		SponsorID:             m.SponsorID,
		ReferralCode:          m.ReferralCode,
		SubscriptionExpiresAt: m.SubscriptionExpiresAt,
		Suspended:             m.Suspended,
		KYCStatus:             m.KYCStatus,
		KYCRejectionReason:    m.KYCRejectionReason,
		NetworkStats: &dto.NetworkStats{
			DirectReferrals: m.DirectReferrals,
			TotalReferrals:  m.TotalReferrals,
		},
	}
	if m.WalletAddress != nil {
		info.WalletAddress = *m.WalletAddress
	}
	if !m.CreatedAt.IsZero() {
		info.CreatedAt = m.CreatedAt.Format(time.RFC3339)
	}
	return info
}
