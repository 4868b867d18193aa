package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/mlm_go_server/config"
	"github.com/qs3c/mlm_go_server/internal/model"
	"github.com/qs3c/mlm_go_server/internal/model/dto"
	"github.com/qs3c/mlm_go_server/internal/pkg/logger"
	"github.com/qs3c/mlm_go_server/internal/pkg/refsession"
	"github.com/qs3c/mlm_go_server/internal/repository"
)

var (
	ErrReferralCycle              = errors.New("推荐关系存在循环")
	ErrMemberNotFound             = errors.New("会员不存在")
	ErrSponsorNotFound            = errors.New("推荐人不存在")
	ErrSponsorSuspended           = errors.New("推荐人账号已被停用")
	ErrSelfSponsor                = errors.New("不能将自己设为推荐人")
	ErrSponsorAlreadySet          = errors.New("该会员已有推荐人")
	ErrReferralCodeNotFound       = errors.New("推荐码不存在")
	ErrReferralCaptureUnavailable = errors.New("推荐链接服务不可用")
)

type ReferralService struct {
	db         *gorm.DB
	memberRepo *repository.MemberRepository
	milestones *MilestoneService
	sessions   *refsession.Store
	notifier   *Notifier
	cfg        config.ReferralConfig
	logger     *zap.Logger
}

func NewReferralService(
	db *gorm.DB,
	memberRepo *repository.MemberRepository,
	milestones *MilestoneService,
	sessions *refsession.Store,
	notifier *Notifier,
	cfg *config.Config,
	log *zap.Logger,
) *ReferralService {
	return &ReferralService{
		db:         db,
		memberRepo: memberRepo,
		milestones: milestones,
		sessions:   sessions,
		notifier:   notifier,
		cfg:        cfg.Referral,
		logger:     logger.OrNop(log),
	}
}

// ResolveUpline 从直属上线开始向上最多 maxDepth 层
func (s *ReferralService) ResolveUpline(memberID int64, maxDepth int) ([]int64, error) {
	return s.resolveUpline(s.memberRepo, memberID, maxDepth)
}

// resolveUpline 遍历 sponsor 指针，发现重复节点时返回 ErrReferralCycle 及已遍历的部分链路
func (s *ReferralService) resolveUpline(repo *repository.MemberRepository, memberID int64, maxDepth int) ([]int64, error) {
	if maxDepth <= 0 {
		return nil, nil
	}

	visited := map[int64]struct{}{memberID: {}}
	upline := make([]int64, 0, maxDepth)
	current := memberID

	for len(upline) < maxDepth {
		sponsorID, err := repo.GetSponsorID(current)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if current == memberID {
					return nil, ErrMemberNotFound
				}
				s.logger.Error("dangling sponsor reference",
					zap.Int64("member_id", memberID),
					zap.Int64("missing_id", current),
					zap.Int64s("chain", upline),
				)
				return upline[:len(upline)-1], fmt.Errorf("%w: %d", ErrSponsorNotFound, current)
			}
			return nil, fmt.Errorf("failed to load sponsor of member %d: %w", current, err)
		}
		if sponsorID == nil {
			break
		}

		if _, seen := visited[*sponsorID]; seen {
			s.logger.Error("referral cycle detected",
				zap.Int64("member_id", memberID),
				zap.Int64("revisited_id", *sponsorID),
				zap.Int64s("chain", upline),
			)
			return upline, fmt.Errorf("%w: member %d revisited after %d hops", ErrReferralCycle, *sponsorID, len(upline))
		}

		visited[*sponsorID] = struct{}{}
		upline = append(upline, *sponsorID)
		current = *sponsorID
	}

	return upline, nil
}

// ValidateSponsor 上线必须存在、未被停用，且不能是会员本人或其下线
// memberID 为 0 表示尚未创建的新会员
func (s *ReferralService) ValidateSponsor(memberID, sponsorID int64) error {
	return s.validateSponsor(s.memberRepo, memberID, sponsorID)
}

func (s *ReferralService) validateSponsor(repo *repository.MemberRepository, memberID, sponsorID int64) error {
	if memberID != 0 && memberID == sponsorID {
		return ErrSelfSponsor
	}

	sponsor, err := repo.GetByID(sponsorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSponsorNotFound
		}
		return err
	}
	if sponsor.Suspended {
		return ErrSponsorSuspended
	}
	if memberID == 0 {
		return nil
	}

	upline, err := s.resolveUpline(repo, sponsorID, s.cfg.MaxChainDepth)
	if err != nil {
		return err
	}
	for _, id := range upline {
		if id == memberID {
			return fmt.Errorf("%w: %d is in the downline of %d", ErrReferralCycle, sponsorID, memberID)
		}
	}
	return nil
}

// AttributeReferral 新会员挂到 sponsorID 下之后，在同一事务内更新上线的推荐计数
// direct_referrals 只计直属上线，total_referrals 计 network_depth 层内的所有上线
func (s *ReferralService) AttributeReferral(tx *gorm.DB, newMemberID, sponsorID int64) ([]*model.MilestoneAward, error) {
	awards, err := s.milestones.ApplyReferralDelta(tx, sponsorID, repository.CounterDirectReferrals, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to count direct referral: %w", err)
	}

	ancestors, err := s.resolveUpline(s.memberRepo.WithTx(tx), newMemberID, s.cfg.NetworkDepth)
	if err != nil {
		if !errors.Is(err, ErrReferralCycle) && !errors.Is(err, ErrSponsorNotFound) {
			return nil, err
		}
		// 链路异常已记录日志，只计入可达的上线
	}

	for _, ancestorID := range ancestors {
		fired, err := s.milestones.ApplyReferralDelta(tx, ancestorID, repository.CounterTotalReferrals, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to count network referral: %w", err)
		}
		awards = append(awards, fired...)
	}

	return awards, nil
}

// AssignSponsor 后台为尚无上线的会员指定上线
func (s *ReferralService) AssignSponsor(ctx context.Context, memberID, sponsorID int64) (*model.Member, error) {
	var awards []*model.MilestoneAward

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.memberRepo.WithTx(tx)

		member, err := repo.GetByID(memberID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMemberNotFound
			}
			return err
		}
		if member.SponsorID != nil {
			return ErrSponsorAlreadySet
		}

		if err := s.validateSponsor(repo, memberID, sponsorID); err != nil {
			return err
		}

		updated, err := repo.SetSponsorIfEmpty(memberID, sponsorID)
		if err != nil {
			return err
		}
		if !updated {
			return ErrSponsorAlreadySet
		}

		awards, err = s.AttributeReferral(tx, memberID, sponsorID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("sponsor assigned", zap.Int64("member_id", memberID), zap.Int64("sponsor_id", sponsorID))
	s.notifier.MilestonesAchieved(ctx, awards)

	return s.memberRepo.GetByID(memberID)
}

// ClampDepth 推荐树深度限制在 [1, max_tree_depth]
func (s *ReferralService) ClampDepth(depth int) int {
	maxDepth := s.cfg.MaxTreeDepth
	if maxDepth <= 0 {
		maxDepth = 5
	}
	if depth < 1 {
		return 1
	}
	if depth > maxDepth {
		return maxDepth
	}
	return depth
}

// NetworkTree 按层广度优先构建推荐树，每层一次查询
func (s *ReferralService) NetworkTree(rootID int64, depth int) (*dto.NetworkTreeResponse, error) {
	depth = s.ClampDepth(depth)

	root, err := s.memberRepo.GetByID(rootID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}

	rootChildren := []*dto.NetworkNode{}
	childrenOf := map[int64]*[]*dto.NetworkNode{rootID: &rootChildren}
	visited := map[int64]struct{}{rootID: {}}
	frontier := []int64{rootID}

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		members, err := s.memberRepo.ListChildren(frontier)
		if err != nil {
			return nil, err
		}

		next := make([]int64, 0, len(members))
		for _, m := range members {
			if _, seen := visited[m.ID]; seen || m.SponsorID == nil {
				continue
			}
			siblings, ok := childrenOf[*m.SponsorID]
			if !ok {
				continue
			}
			visited[m.ID] = struct{}{}

			node := &dto.NetworkNode{
				NetworkMember: toNetworkMember(m, level),
				Children:      []*dto.NetworkNode{},
			}
			*siblings = append(*siblings, node)
			childrenOf[m.ID] = &node.Children
			next = append(next, m.ID)
		}
		frontier = next
	}

	rootNode := toNetworkMember(root, 0)
	return &dto.NetworkTreeResponse{
		Root:     &rootNode,
		Children: rootChildren,
		Depth:    depth,
	}, nil
}

// DirectReferrals 分页查询直推会员
func (s *ReferralService) DirectReferrals(memberID int64, page, pageSize int) ([]*dto.NetworkMember, int64, error) {
	page, pageSize = NormalizePage(page, pageSize)

	members, total, err := s.memberRepo.ListDirectReferrals(memberID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.NetworkMember, len(members))
	for i, m := range members {
		item := toNetworkMember(m, 1)
		items[i] = &item
	}
	return items, total, nil
}

// Capture 推荐落地页：把推荐码换成短期有效的一次性 token
func (s *ReferralService) Capture(ctx context.Context, code string) (*dto.ReferralCaptureResponse, error) {
	if s.sessions == nil {
		return nil, ErrReferralCaptureUnavailable
	}

	sponsor, err := s.memberRepo.GetByReferralCode(normalizeReferralCode(code))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReferralCodeNotFound
		}
		return nil, err
	}
	if sponsor.Suspended {
		return nil, ErrSponsorSuspended
	}

	token, err := s.sessions.Capture(ctx, sponsor.ID)
	if err != nil {
		return nil, err
	}

	return &dto.ReferralCaptureResponse{
		ReferralToken:   token,
		SponsorUsername: sponsor.Username,
		ExpiresIn:       int(s.sessions.TTL().Seconds()),
	}, nil
}

// ResolveSponsor 注册时解析上线，token 优先于推荐码，两者都为空时返回 nil
func (s *ReferralService) ResolveSponsor(ctx context.Context, code, token string) (*model.Member, error) {
	var sponsor *model.Member
	var err error

	switch {
	case token != "":
		if s.sessions == nil {
			return nil, ErrReferralCaptureUnavailable
		}
		sponsorID, cerr := s.sessions.Consume(ctx, token)
		if cerr != nil {
			return nil, cerr
		}
		sponsor, err = s.memberRepo.GetByID(sponsorID)
	case code != "":
		sponsor, err = s.memberRepo.GetByReferralCode(normalizeReferralCode(code))
	default:
		return nil, nil
	}

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReferralCodeNotFound
		}
		return nil, err
	}
	if sponsor.Suspended {
		return nil, ErrSponsorSuspended
	}
	return sponsor, nil
}

// GenerateReferralCode 由用户名生成唯一推荐码，冲突时追加随机后缀
func (s *ReferralService) GenerateReferralCode(username string) (string, error) {
	base := normalizeReferralCode(username)
	code := base

	for attempt := 0; attempt < 5; attempt++ {
		exists, err := s.memberRepo.ExistsByReferralCode(code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
		suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
		code = base + "-" + suffix
	}
	return "", fmt.Errorf("failed to generate unique referral code for %s", username)
}

func normalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func toNetworkMember(m *model.Member, level int) dto.NetworkMember {
	return dto.NetworkMember{
		ID:             m.ID,
		Username:       m.Username,
		MembershipTier: m.MembershipTier,
		Level:          level,
		JoinedAt:       m.CreatedAt,
	}
}
