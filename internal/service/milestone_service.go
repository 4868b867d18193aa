package service

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/mlm_go_server/config"
	"github.com/qs3c/mlm_go_server/internal/model"
	"github.com/qs3c/mlm_go_server/internal/model/dto"
	"github.com/qs3c/mlm_go_server/internal/pkg/logger"
	"github.com/qs3c/mlm_go_server/internal/repository"
)

var (
	ErrMilestoneNotFound    = errors.New("里程碑奖励不存在")
	ErrMilestoneAlreadyPaid = errors.New("里程碑奖励已发放")
)

// Threshold 推荐数阈值及奖励金额
type Threshold struct {
	Count int
	Bonus decimal.Decimal
}

// ThresholdsFromConfig 按阈值升序返回奖励表
func ThresholdsFromConfig(table []config.MilestoneConfig) []Threshold {
	out := make([]Threshold, 0, len(table))
	for _, m := range table {
		if m.Count <= 0 {
			continue
		}
		out = append(out, Threshold{Count: m.Count, Bonus: decimal.NewFromFloat(m.Bonus).Round(2)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count < out[j].Count })
	return out
}

// CrossedThresholds 返回满足 prev < T <= next 的阈值，table 需按升序排列
func CrossedThresholds(prev, next int, table []Threshold) []Threshold {
	var crossed []Threshold
	for _, t := range table {
		if t.Count > next {
			break
		}
		if t.Count > prev {
			crossed = append(crossed, t)
		}
	}
	return crossed
}

type MilestoneService struct {
	milestoneRepo *repository.MilestoneRepository
	memberRepo    *repository.MemberRepository
	table         []Threshold
	basis         string
	notifier      *Notifier
	logger        *zap.Logger
}

func NewMilestoneService(
	milestoneRepo *repository.MilestoneRepository,
	memberRepo *repository.MemberRepository,
	cfg *config.Config,
	notifier *Notifier,
	log *zap.Logger,
) *MilestoneService {
	table := cfg.Milestones.Table
	if len(table) == 0 {
		table = config.DefaultMilestones
	}
	basis := cfg.Milestones.Basis
	if basis == "" {
		basis = config.MilestoneBasisDirect
	}
	return &MilestoneService{
		milestoneRepo: milestoneRepo,
		memberRepo:    memberRepo,
		table:         ThresholdsFromConfig(table),
		basis:         basis,
		notifier:      notifier,
		logger:        logger.OrNop(log),
	}
}

// BasisCounter 触发里程碑的推荐计数字段
func (s *MilestoneService) BasisCounter() string {
	if s.basis == config.MilestoneBasisNetwork {
		return repository.CounterTotalReferrals
	}
	return repository.CounterDirectReferrals
}

// ApplyReferralDelta 在调用方事务内增加推荐计数，计数字段为统计口径时评估阈值
// 计数的原子自增持有行锁，并发的增量不会观察到同一个旧值
func (s *MilestoneService) ApplyReferralDelta(tx *gorm.DB, memberID int64, counter string, delta int) ([]*model.MilestoneAward, error) {
	if delta <= 0 {
		return nil, nil
	}

	next, err := s.memberRepo.WithTx(tx).IncrementCounter(memberID, counter, delta)
	if err != nil {
		return nil, err
	}
	if counter != s.BasisCounter() {
		return nil, nil
	}

	prev := next - delta
	crossed := CrossedThresholds(prev, next, s.table)
	if len(crossed) == 0 {
		return nil, nil
	}

	repo := s.milestoneRepo.WithTx(tx)
	now := time.Now()
	var fired []*model.MilestoneAward
	for _, t := range crossed {
		award := &model.MilestoneAward{
			UserID:         memberID,
			MilestoneCount: t.Count,
			BonusAmount:    t.Bonus,
			Basis:          s.basis,
			AchievedDate:   now,
			Status:         model.MilestonePending,
		}
		created, err := repo.CreateIfAbsent(award)
		if err != nil {
			return nil, err
		}
		if created {
			fired = append(fired, award)
		}
	}
	return fired, nil
}

// MarkAsPaid pending -> paid，其他状态不允许
func (s *MilestoneService) MarkAsPaid(id int64) (*model.MilestoneAward, error) {
	award, err := s.milestoneRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMilestoneNotFound
		}
		return nil, err
	}
	if award.Status == model.MilestonePaid {
		return nil, ErrMilestoneAlreadyPaid
	}

	updated, err := s.milestoneRepo.MarkPaid(id, time.Now())
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrMilestoneAlreadyPaid
	}

	s.logger.Info("milestone marked as paid", zap.Int64("milestone_id", id), zap.Int64("user_id", award.UserID))
	return s.milestoneRepo.GetByID(id)
}

// List 后台里程碑列表
func (s *MilestoneService) List(req *dto.MilestoneListRequest) (*dto.MilestoneListResponse, error) {
	page, limit := NormalizePage(req.Page, req.Limit)

	awards, total, err := s.milestoneRepo.List(repository.MilestoneFilter{
		UserID: req.UserID,
		Status: req.Status,
	}, page, limit)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.MilestoneItem, len(awards))
	for i, a := range awards {
		items[i] = toMilestoneItem(a)
	}
	return &dto.MilestoneListResponse{
		Milestones: items,
		Total:      total,
		TotalPages: totalPages(total, limit),
		Page:       page,
	}, nil
}

// ListForMember 会员自己的里程碑
func (s *MilestoneService) ListForMember(memberID int64) ([]*dto.MilestoneItem, error) {
	awards, err := s.milestoneRepo.ListByUser(memberID)
	if err != nil {
		return nil, err
	}
	items := make([]*dto.MilestoneItem, len(awards))
	for i, a := range awards {
		items[i] = toMilestoneItem(a)
	}
	return items, nil
}

func toMilestoneItem(a *model.MilestoneAward) *dto.MilestoneItem {
	item := &dto.MilestoneItem{
		ID:             a.ID,
		UserID:         a.UserID,
		MilestoneCount: a.MilestoneCount,
		BonusAmount:    a.BonusAmount.Round(2),
		AchievedDate:   a.AchievedDate,
		Status:         a.Status,
		PaidAt:         a.PaidAt,
	}
	if a.User != nil {
		item.Username = a.User.Username
	}
	return item
}

// NormalizePage 页码从 1 开始，每页最多 100 条
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func totalPages(total int64, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
