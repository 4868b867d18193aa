package service

import (
	"errors"
	"fmt"
	"sort"

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
	ErrTierNotFound          = errors.New("会员等级不存在")
	ErrTierDisabled          = errors.New("该会员等级暂未开放")
	ErrTierNotPurchasable    = errors.New("该会员等级不可购买")
	ErrInvalidTierName       = errors.New("会员等级名称无效")
	ErrInvalidCommissionRate = errors.New("佣金比例必须在 0 到 1 之间")
	ErrInvalidTierPrice      = errors.New("会员价格不能为负数")
)

type TierService struct {
	tierRepo *repository.TierRepository
	logger   *zap.Logger
}

func NewTierService(tierRepo *repository.TierRepository, log *zap.Logger) *TierService {
	return &TierService{
		tierRepo: tierRepo,
		logger:   logger.OrNop(log),
	}
}

// ValidateRates 每一层佣金比例必须在 [0,1]
func ValidateRates(rates []decimal.Decimal) error {
	one := decimal.NewFromInt(1)
	for i, r := range rates {
		if r.IsNegative() || r.GreaterThan(one) {
			return fmt.Errorf("%w: level %d is %s", ErrInvalidCommissionRate, i+1, r.String())
		}
	}
	return nil
}

// Seed 按配置补齐缺失的等级，已存在的等级保留后台修改
func (s *TierService) Seed(tiers map[string]config.TierConfig) (int, error) {
	names := make([]string, 0, len(tiers))
	for name := range tiers {
		names = append(names, name)
	}
	sort.Strings(names)

	inserted := 0
	for _, name := range names {
		if !model.IsValidTier(name) {
			return inserted, fmt.Errorf("%w: %s", ErrInvalidTierName, name)
		}
		tc := tiers[name]

		rates := make([]decimal.Decimal, len(tc.Commissions))
		for i, r := range tc.Commissions {
			rates[i] = decimal.NewFromFloat(r)
		}
		if err := ValidateRates(rates); err != nil {
			return inserted, fmt.Errorf("tier %s: %w", name, err)
		}

		durationDays := tc.DurationDays
		if durationDays <= 0 {
			durationDays = 30
		}

		ok, err := s.tierRepo.CreateIfMissing(&model.Tier{
			Name:         name,
			Price:        decimal.NewFromFloat(tc.Price).Round(2),
			Commissions:  rates,
			Enabled:      tc.Enabled,
			DurationDays: durationDays,
		})
		if err != nil {
			return inserted, fmt.Errorf("failed to seed tier %s: %w", name, err)
		}
		if ok {
			inserted++
			s.logger.Info("tier seeded", zap.String("tier", name), zap.Int("depth", len(rates)))
		}
	}
	return inserted, nil
}

func (s *TierService) List(includeDisabled bool) ([]*model.Tier, error) {
	return s.tierRepo.List(includeDisabled)
}

// Catalog 前台可购买的等级目录
func (s *TierService) Catalog() (*dto.TierCatalogResponse, error) {
	tiers, err := s.tierRepo.List(false)
	if err != nil {
		return nil, err
	}

	resp := &dto.TierCatalogResponse{Tiers: make(map[string]dto.TierView, len(tiers))}
	for _, t := range tiers {
		commissions := make([]float64, len(t.Commissions))
		for i, r := range t.Commissions {
			commissions[i] = r.InexactFloat64()
		}
		resp.Tiers[t.Name] = dto.TierView{
			Price:       t.Price.Round(2).InexactFloat64(),
			Commissions: commissions,
		}
	}
	return resp, nil
}

func (s *TierService) Get(name string) (*model.Tier, error) {
	tier, err := s.tierRepo.GetByName(name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTierNotFound
		}
		return nil, err
	}
	return tier, nil
}

// GetPurchasable 获取可下单的等级
func (s *TierService) GetPurchasable(name string) (*model.Tier, error) {
	tier, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	if !tier.Enabled {
		return nil, ErrTierDisabled
	}
	if !tier.Price.IsPositive() {
		return nil, ErrTierNotPurchasable
	}
	return tier, nil
}

// Update 后台修改等级价格、佣金比例或启用状态
func (s *TierService) Update(name string, req *dto.UpdateTierRequest) (*model.Tier, error) {
	tier, err := s.Get(name)
	if err != nil {
		return nil, err
	}

	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, ErrInvalidTierPrice
		}
		tier.Price = req.Price.Round(2)
	}
	if req.Commissions != nil {
		if err := ValidateRates(req.Commissions); err != nil {
			return nil, err
		}
		tier.Commissions = req.Commissions
	}
	if req.Enabled != nil {
		tier.Enabled = *req.Enabled
	}
	if req.DurationDays != nil {
		tier.DurationDays = *req.DurationDays
	}

	if err := s.tierRepo.Save(tier); err != nil {
		return nil, err
	}

	s.logger.Info("tier updated",
		zap.String("tier", tier.Name),
		zap.String("price", tier.Price.StringFixed(2)),
		zap.Int("depth", tier.MaxDepth()),
		zap.Bool("enabled", tier.Enabled),
	)
	return tier, nil
}
