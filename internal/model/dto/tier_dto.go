package dto

import "github.com/shopspring/decimal"

// TierView 前台展示的等级价格与各层佣金比例
type TierView struct {
	Price       float64   `json:"price"`
	Commissions []float64 `json:"commissions"`
}

// TierCatalogResponse GET /api/membership/tiers
type TierCatalogResponse struct {
	Tiers map[string]TierView `json:"tiers"`
}

// UpdateTierRequest 后台修改等级，字段为空表示不修改
type UpdateTierRequest struct {
	Price        *decimal.Decimal  `json:"price,omitempty"`
	Commissions  []decimal.Decimal `json:"commissions,omitempty"`
	Enabled      *bool             `json:"enabled,omitempty"`
	DurationDays *int              `json:"duration_days,omitempty" binding:"omitempty,gt=0"`
}
