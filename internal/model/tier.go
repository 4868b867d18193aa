package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier 会员等级定义，Commissions[i] 为第 i+1 层推荐人的佣金比例
type Tier struct {
	Name         string            `gorm:"primaryKey;size:20" json:"name"`
	Price        decimal.Decimal   `gorm:"type:decimal(18,2);not null" json:"price"`
	Commissions  []decimal.Decimal `gorm:"type:text;serializer:json" json:"commissions"`
	Enabled      bool              `gorm:"not null" json:"enabled"`
	DurationDays int               `gorm:"not null" json:"duration_days"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (Tier) TableName() string {
	return "tiers"
}

// MaxDepth 该等级产生佣金的最大层数
func (t *Tier) MaxDepth() int {
	return len(t.Commissions)
}
