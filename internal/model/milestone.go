package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 里程碑奖励状态
const (
	MilestonePending = "pending"
	MilestonePaid    = "paid"
)

type MilestoneAward struct {
	ID             int64           `gorm:"primaryKey" json:"id"`
	UserID         int64           `gorm:"not null;uniqueIndex:uk_user_milestone" json:"user_id"`
	MilestoneCount int             `gorm:"not null;uniqueIndex:uk_user_milestone" json:"milestone_count"`
	BonusAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"bonus_amount"`
	Basis          string          `gorm:"size:10;not null" json:"basis"`
	AchievedDate   time.Time       `gorm:"not null" json:"achieved_date"`
	Status         string          `gorm:"size:20;default:pending;index" json:"status"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`

	User *Member `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (MilestoneAward) TableName() string {
	return "milestone_awards"
}
