package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// MilestoneListRequest 里程碑列表请求
type MilestoneListRequest struct {
	Page   int    `form:"page,default=1"`
	Limit  int    `form:"limit,default=20"`
	Status string `form:"status"`
	UserID int64  `form:"user_id"`
}

// MilestoneItem 里程碑奖励
type MilestoneItem struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	Username       string          `json:"username,omitempty"`
	MilestoneCount int             `json:"milestone_count"`
	BonusAmount    decimal.Decimal `json:"bonus_amount"`
	AchievedDate   time.Time       `json:"achieved_date"`
	Status         string          `json:"status"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
}

// MilestoneListResponse GET /admin/milestones
type MilestoneListResponse struct {
	Milestones []*MilestoneItem `json:"milestones"`
	Total      int64            `json:"total"`
	TotalPages int              `json:"total_pages"`
	Page       int              `json:"page"`
}
