package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 佣金状态
const (
	CommissionPending    = "pending"
	CommissionProcessing = "processing"
	CommissionCompleted  = "completed"
	CommissionFailed     = "failed"
)

// Commission 一笔支付在某一推荐层级上给上线的佣金记录
type Commission struct {
	ID          int64           `gorm:"primaryKey" json:"id"`
	PaymentID   string          `gorm:"size:36;not null;uniqueIndex:uk_payment_level" json:"payment_id"`
	Level       int             `gorm:"not null;uniqueIndex:uk_payment_level" json:"level"`
	RecipientID int64           `gorm:"not null;index" json:"recipient_id"`
	NewMemberID int64           `gorm:"not null;index" json:"new_member_id"`
	Tier        string          `gorm:"size:20;not null" json:"tier"`
	Rate        decimal.Decimal `gorm:"type:decimal(6,4);not null" json:"rate"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Status      string          `gorm:"size:20;default:pending;index" json:"status"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	NewMember *Member `gorm:"foreignKey:NewMemberID" json:"new_member,omitempty"`
}

func (Commission) TableName() string {
	return "commissions"
}
