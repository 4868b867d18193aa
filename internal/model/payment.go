package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 支付状态
const (
	PaymentWaiting       = "waiting"
	PaymentConfirming    = "confirming"
	PaymentConfirmed     = "confirmed"
	PaymentPartiallyPaid = "partially_paid"
	PaymentFailed        = "failed"
	PaymentExpired       = "expired"
	PaymentRefunded      = "refunded"
)

type Payment struct {
	ID                   string          `gorm:"primaryKey;size:36" json:"id"`
	UserID               int64           `gorm:"not null;index" json:"user_id"`
	Tier                 string          `gorm:"size:20;not null" json:"tier"`
	Amount               decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Currency             string          `gorm:"size:16;not null" json:"currency"`
	Address              string          `gorm:"size:128" json:"address"`
	PaymentURL           string          `gorm:"size:500" json:"payment_url"`
	Status               string          `gorm:"size:20;default:waiting;index" json:"status"`
	CommissionsProcessed bool            `gorm:"default:false;index" json:"commissions_processed"`
	ConfirmedAt          *time.Time      `json:"confirmed_at,omitempty"`
	ExpiresAt            time.Time       `gorm:"index" json:"expires_at"`
	CreatedAt            time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}
