package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreatePaymentRequest 创建支付请求
type CreatePaymentRequest struct {
	Tier     string `json:"tier" binding:"required,oneof=affiliate bronze silver gold test vip_affiliate"`
	Currency string `json:"currency" binding:"required,alphanum,max=16"`
}

// CreatePaymentResponse 创建支付响应
type CreatePaymentResponse struct {
	PaymentID  string          `json:"payment_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Address    string          `json:"address"`
	PaymentURL string          `json:"payment_url"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// PaymentWebhookRequest 支付网关回调
type PaymentWebhookRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
	Status    string `json:"status" binding:"required"`
	TxHash    string `json:"tx_hash"`
}

// PaymentListRequest 支付列表请求
type PaymentListRequest struct {
	Page     int    `form:"page,default=1"`
	PageSize int    `form:"page_size,default=20"`
	Status   string `form:"status"`
	UserID   int64  `form:"user_id"`
}
