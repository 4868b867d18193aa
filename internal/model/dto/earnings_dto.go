package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// EarningsListRequest 收益列表请求，日期格式为 YYYY-MM-DD
type EarningsListRequest struct {
	StatusFilter string `form:"status_filter"`
	DateFrom     string `form:"date_from"`
	DateTo       string `form:"date_to"`
	Page         int    `form:"page,default=1"`
	Limit        int    `form:"limit,default=20"`
}

// EarningItem 单条佣金记录
type EarningItem struct {
	ID          int64           `json:"id"`
	PaymentID   string          `json:"payment_id"`
	Date        time.Time       `json:"date"`
	NewMemberID int64           `json:"new_member_id"`
	FromMember  string          `json:"from_member"`
	Level       int             `json:"level"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
}

// EarningsListResponse GET /api/users/earnings
type EarningsListResponse struct {
	Earnings   []*EarningItem `json:"earnings"`
	Total      int64          `json:"total"`
	TotalPages int            `json:"total_pages"`
	Page       int            `json:"page"`
}

// ExportLinkResponse 导出文件的临时下载链接
type ExportLinkResponse struct {
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expires_in"`
}

// AdminCommissionListRequest 后台佣金列表请求
type AdminCommissionListRequest struct {
	Page        int    `form:"page,default=1"`
	PageSize    int    `form:"page_size,default=20"`
	Status      string `form:"status"`
	RecipientID int64  `form:"recipient_id"`
	PaymentID   string `form:"payment_id"`
}

// UpdateCommissionStatusRequest 更新佣金状态
type UpdateCommissionStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending processing completed failed"`
}

// EarningsSummaryResponse GET /api/users/earnings/summary
// 未通过 KYC 时可发放金额受 kyc_cap 限制，超出部分计入 held_amount
type EarningsSummaryResponse struct {
	TotalEarnings  decimal.Decimal `json:"total_earnings"`
	Pending        decimal.Decimal `json:"pending"`
	Processing     decimal.Decimal `json:"processing"`
	Failed         decimal.Decimal `json:"failed"`
	PayableBalance decimal.Decimal `json:"payable_balance"`
	HeldAmount     decimal.Decimal `json:"held_amount"`
	EarningsCapped bool            `json:"earnings_capped"`
	KYCStatus      string          `json:"kyc_status"`
	KYCCap         decimal.Decimal `json:"kyc_cap"`
}
