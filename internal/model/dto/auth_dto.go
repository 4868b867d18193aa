package dto

import "time"

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username      string `json:"username" binding:"required,min=3,max=50,alphanum"`
	Email         string `json:"email" binding:"required,email"`
	Password      string `json:"password" binding:"required,min=8,max=64"`
	WalletAddress string `json:"wallet_address" binding:"omitempty,eth_addr"`
	ReferralCode  string `json:"referral_code" binding:"omitempty,max=64"`
	ReferralToken string `json:"referral_token" binding:"omitempty,hexadecimal,max=128"`
}

// RegisterResponse 注册响应
type RegisterResponse struct {
	UserID       int64       `json:"user_id"`
	Token        string      `json:"token"`
	ReferralCode string      `json:"referral_code"`
	User         *MemberInfo `json:"user"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token string      `json:"token"`
	User  *MemberInfo `json:"user"`
}

// AdminLoginRequest 管理员登录请求
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code" binding:"omitempty,len=6,numeric"`
}

// AdminLoginResponse 管理员登录响应
type AdminLoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
}

// MemberInfo 会员信息（返回给前端）
type MemberInfo struct {
	ID                    int64         `json:"id"`
	Username              string        `json:"username"`
	Email                 string        `json:"email,omitempty"`
	WalletAddress         string        `json:"wallet_address,omitempty"`
	MembershipTier        string        `json:"membership_tier"`
	SponsorID             *int64        `json:"sponsor_id,omitempty"`
	ReferralCode          string        `json:"referral_code"`
	SubscriptionExpiresAt *time.Time    `json:"subscription_expires_at,omitempty"`
	Suspended             bool          `json:"suspended"`
	KYCStatus             string        `json:"kyc_status"`
	KYCRejectionReason    string        `json:"kyc_rejection_reason,omitempty"`
	NetworkStats          *NetworkStats `json:"network_stats,omitempty"`
	CreatedAt             string        `json:"created_at,omitempty"`
}

// NetworkStats 推荐统计
type NetworkStats struct {
	DirectReferrals int `json:"direct_referrals"`
	TotalReferrals  int `json:"total_referrals"`
}
