package dto

import "time"

// LinkWalletRequest 绑定钱包请求，signature 为对绑定消息的 personal_sign 签名
type LinkWalletRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required,eth_addr"`
	Signature     string `json:"signature" binding:"required"`
}

// ReferralCaptureResponse 推荐落地捕获响应
type ReferralCaptureResponse struct {
	ReferralToken   string `json:"referral_token"`
	SponsorUsername string `json:"sponsor_username"`
	ExpiresIn       int    `json:"expires_in"` // 秒
}

// NetworkMember 推荐树中的会员节点
type NetworkMember struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	MembershipTier string    `json:"membership_tier"`
	Level          int       `json:"level"`
	JoinedAt       time.Time `json:"joined_at"`
}

// NetworkNode 带下级的推荐树节点
type NetworkNode struct {
	NetworkMember
	Children []*NetworkNode `json:"children"`
}

// NetworkTreeResponse 推荐树响应
type NetworkTreeResponse struct {
	Root     *NetworkMember `json:"root"`
	Children []*NetworkNode `json:"children"`
	Depth    int            `json:"depth"`
}

// ReferralListRequest 直推列表请求
type ReferralListRequest struct {
	Page     int `form:"page,default=1"`
	PageSize int `form:"page_size,default=20"`
}

// AdminMemberListRequest 后台会员列表请求
type AdminMemberListRequest struct {
	Page      int    `form:"page,default=1"`
	PageSize  int    `form:"page_size,default=20"`
	Search    string `form:"search"`
	Tier      string `form:"tier"`
	Suspended *bool  `form:"suspended"`
	KYCStatus string `form:"kyc_status"`
}

// AdminUpdateMemberRequest 后台编辑会员
type AdminUpdateMemberRequest struct {
	Email                 *string    `json:"email,omitempty" binding:"omitempty,email"`
	MembershipTier        *string    `json:"membership_tier,omitempty" binding:"omitempty,oneof=affiliate bronze silver gold test vip_affiliate"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
}

// SuspendRequest 封禁/解封请求
type SuspendRequest struct {
	Suspended *bool `json:"suspended" binding:"required"`
}

// AssignSponsorRequest 后台为无上线会员指定上线
type AssignSponsorRequest struct {
	SponsorID int64 `json:"sponsor_id" binding:"required,gt=0"`
}

// KYCReviewRequest KYC 审核请求
type KYCReviewRequest struct {
	Approved        *bool  `json:"approved" binding:"required"`
	RejectionReason string `json:"rejection_reason" binding:"max=500"`
}
