package model

import (
	"time"
)

// 会员等级
const (
	TierAffiliate    = "affiliate"
	TierBronze       = "bronze"
	TierSilver       = "silver"
	TierGold         = "gold"
	TierTest         = "test"
	TierVIPAffiliate = "vip_affiliate"
)

// TierNames 所有合法的等级名称
var TierNames = []string{TierAffiliate, TierBronze, TierSilver, TierGold, TierTest, TierVIPAffiliate}

// IsValidTier 判断等级名称是否合法
func IsValidTier(name string) bool {
	for _, n := range TierNames {
		if n == name {
			return true
		}
	}
	return false
}

// KYC 状态
const (
	KYCUnverified = "unverified"
	KYCPending    = "pending"
	KYCVerified   = "verified"
	KYCRejected   = "rejected"
)

type Member struct {
	ID                    int64      `gorm:"primaryKey" json:"id"`
	Username              string     `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email                 string     `gorm:"size:100;uniqueIndex;not null" json:"email"`
	PasswordHash          string     `gorm:"size:255;not null" json:"-"`
	WalletAddress         *string    `gorm:"size:42;uniqueIndex" json:"wallet_address,omitempty"`
	MembershipTier        string     `gorm:"size:20;default:affiliate;index" json:"membership_tier"`
	SponsorID             *int64     `gorm:"index" json:"sponsor_id,omitempty"`
	ReferralCode          string     `gorm:"size:64;uniqueIndex;not null" json:"referral_code"`
	SubscriptionExpiresAt *time.Time `gorm:"index" json:"subscription_expires_at,omitempty"`
	Suspended             bool       `gorm:"default:false" json:"suspended"`
	KYCStatus             string     `gorm:"column:kyc_status;size:20;default:unverified;index" json:"kyc_status"`
	KYCRejectionReason    string     `gorm:"column:kyc_rejection_reason;size:500" json:"kyc_rejection_reason,omitempty"`
	KYCSubmittedAt        *time.Time `gorm:"column:kyc_submitted_at" json:"kyc_submitted_at,omitempty"`
	DirectReferrals       int        `gorm:"default:0" json:"direct_referrals"`
	TotalReferrals        int        `gorm:"default:0" json:"total_referrals"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (Member) TableName() string {
	return "members"
}

// KYCVerified 是否已通过 KYC
func (m *Member) KYCVerified() bool {
	return m.KYCStatus == KYCVerified
}
