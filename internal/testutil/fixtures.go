package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/qs3c/mlm_go_server/internal/model"
)

var seq int64

func nextSeq() int64 {
	return atomic.AddInt64(&seq, 1)
}

// TestMember 创建测试会员
func TestMember(t *testing.T, db *gorm.DB, opts ...func(*model.Member)) *model.Member {
	t.Helper()

	n := nextSeq()
	member := &model.Member{
		Username:       fmt.Sprintf("member%d", n),
		Email:          fmt.Sprintf("member%d@example.com", n),
		PasswordHash:   "$2a$10$abcdefghijklmnopqrstuvwxyz123456", // bcrypt hash placeholder
		MembershipTier: model.TierAffiliate,
		KYCStatus:      model.KYCUnverified,
	}

	for _, opt := range opts {
		opt(member)
	}
	if member.ReferralCode == "" {
		member.ReferralCode = strings.ToUpper(member.Username)
	}

	if err := db.Create(member).Error; err != nil {
		t.Fatalf("Failed to create test member: %v", err)
	}

	return member
}

// WithUsername 设置用户名
func WithUsername(username string) func(*model.Member) {
	return func(m *model.Member) {
		m.Username = username
	}
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.Member) {
	return func(m *model.Member) {
		m.Email = email
	}
}

// WithSponsor 设置上线
func WithSponsor(sponsorID int64) func(*model.Member) {
	return func(m *model.Member) {
		m.SponsorID = &sponsorID
	}
}

// WithTier 设置会员等级
func WithTier(tier string) func(*model.Member) {
	return func(m *model.Member) {
		m.MembershipTier = tier
	}
}

// WithKYC 设置 KYC 状态
func WithKYC(status string) func(*model.Member) {
	return func(m *model.Member) {
		m.KYCStatus = status
	}
}

// WithSuspended 设置封禁状态
func WithSuspended() func(*model.Member) {
	return func(m *model.Member) {
		m.Suspended = true
	}
}

// WithWallet 设置钱包地址
func WithWallet(address string) func(*model.Member) {
	return func(m *model.Member) {
		m.WalletAddress = &address
	}
}

// WithReferralCounts 设置推荐计数
func WithReferralCounts(direct, total int) func(*model.Member) {
	return func(m *model.Member) {
		m.DirectReferrals = direct
		m.TotalReferrals = total
	}
}

// WithSubscriptionExpiry 设置会员到期时间
func WithSubscriptionExpiry(at time.Time) func(*model.Member) {
	return func(m *model.Member) {
		m.SubscriptionExpiresAt = &at
	}
}

// TestChain 创建一条推荐链，返回从根到叶的会员
func TestChain(t *testing.T, db *gorm.DB, length int) []*model.Member {
	t.Helper()

	chain := make([]*model.Member, 0, length)
	for i := 0; i < length; i++ {
		var opts []func(*model.Member)
		if i > 0 {
			opts = append(opts, WithSponsor(chain[i-1].ID))
		}
		chain = append(chain, TestMember(t, db, opts...))
	}
	return chain
}

// Rates 将字符串比例转换为 decimal 列表
func Rates(rates ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(rates))
	for i, r := range rates {
		out[i] = decimal.RequireFromString(r)
	}
	return out
}

// TestTier 创建测试等级
func TestTier(t *testing.T, db *gorm.DB, name, price string, rates ...string) *model.Tier {
	t.Helper()

	tier := &model.Tier{
		Name:         name,
		Price:        decimal.RequireFromString(price),
		Commissions:  Rates(rates...),
		Enabled:      true,
		DurationDays: 30,
	}

	if err := db.Create(tier).Error; err != nil {
		t.Fatalf("Failed to create test tier: %v", err)
	}

	return tier
}

// TestPayment 创建测试支付
func TestPayment(t *testing.T, db *gorm.DB, userID int64, tier, amount, status string, opts ...func(*model.Payment)) *model.Payment {
	t.Helper()

	payment := &model.Payment{
		ID:        uuid.NewString(),
		UserID:    userID,
		Tier:      tier,
		Amount:    decimal.RequireFromString(amount),
		Currency:  "USDT",
		Address:   "0x000000000000000000000000000000000000dEaD",
		Status:    status,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	for _, opt := range opts {
		opt(payment)
	}

	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("Failed to create test payment: %v", err)
	}

	return payment
}

// WithProcessed 标记佣金已分配
func WithProcessed() func(*model.Payment) {
	return func(p *model.Payment) {
		p.CommissionsProcessed = true
	}
}

// WithExpiresAt 设置支付过期时间
func WithExpiresAt(at time.Time) func(*model.Payment) {
	return func(p *model.Payment) {
		p.ExpiresAt = at
	}
}

// TestCommission 创建测试佣金记录
func TestCommission(t *testing.T, db *gorm.DB, recipientID, newMemberID int64, level int, amount, status string, opts ...func(*model.Commission)) *model.Commission {
	t.Helper()

	commission := &model.Commission{
		PaymentID:   uuid.NewString(),
		Level:       level,
		RecipientID: recipientID,
		NewMemberID: newMemberID,
		Tier:        model.TierGold,
		Rate:        decimal.RequireFromString("0.10"),
		Amount:      decimal.RequireFromString(amount),
		Status:      status,
	}

	for _, opt := range opts {
		opt(commission)
	}

	if err := db.Create(commission).Error; err != nil {
		t.Fatalf("Failed to create test commission: %v", err)
	}

	return commission
}

// WithPaymentID 设置佣金所属支付
func WithPaymentID(paymentID string) func(*model.Commission) {
	return func(c *model.Commission) {
		c.PaymentID = paymentID
	}
}

// WithCreatedAt 设置创建时间
func WithCreatedAt(at time.Time) func(*model.Commission) {
	return func(c *model.Commission) {
		c.CreatedAt = at
	}
}

// TestMilestone 创建测试里程碑奖励
func TestMilestone(t *testing.T, db *gorm.DB, userID int64, count int, bonus, status string) *model.MilestoneAward {
	t.Helper()

	award := &model.MilestoneAward{
		UserID:         userID,
		MilestoneCount: count,
		BonusAmount:    decimal.RequireFromString(bonus),
		Basis:          "direct",
		AchievedDate:   time.Now(),
		Status:         status,
	}

	if err := db.Create(award).Error; err != nil {
		t.Fatalf("Failed to create test milestone: %v", err)
	}

	return award
}
