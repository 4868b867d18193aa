package service

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/mlm_go_server/config"
	"github.com/qs3c/mlm_go_server/internal/pkg/queue"
	"github.com/qs3c/mlm_go_server/internal/pkg/refsession"
	"github.com/qs3c/mlm_go_server/internal/repository"
	"github.com/qs3c/mlm_go_server/internal/testutil"
)

const (
	testWebhookSecret = "webhook-secret"
	testDepositUSDT   = "0x52908400098527886E0F7030069857D2E4169EE7"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:           "member-secret-for-testing",
			AdminSecret:      "admin-secret-for-testing",
			ExpireHours:      24,
			AdminExpireHours: 8,
		},
		Payments: config.PaymentsConfig{
			TTLMinutes:     60,
			PaymentURLBase: "https://pay.example.com/checkout/",
			WebhookSecret:  testWebhookSecret,
			Addresses:      map[string]string{"usdt": testDepositUSDT},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// testEnv 组装所有服务，共用一个内存库和一个 miniredis
type testEnv struct {
	db    *gorm.DB
	cfg   *config.Config
	mr    *miniredis.Miniredis
	queue *queue.Queue

	memberRepo     *repository.MemberRepository
	commissionRepo *repository.CommissionRepository
	paymentRepo    *repository.PaymentRepository

	tiers       *TierService
	milestones  *MilestoneService
	referrals   *ReferralService
	commissions *CommissionService
	earnings    *EarningsService
	payments    *PaymentService
	members     *MemberService
	kyc         *KYCService
	auth        *AuthService
}

func setupTestEnv(t *testing.T, mutate ...func(*config.Config)) (*testEnv, func()) {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	db := testutil.SetupTestDB(t)
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	memberRepo := repository.NewMemberRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	tierRepo := repository.NewTierRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	commissionRepo := repository.NewCommissionRepository(db)
	milestoneRepo := repository.NewMilestoneRepository(db)

	allocationQueue := queue.NewQueue(rdb, cfg.Queue.AllocationQueue)
	sessions := refsession.NewStore(rdb, time.Duration(cfg.Referral.CaptureTTLMinutes)*time.Minute)
	notifier := NewNotifier(nil, nil, memberRepo, nil)

	env := &testEnv{
		db:             db,
		cfg:            cfg,
		mr:             mr,
		queue:          allocationQueue,
		memberRepo:     memberRepo,
		commissionRepo: commissionRepo,
		paymentRepo:    paymentRepo,
	}
	env.tiers = NewTierService(tierRepo, nil)
	env.milestones = NewMilestoneService(milestoneRepo, memberRepo, cfg, notifier, nil)
	env.referrals = NewReferralService(db, memberRepo, env.milestones, sessions, notifier, cfg, nil)
	env.commissions = NewCommissionService(db, paymentRepo, tierRepo, memberRepo, commissionRepo, env.referrals, notifier, nil)
	env.earnings = NewEarningsService(db, commissionRepo, memberRepo, nil, cfg, nil)
	env.payments = NewPaymentService(db, paymentRepo, memberRepo, tierRepo, env.tiers, env.commissions, env.earnings, allocationQueue, notifier, cfg, nil)
	env.members = NewMemberService(memberRepo, nil)
	env.kyc = NewKYCService(memberRepo, notifier, nil)
	env.auth = NewAuthService(db, memberRepo, adminRepo, env.referrals, notifier, cfg, nil)

	cleanup := func() {
		rdb.Close()
		mr.Close()
		testutil.CleanupTestDB(t, db)
	}
	return env, cleanup
}
