package handler

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/mlm_go_server/config"
	"github.com/qs3c/mlm_go_server/internal/api/middleware"
	"github.com/qs3c/mlm_go_server/internal/pkg/queue"
	"github.com/qs3c/mlm_go_server/internal/pkg/refsession"
	"github.com/qs3c/mlm_go_server/internal/pkg/response"
	"github.com/qs3c/mlm_go_server/internal/repository"
	"github.com/qs3c/mlm_go_server/internal/service"
	"github.com/qs3c/mlm_go_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testWebhookSecret = "handler-webhook-secret"
	testDepositUSDT   = "0x52908400098527886E0F7030069857D2E4169EE7"
)

// testContext 处理器测试共用的依赖
type testContext struct {
	DB  *gorm.DB
	Cfg *config.Config

	Auth     *AuthHandler
	User     *UserHandler
	Earnings *EarningsHandler
	Referral *ReferralHandler
	Tier     *TierHandler
	Payment  *PaymentHandler
	Admin    *AdminHandler
}

func setupHandlers(t *testing.T) (*testContext, func()) {
	t.Helper()

	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:      "handler-member-secret",
			AdminSecret: "handler-admin-secret",
			ExpireHours: 24,
		},
		Payments: config.PaymentsConfig{
			PaymentURLBase: "https://pay.example.com/checkout/",
			WebhookSecret:  testWebhookSecret,
			Addresses:      map[string]string{"usdt": testDepositUSDT},
		},
	}
	cfg.ApplyDefaults()

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
	notifier := service.NewNotifier(nil, nil, memberRepo, nil)

	tiers := service.NewTierService(tierRepo, nil)
	milestones := service.NewMilestoneService(milestoneRepo, memberRepo, cfg, notifier, nil)
	referrals := service.NewReferralService(db, memberRepo, milestones, sessions, notifier, cfg, nil)
	commissions := service.NewCommissionService(db, paymentRepo, tierRepo, memberRepo, commissionRepo, referrals, notifier, nil)
	earnings := service.NewEarningsService(db, commissionRepo, memberRepo, nil, cfg, nil)
	payments := service.NewPaymentService(db, paymentRepo, memberRepo, tierRepo, tiers, commissions, earnings, allocationQueue, notifier, cfg, nil)
	members := service.NewMemberService(memberRepo, nil)
	kyc := service.NewKYCService(memberRepo, notifier, nil)
	auth := service.NewAuthService(db, memberRepo, adminRepo, referrals, notifier, cfg, nil)

	ctx := &testContext{
		DB:       db,
		Cfg:      cfg,
		Auth:     NewAuthHandler(auth),
		User:     NewUserHandler(members, referrals, milestones, kyc),
		Earnings: NewEarningsHandler(earnings),
		Referral: NewReferralHandler(referrals),
		Tier:     NewTierHandler(tiers),
		Payment:  NewPaymentHandler(payments),
		Admin:    NewAdminHandler(members, referrals, kyc, earnings, milestones, payments),
	}

	cleanup := func() {
		rdb.Close()
		mr.Close()
		testutil.CleanupTestDB(t, db)
	}
	return ctx, cleanup
}

func mockAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// dataMap 取出响应 data 对象
func dataMap(t *testing.T, resp response.Response) map[string]interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return data
}
