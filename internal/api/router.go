package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/qs3c/mlm_go_server/config"
	"github.com/qs3c/mlm_go_server/internal/api/handler"
	"github.com/qs3c/mlm_go_server/internal/api/middleware"
	"github.com/qs3c/mlm_go_server/internal/pkg/logger"
	"github.com/qs3c/mlm_go_server/internal/pkg/response"
)

type Router struct {
	authHandler      *handler.AuthHandler
	userHandler      *handler.UserHandler
	earningsHandler  *handler.EarningsHandler
	referralHandler  *handler.ReferralHandler
	tierHandler      *handler.TierHandler
	paymentHandler   *handler.PaymentHandler
	adminHandler     *handler.AdminHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
	logger           *zap.Logger
}

func NewRouter(
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	earningsHandler *handler.EarningsHandler,
	referralHandler *handler.ReferralHandler,
	tierHandler *handler.TierHandler,
	paymentHandler *handler.PaymentHandler,
	adminHandler *handler.AdminHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
	log *zap.Logger,
) *Router {
	return &Router{
		authHandler:      authHandler,
		userHandler:      userHandler,
		earningsHandler:  earningsHandler,
		referralHandler:  referralHandler,
		tierHandler:      tierHandler,
		paymentHandler:   paymentHandler,
		adminHandler:     adminHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
		logger:           logger.OrNop(log),
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(r.logger))
	engine.Use(middleware.Metrics())
	engine.Use(middleware.CORS(r.cfg.CORS))

	// 认证、回调和推荐落地接口按 IP 限流
	limited := middleware.RateLimit(middleware.NewIPRateLimiter(r.cfg.RateLimit))

	engine.GET("/health", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 公开接口 - 认证
		auth := api.Group("/auth")
		auth.Use(limited)
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
		}

		// 公开接口 - 会员等级
		membership := api.Group("/membership")
		membership.Use(middleware.OptionalAuth(r.cfg.JWT.Secret))
		{
			membership.GET("/tiers", r.tierHandler.Catalog)
		}

		// 公开接口 - 推荐落地
		api.GET("/referrals/capture/:code", limited, r.referralHandler.Capture)

		// 支付网关回调，签名校验代替登录
		api.POST("/payments/webhook", limited, r.paymentHandler.Webhook)

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			users := authenticated.Group("/users")
			{
				users.GET("/profile", r.userHandler.GetProfile)
				users.GET("/wallet/challenge", r.userHandler.WalletChallenge)
				users.PUT("/wallet", r.userHandler.LinkWallet)
				users.GET("/network-tree", r.userHandler.NetworkTree)
				users.GET("/referrals", r.userHandler.Referrals)
				users.GET("/milestones", r.userHandler.Milestones)
				users.POST("/kyc/submit", r.userHandler.SubmitKYC)

				users.GET("/earnings", r.earningsHandler.List)
				users.GET("/earnings/summary", r.earningsHandler.Summary)
				users.GET("/earnings/export", r.earningsHandler.Export)
				users.POST("/earnings/export-link", r.earningsHandler.ExportLink)
			}

			payments := authenticated.Group("/payments")
			{
				payments.POST("/create", r.paymentHandler.Create)
				payments.GET("", r.paymentHandler.List)
				payments.GET("/:id", r.paymentHandler.Get)
			}
		}
	}

	admin := engine.Group("/admin")
	{
		admin.POST("/auth/login", limited, r.authHandler.AdminLogin)

		protected := admin.Group("")
		protected.Use(middleware.AdminAuth(r.cfg.JWT.AdminSecret))
		{
			protected.GET("/members", r.adminHandler.ListMembers)
			protected.PUT("/members/:id", r.adminHandler.UpdateMember)
			protected.PUT("/members/:id/suspend", r.adminHandler.SuspendMember)
			protected.PUT("/members/:id/sponsor", r.adminHandler.AssignSponsor)

			protected.PUT("/kyc/:user_id/review", r.adminHandler.ReviewKYC)

			protected.GET("/commissions", r.adminHandler.ListCommissions)
			protected.PUT("/commissions/:id/status", r.adminHandler.UpdateCommissionStatus)

			protected.GET("/milestones", r.adminHandler.ListMilestones)
			protected.PUT("/milestones/:id/mark-paid", r.adminHandler.MarkMilestonePaid)

			protected.GET("/payments", r.adminHandler.ListPayments)

			protected.GET("/tiers", r.tierHandler.AdminList)
			protected.PUT("/tiers/:name", r.tierHandler.AdminUpdate)
		}
	}

	return engine
}
