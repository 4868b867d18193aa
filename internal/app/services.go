package app

import (
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/mlm_go_server/config"
	"github.com/qs3c/mlm_go_server/internal/pkg/email"
	"github.com/qs3c/mlm_go_server/internal/pkg/logger"
	"github.com/qs3c/mlm_go_server/internal/pkg/oss"
	"github.com/qs3c/mlm_go_server/internal/pkg/pubsub"
	"github.com/qs3c/mlm_go_server/internal/pkg/queue"
	"github.com/qs3c/mlm_go_server/internal/pkg/refsession"
	"github.com/qs3c/mlm_go_server/internal/repository"
	"github.com/qs3c/mlm_go_server/internal/service"
)

// Services server、worker 和 reconcile 共用的服务集合
type Services struct {
	Queue *queue.Queue

	Tiers       *service.TierService
	Milestones  *service.MilestoneService
	Referrals   *service.ReferralService
	Commissions *service.CommissionService
	Earnings    *service.EarningsService
	Payments    *service.PaymentService
	Members     *service.MemberService
	KYC         *service.KYCService
	Auth        *service.AuthService
}

// NewServices 组装仓储与服务，OSS 未配置或初始化失败时导出链接不可用
func NewServices(cfg *config.Config, db *gorm.DB, rdb *redis.Client, log *zap.Logger) *Services {
	log = logger.OrNop(log)

	memberRepo := repository.NewMemberRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	tierRepo := repository.NewTierRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	commissionRepo := repository.NewCommissionRepository(db)
	milestoneRepo := repository.NewMilestoneRepository(db)

	allocationQueue := queue.NewQueue(rdb, cfg.Queue.AllocationQueue)
	sessions := refsession.NewStore(rdb, time.Duration(cfg.Referral.CaptureTTLMinutes)*time.Minute)
	mailer := email.NewService(&cfg.Email)
	notifier := service.NewNotifier(pubsub.NewPublisher(rdb), mailer, memberRepo, log)

	// 接口参数不能传入类型化的 nil 指针
	var storage service.ExportStorage
	if oss.Configured(&cfg.OSS) {
		client, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Warn("oss client unavailable, export links disabled", zap.Error(err))
		} else {
			storage = client
			log.Info("oss client initialized", zap.String("bucket", cfg.OSS.BucketName))
		}
	}

	s := &Services{Queue: allocationQueue}
	s.Tiers = service.NewTierService(tierRepo, log)
	s.Milestones = service.NewMilestoneService(milestoneRepo, memberRepo, cfg, notifier, log)
	s.Referrals = service.NewReferralService(db, memberRepo, s.Milestones, sessions, notifier, cfg, log)
	s.Commissions = service.NewCommissionService(db, paymentRepo, tierRepo, memberRepo, commissionRepo, s.Referrals, notifier, log)
	s.Earnings = service.NewEarningsService(db, commissionRepo, memberRepo, storage, cfg, log)
	s.Payments = service.NewPaymentService(db, paymentRepo, memberRepo, tierRepo, s.Tiers, s.Commissions, s.Earnings, allocationQueue, notifier, cfg, log)
	s.Members = service.NewMemberService(memberRepo, log)
	s.KYC = service.NewKYCService(memberRepo, notifier, log)
	s.Auth = service.NewAuthService(db, memberRepo, adminRepo, s.Referrals, notifier, cfg, log)
	return s
}

// Bootstrap 补齐配置中的会员等级并创建初始管理员
func (s *Services) Bootstrap(cfg *config.Config, log *zap.Logger) error {
	log = logger.OrNop(log)

	seeded, err := s.Tiers.Seed(cfg.Tiers)
	if err != nil {
		return err
	}
	if seeded > 0 {
		log.Info("tiers seeded", zap.Int("count", seeded))
	}

	created, err := s.Auth.BootstrapAdmin()
	if err != nil {
		return err
	}
	if created {
		log.Info("admin account bootstrapped", zap.String("username", cfg.Admin.Username))
	}
	return nil
}
