package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/mlm_go_server/config"
	"github.com/qs3c/mlm_go_server/internal/model"
	"github.com/qs3c/mlm_go_server/internal/model/dto"
	"github.com/qs3c/mlm_go_server/internal/pkg/jwt"
	"github.com/qs3c/mlm_go_server/internal/pkg/logger"
	"github.com/qs3c/mlm_go_server/internal/pkg/wallet"
	"github.com/qs3c/mlm_go_server/internal/repository"
)

var (
	ErrEmailExists        = errors.New("邮箱已被注册")
	ErrUsernameExists     = errors.New("用户名已被使用")
	ErrWalletExists       = errors.New("该钱包已绑定其他账号")
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrTOTPRequired       = errors.New("请输入动态验证码")
	ErrInvalidTOTP        = errors.New("动态验证码错误")
)

type AuthService struct {
	db         *gorm.DB
	memberRepo *repository.MemberRepository
	adminRepo  *repository.AdminRepository
	referrals  *ReferralService
	notifier   *Notifier
	cfg        *config.Config
	logger     *zap.Logger
}

func NewAuthService(
	db *gorm.DB,
	memberRepo *repository.MemberRepository,
	adminRepo *repository.AdminRepository,
	referrals *ReferralService,
	notifier *Notifier,
	cfg *config.Config,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		db:         db,
		memberRepo: memberRepo,
		adminRepo:  adminRepo,
		referrals:  referrals,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger.OrNop(log),
	}
}

// duplicateCause 并发注册在唯一索引上冲突时，找出被占用的字段
func (s *AuthService) duplicateCause(member *model.Member, cause error) error {
	if exists, err := s.memberRepo.ExistsByEmail(member.Email); err == nil && exists {
		return ErrEmailExists
	}
	if exists, err := s.memberRepo.ExistsByUsername(member.Username); err == nil && exists {
		return ErrUsernameExists
	}
	if member.WalletAddress != nil {
		if exists, err := s.memberRepo.ExistsByWallet(*member.WalletAddress, 0); err == nil && exists {
			return ErrWalletExists
		}
	}
	return cause
}

// Register 会员注册，有上线时在同一事务内完成推荐归属
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.RegisterResponse, error) {
	// 检查邮箱是否存在
	exists, err := s.memberRepo.ExistsByEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailExists
	}

	// 检查用户名是否存在
	exists, err = s.memberRepo.ExistsByUsername(req.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUsernameExists
	}

	var walletAddress *string
	if req.WalletAddress != "" {
		addr, err := wallet.Normalize(req.WalletAddress)
		if err != nil {
			return nil, err
		}
		exists, err := s.memberRepo.ExistsByWallet(addr, 0)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrWalletExists
		}
		walletAddress = &addr
	}

	sponsor, err := s.referrals.ResolveSponsor(ctx, req.ReferralCode, req.ReferralToken)
	if err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	code, err := s.referrals.GenerateReferralCode(req.Username)
	if err != nil {
		return nil, err
	}

	member := &model.Member{
		Username:       req.Username,
		Email:          req.Email,
		PasswordHash:   string(hashedPassword),
		WalletAddress:  walletAddress,
		MembershipTier: model.TierAffiliate,
		ReferralCode:   code,
		KYCStatus:      model.KYCUnverified,
	}
	if sponsor != nil {
		member.SponsorID = &sponsor.ID
	}

	var awards []*model.MilestoneAward
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.memberRepo.WithTx(tx).Create(member); err != nil {
			return fmt.Errorf("failed to create member: %w", err)
		}
		if sponsor == nil {
			return nil
		}
		var err error
		awards, err = s.referrals.AttributeReferral(tx, member.ID, sponsor.ID)
		return err
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, s.duplicateCause(member, err)
	}
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{zap.Int64("user_id", member.ID), zap.String("referral_code", member.ReferralCode)}
	if sponsor != nil {
		fields = append(fields, zap.Int64("sponsor_id", sponsor.ID))
	}
	s.logger.Info("member registered", fields...)

	s.notifier.MilestonesAchieved(ctx, awards)
	s.notifier.Welcome(member)

	token, err := jwt.GenerateToken(member.ID, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		return nil, err
	}

	return &dto.RegisterResponse{
		UserID:       member.ID,
		Token:        token,
		ReferralCode: member.ReferralCode,
		User:         toMemberInfo(member),
	}, nil
}

// Login 会员登录
func (s *AuthService) Login(req *dto.LoginRequest) (*dto.LoginResponse, error) {
	member, err := s.memberRepo.GetByEmail(req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if member.Suspended {
		return nil, ErrMemberSuspended
	}

	token, err := jwt.GenerateToken(member.ID, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		return nil, err
	}

	return &dto.LoginResponse{
		Token: token,
		User:  toMemberInfo(member),
	}, nil
}

// AdminLogin 管理员登录，配置了 TOTP 密钥的账号需要动态验证码
func (s *AuthService) AdminLogin(req *dto.AdminLoginRequest) (*dto.AdminLoginResponse, error) {
	admin, err := s.adminRepo.GetByUsername(req.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if admin.TOTPSecret != "" {
		if req.TOTPCode == "" {
			return nil, ErrTOTPRequired
		}
		if !totp.Validate(req.TOTPCode, admin.TOTPSecret) {
			s.logger.Warn("admin totp rejected", zap.String("username", admin.Username))
			return nil, ErrInvalidTOTP
		}
	}

	hours := s.cfg.JWT.AdminExpireHours
	if hours <= 0 {
		hours = 8
	}
	token, err := jwt.GenerateScopedToken(admin.ID, jwt.ScopeAdmin, s.cfg.JWT.AdminSecret, hours)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.adminRepo.UpdateFields(admin.ID, map[string]interface{}{"last_login_at": now}); err != nil {
		s.logger.Warn("update admin last login failed", zap.Int64("admin_id", admin.ID), zap.Error(err))
	}
	s.logger.Info("admin logged in", zap.String("username", admin.Username))

	return &dto.AdminLoginResponse{
		Token:     token,
		ExpiresAt: now.Add(time.Duration(hours) * time.Hour),
		Username:  admin.Username,
	}, nil
}

// BootstrapAdmin 按配置创建初始管理员，已存在时不做修改
func (s *AuthService) BootstrapAdmin() (bool, error) {
	cfg := s.cfg.Admin
	if cfg.Username == "" || cfg.Password == "" {
		return false, nil
	}

	_, err := s.adminRepo.GetByUsername(cfg.Username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}

	admin := &model.Admin{
		Username:     cfg.Username,
		PasswordHash: string(hashedPassword),
		TOTPSecret:   cfg.TOTPSecret,
	}
	if err := s.adminRepo.Create(admin); err != nil {
		return false, err
	}

	s.logger.Info("bootstrap admin created", zap.String("username", admin.Username), zap.Bool("totp", admin.TOTPSecret != ""))
	return true, nil
}

// GetMemberByID 根据 ID 获取会员
func (s *AuthService) GetMemberByID(id int64) (*model.Member, error) {
	member, err := s.memberRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return member, nil
}
