package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig          `mapstructure:"server"`
	Database   DatabaseConfig        `mapstructure:"database"`
	Redis      RedisConfig           `mapstructure:"redis"`
	JWT        JWTConfig             `mapstructure:"jwt"`
	Admin      AdminConfig           `mapstructure:"admin"`
	OSS        OSSConfig             `mapstructure:"oss"`
	Email      EmailConfig           `mapstructure:"email"`
	Queue      QueueConfig           `mapstructure:"queue"`
	CORS       CORSConfig            `mapstructure:"cors"`
	RateLimit  RateLimitConfig       `mapstructure:"rate_limit"`
	Log        LogConfig             `mapstructure:"log"`
	Tiers      map[string]TierConfig `mapstructure:"tiers"`
	Commission CommissionConfig      `mapstructure:"commission"`
	Milestones MilestonesConfig      `mapstructure:"milestones"`
	Payments   PaymentsConfig        `mapstructure:"payments"`
	Referral   ReferralConfig        `mapstructure:"referral"`
	Cron       CronConfig            `mapstructure:"cron"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, postgres, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	Path         string `mapstructure:"path"` // sqlite 文件路径
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret           string `mapstructure:"secret"`
	AdminSecret      string `mapstructure:"admin_secret"`
	ExpireHours      int    `mapstructure:"expire_hours"`
	AdminExpireHours int    `mapstructure:"admin_expire_hours"`
}

// AdminConfig 启动时引导创建的管理员账号
type AdminConfig struct {
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	TOTPSecret string `mapstructure:"totp_secret"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type QueueConfig struct {
	AllocationQueue string `mapstructure:"allocation_queue"`
	MaxWorkers      int    `mapstructure:"max_workers"`
	MaxAttempts     int    `mapstructure:"max_attempts"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// TierConfig 会员等级定义，commissions 按推荐层级排列
type TierConfig struct {
	Price        float64   `mapstructure:"price"`
	Commissions  []float64 `mapstructure:"commissions"`
	Enabled      bool      `mapstructure:"enabled"`
	DurationDays int       `mapstructure:"duration_days"`
}

type CommissionConfig struct {
	KYCEarningsCap float64 `mapstructure:"kyc_earnings_cap"`
}

type MilestonesConfig struct {
	Basis string            `mapstructure:"basis"` // direct, network
	Table []MilestoneConfig `mapstructure:"table"`
}

type MilestoneConfig struct {
	Count int     `mapstructure:"count"`
	Bonus float64 `mapstructure:"bonus"`
}

type PaymentsConfig struct {
	TTLMinutes     int               `mapstructure:"ttl_minutes"`
	PaymentURLBase string            `mapstructure:"payment_url_base"`
	WebhookSecret  string            `mapstructure:"webhook_secret"`
	Addresses      map[string]string `mapstructure:"addresses"` // currency -> 收款地址
}

type ReferralConfig struct {
	CaptureTTLMinutes int `mapstructure:"capture_ttl_minutes"`
	MaxTreeDepth      int `mapstructure:"max_tree_depth"`
	MaxChainDepth     int `mapstructure:"max_chain_depth"`
	NetworkDepth      int `mapstructure:"network_depth"`
}

type CronConfig struct {
	AllocationSweepMinutes int `mapstructure:"allocation_sweep_minutes"`
	ExpirySweepMinutes     int `mapstructure:"expiry_sweep_minutes"`
}

const (
	MilestoneBasisDirect  = "direct"
	MilestoneBasisNetwork = "network"
)

// DefaultMilestones 默认里程碑奖励表
var DefaultMilestones = []MilestoneConfig{
	{Count: 25, Bonus: 25},
	{Count: 100, Bonus: 100},
	{Count: 250, Bonus: 250},
	{Count: 1000, Bonus: 1000},
	{Count: 5000, Bonus: 2500},
	{Count: 10000, Bonus: 5000},
}

func Load(configPath string) (*Config, error) {
	// .env 只用于本地开发，不存在时忽略
	_ = godotenv.Load()

	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("jwt.expire_hours", 72)
	v.SetDefault("jwt.admin_expire_hours", 8)
	v.SetDefault("queue.allocation_queue", "commission_allocation")
	v.SetDefault("queue.max_workers", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("milestones.basis", MilestoneBasisDirect)
}

// ApplyDefaults 填充未配置的业务参数
func (c *Config) ApplyDefaults() {
	if c.Queue.AllocationQueue == "" {
		c.Queue.AllocationQueue = "commission_allocation"
	}
	if c.Queue.MaxWorkers <= 0 {
		c.Queue.MaxWorkers = 2
	}
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = 5
	}
	if c.Commission.KYCEarningsCap <= 0 {
		c.Commission.KYCEarningsCap = 50
	}
	if c.Milestones.Basis == "" {
		c.Milestones.Basis = MilestoneBasisDirect
	}
	if len(c.Milestones.Table) == 0 {
		c.Milestones.Table = DefaultMilestones
	}
	if c.Payments.TTLMinutes <= 0 {
		c.Payments.TTLMinutes = 60
	}
	if c.Referral.CaptureTTLMinutes <= 0 {
		c.Referral.CaptureTTLMinutes = 30
	}
	if c.Referral.MaxTreeDepth <= 0 {
		c.Referral.MaxTreeDepth = 5
	}
	if c.Referral.MaxChainDepth <= 0 {
		c.Referral.MaxChainDepth = 64
	}
	if c.Referral.NetworkDepth <= 0 {
		c.Referral.NetworkDepth = 10
	}
	if c.Cron.AllocationSweepMinutes <= 0 {
		c.Cron.AllocationSweepMinutes = 5
	}
	if c.Cron.ExpirySweepMinutes <= 0 {
		c.Cron.ExpirySweepMinutes = 10
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 5
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}
}

// Validate 检查启动必需的配置项
func (c *Config) Validate() error {
	if c.JWT.Secret == "" || c.JWT.AdminSecret == "" {
		return errors.New("jwt.secret and jwt.admin_secret are required")
	}
	if c.JWT.Secret == c.JWT.AdminSecret {
		return errors.New("jwt.admin_secret must differ from jwt.secret")
	}
	switch c.Milestones.Basis {
	case MilestoneBasisDirect, MilestoneBasisNetwork:
	default:
		return fmt.Errorf("unknown milestones.basis %q", c.Milestones.Basis)
	}
	for name, tier := range c.Tiers {
		for i, rate := range tier.Commissions {
			if rate < 0 || rate > 1 {
				return fmt.Errorf("tier %s: commission rate at level %d out of range: %v", name, i+1, rate)
			}
		}
	}
	return nil
}
