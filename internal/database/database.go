package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qs3c/mlm_go_server/config"
	"github.com/qs3c/mlm_go_server/internal/model"
)

// 支持的数据库驱动
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open 根据 database.driver 打开对应的数据库连接
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case DriverMySQL, "":
		return NewMySQL(cfg)
	case DriverPostgres:
		return NewPostgres(cfg)
	case DriverSQLite:
		return NewSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func NewMySQL(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	return open(mysql.Open(dsn), cfg)
}

func NewPostgres(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, sslMode)
	return open(postgres.Open(dsn), cfg)
}

// NewSQLite 本地开发与测试使用，path 为空时使用内存库
func NewSQLite(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	return open(sqlite.Open(path), cfg)
}

func open(dialector gorm.Dialector, cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true, // 唯一索引冲突统一为 gorm.ErrDuplicatedKey
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialector.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 10
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 100
	}
	// sqlite 内存库每个连接是独立的数据库
	if dialector.Name() == DriverSQLite {
		maxOpen = 1
	}
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// Models 需要迁移的全部模型
func Models() []interface{} {
	return []interface{}{
		&model.Member{},
		&model.Admin{},
		&model.Tier{},
		&model.Payment{},
		&model.Commission{},
		&model.MilestoneAward{},
	}
}

// AutoMigrate 创建或更新表结构（含唯一索引）
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
