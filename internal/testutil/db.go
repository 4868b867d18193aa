package testutil

import (
	"os"
	"strconv"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qs3c/mlm_go_server/config"
	"github.com/qs3c/mlm_go_server/internal/database"
)

// SetupTestDB 内存 SQLite，单连接，已迁移全部模型
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	migrate(t, db)
	return db
}

// SetupExternalTestDB 连接 TEST_DB_DRIVER 指定的 mysql / postgres 测试库，
// 用于验证行锁和唯一索引在真实数据库上的行为。未配置时跳过
//
//	TEST_DB_DRIVER=postgres TEST_DB_HOST=127.0.0.1 TEST_DB_PORT=5432 \
//	TEST_DB_USER=mlm TEST_DB_PASSWORD=mlm TEST_DB_NAME=mlm_test go test ./internal/repository/...
func SetupExternalTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	driver := os.Getenv("TEST_DB_DRIVER")
	if driver != database.DriverMySQL && driver != database.DriverPostgres {
		t.Skip("TEST_DB_DRIVER not set to mysql or postgres, skipping")
	}
	port, _ := strconv.Atoi(os.Getenv("TEST_DB_PORT"))

	db, err := database.Open(&config.DatabaseConfig{
		Driver:       driver,
		Host:         os.Getenv("TEST_DB_HOST"),
		Port:         port,
		Username:     os.Getenv("TEST_DB_USER"),
		Password:     os.Getenv("TEST_DB_PASSWORD"),
		Database:     os.Getenv("TEST_DB_NAME"),
		MaxOpenConns: 4,
	})
	if err != nil {
		t.Fatalf("open %s: %v", driver, err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)

	migrate(t, db)
	truncate(t, db)
	return db
}

func migrate(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

// truncate 按外键依赖倒序清空
func truncate(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, table := range []string{
		"milestone_awards", "commissions", "payments", "tiers", "admins", "members",
	} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}

// CleanupTestDB 关闭连接
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()

	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("db handle: %v", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		t.Logf("close db: %v", err)
	}
}
