package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dapsync/config"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the sync state database with GORM. The default driver is
// the embedded sqlite store; mysql is supported for deployments that keep
// the state on a shared database server.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var (
		gdb *gorm.DB
		err error
	)
	switch cfg.StateDBDriver {
	case "mysql":
		gdb, err = gorm.Open(mysql.Open(cfg.StateDBDSN), gormCfg)
	case "sqlite":
		if dir := filepath.Dir(cfg.StateDBPath); dir != "." {
			if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
				return nil, fmt.Errorf("failed to create state db directory: %w", mkErr)
			}
		}
		gdb, err = gorm.Open(sqlite.Open(cfg.StateDBPath), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported state db driver %q", cfg.StateDBDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if cfg.StateDBDriver == "sqlite" {
		// sqlite allows a single writer; funnel all access through one
		// connection so concurrent entry completions cannot collide.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	return gdb, nil
}

// Close closes the underlying connection pool.
func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate migrates the given models.
func AutoMigrate(gdb *gorm.DB, models ...interface{}) error {
	if err := gdb.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to auto migrate models: %w", err)
	}
	return nil
}
