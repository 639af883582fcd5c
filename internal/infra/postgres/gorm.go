package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sifan077/MiniLink/config"
	"github.com/sifan077/MiniLink/internal/infra/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const defaultGormConnLifetime = 5 * time.Minute

// NewGorm opens the GORM handle used for writes and lookups. Unique violations
// surface as gorm.ErrDuplicatedKey and SQL logging goes through log.
func NewGorm(cfg config.PostgresConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(ConnString(cfg)), &gorm.Config{
		Logger:                                   logger.NewGormLogger(log, 0),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open gorm connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: retrieve sql db: %w", err)
	}
	if err := applySQLPoolSettings(sqlDB, cfg); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// applySQLPoolSettings mirrors the pgx pool limits onto database/sql.
func applySQLPoolSettings(sqlDB *sql.DB, cfg config.PostgresConfig) error {
	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(int(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		sqlDB.SetMaxIdleConns(int(cfg.MinConns))
	}

	lifetime, ok, err := parseDuration("max_conn_lifetime", cfg.MaxConnLifetime)
	if err != nil {
		return err
	}
	if !ok {
		lifetime = defaultGormConnLifetime
	}
	sqlDB.SetConnMaxLifetime(lifetime)

	idle, ok, err := parseDuration("max_conn_idle_time", cfg.MaxConnIdleTime)
	if err != nil {
		return err
	}
	if ok {
		sqlDB.SetConnMaxIdleTime(idle)
	}
	return nil
}

// AutoMigrate creates or updates the tables for models.
func AutoMigrate(ctx context.Context, db *gorm.DB, models ...interface{}) error {
	if db == nil || len(models) == 0 {
		return nil
	}
	if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
