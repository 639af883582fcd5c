package sqlite

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sifan077/MiniLink/config"
	"github.com/sifan077/MiniLink/internal/infra/logger"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	defaultPath   = "minilink.db"
	memoryPath    = ":memory:"
	busyTimeoutMS = 5000
)

// NewGorm opens the SQLite database used for local development and tests.
// A single connection keeps writers serialised, which SQLite requires, and
// keeps an in-memory database alive for the life of the handle.
func NewGorm(cfg config.SQLiteConfig, log *zap.Logger) (*gorm.DB, error) {
	path := cfg.Path
	if path == "" {
		path = defaultPath
	}

	db, err := gorm.Open(sqlite.Open(dsn(path)), &gorm.Config{
		Logger:         logger.NewGormLogger(log, 0),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite: retrieve sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	return db, nil
}

// AutoMigrate creates or updates the tables for models.
func AutoMigrate(ctx context.Context, db *gorm.DB, models ...interface{}) error {
	if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("sqlite: auto migrate: %w", err)
	}
	return nil
}

func dsn(path string) string {
	if path == memoryPath {
		return path
	}
	q := url.Values{}
	q.Set("_busy_timeout", fmt.Sprint(busyTimeoutMS))
	q.Set("_journal_mode", "WAL")
	return path + "?" + q.Encode()
}
