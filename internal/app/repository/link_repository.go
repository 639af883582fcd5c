package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sifan077/MiniLink/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrLinkNotFound signals that no record matches the requested code or alias.
	ErrLinkNotFound = errors.New("link not found")
	// ErrLinkExpired signals that the record exists but can no longer be redirected.
	ErrLinkExpired = errors.New("link expired")
	// ErrDuplicateLink signals a unique constraint violation on short code or alias.
	ErrDuplicateLink = errors.New("link already exists")
)

// LinkRepository defines the data access contract for short links.
// Implementations enforce uniqueness of ShortCode and CustomAlias themselves and
// apply RecordClick as a single atomic update.
type LinkRepository interface {
	Create(ctx context.Context, link *model.Link) error
	GetByCodeOrAlias(ctx context.Context, codeOrAlias string) (*model.Link, error)
	GetByAlias(ctx context.Context, alias string) (*model.Link, error)
	List(ctx context.Context) ([]model.Link, error)
	RecordClick(ctx context.Context, codeOrAlias string, at time.Time) (*model.Link, error)
	Delete(ctx context.Context, codeOrAlias string) error
	Ping(ctx context.Context) error
}

const (
	whereCodeOrAlias = "(short_code = ? OR custom_alias = ?)"
	whereNotExpired  = "(expiration_date IS NULL OR expiration_date >= ?)"
)

type linkRepository struct {
	db *gorm.DB
}

// NewLinkRepository returns a GORM-backed LinkRepository.
// The gorm.DB must be opened with TranslateError so unique violations map to gorm.ErrDuplicatedKey.
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Create(ctx context.Context, link *model.Link) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrDuplicateLink, link.ShortCode)
		}
		return err
	}
	return nil
}

func (r *linkRepository) GetByCodeOrAlias(ctx context.Context, codeOrAlias string) (*model.Link, error) {
	return r.first(ctx, whereCodeOrAlias, codeOrAlias, codeOrAlias)
}

func (r *linkRepository) GetByAlias(ctx context.Context, alias string) (*model.Link, error) {
	return r.first(ctx, "custom_alias = ?", alias)
}

func (r *linkRepository) first(ctx context.Context, query string, args ...interface{}) (*model.Link, error) {
	var link model.Link
	if err := r.db.WithContext(ctx).Where(query, args...).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) List(ctx context.Context) ([]model.Link, error) {
	result := make([]model.Link, 0)
	if err := r.db.WithContext(ctx).
		Order("last_accessed DESC").
		Order("short_code ASC").
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

// RecordClick increments the counter in one conditional UPDATE and reads the row back.
// When nothing was updated the row is inspected to tell a missing link from an expired one.
func (r *linkRepository) RecordClick(ctx context.Context, codeOrAlias string, at time.Time) (*model.Link, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Where(whereCodeOrAlias, codeOrAlias, codeOrAlias).
		Where(whereNotExpired, at).
		Updates(map[string]interface{}{
			"click_count":   gorm.Expr("click_count + ?", 1),
			"last_accessed": at,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, classifyMiss(ctx, r, codeOrAlias, at)
	}
	return r.GetByCodeOrAlias(ctx, codeOrAlias)
}

func (r *linkRepository) Delete(ctx context.Context, codeOrAlias string) error {
	result := r.db.WithContext(ctx).
		Where(whereCodeOrAlias, codeOrAlias, codeOrAlias).
		Delete(&model.Link{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func (r *linkRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// classifyMiss explains why a conditional click update touched no row.
func classifyMiss(ctx context.Context, repo LinkRepository, codeOrAlias string, at time.Time) error {
	link, err := repo.GetByCodeOrAlias(ctx, codeOrAlias)
	if err != nil {
		return err
	}
	if link.IsExpired(at) {
		return ErrLinkExpired
	}
	// The row appeared between the update and the lookup.
	return ErrLinkNotFound
}
