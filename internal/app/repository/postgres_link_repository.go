package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sifan077/MiniLink/internal/app/model"
	"gorm.io/gorm"
)

const recordClickSQL = `
UPDATE links
   SET click_count = click_count + 1,
       last_accessed = $2
 WHERE (short_code = $1 OR custom_alias = $1)
   AND (expiration_date IS NULL OR expiration_date >= $2)
RETURNING short_code, custom_alias, long_url, created_at, last_accessed, expiration_date, click_count`

// postgresLinkRepository reuses the GORM repository for everything except the
// redirect hot path, which runs as a single UPDATE ... RETURNING on the pgx pool.
type postgresLinkRepository struct {
	*linkRepository
	pool *pgxpool.Pool
}

// NewPostgresLinkRepository returns a LinkRepository for PostgreSQL.
func NewPostgresLinkRepository(db *gorm.DB, pool *pgxpool.Pool) LinkRepository {
	return &postgresLinkRepository{
		linkRepository: &linkRepository{db: db},
		pool:           pool,
	}
}

func (r *postgresLinkRepository) RecordClick(ctx context.Context, codeOrAlias string, at time.Time) (*model.Link, error) {
	var link model.Link
	err := r.pool.QueryRow(ctx, recordClickSQL, codeOrAlias, at).Scan(
		&link.ShortCode,
		&link.CustomAlias,
		&link.LongURL,
		&link.CreatedAt,
		&link.LastAccessed,
		&link.ExpirationDate,
		&link.ClickCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, classifyMiss(ctx, r, codeOrAlias, at)
		}
		return nil, err
	}
	return &link, nil
}

func (r *postgresLinkRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
