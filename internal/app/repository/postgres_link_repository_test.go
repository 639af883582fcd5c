package repository

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/sifan077/MiniLink/config"
	"github.com/sifan077/MiniLink/internal/app/model"
	infraPostgres "github.com/sifan077/MiniLink/internal/infra/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startPostgres runs a throwaway PostgreSQL container and returns a setup
// function handing out the repository over a freshly truncated table.
func startPostgres(t *testing.T) func(t *testing.T) LinkRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL container in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("Docker unavailable: %s", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("Docker unavailable: %s", err)
	}
	pool.MaxWait = time.Minute

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=minilink",
			"POSTGRES_PASSWORD=secret",
			"POSTGRES_DB=links",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("Run container: %s", err)
	}
	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("Purge resource: %s", err)
		}
	})
	_ = resource.Expire(300)

	addr := resource.GetHostPort("5432/tcp")
	host, rawPort, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("Cannot split addr: %s: %s", addr, err)
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		t.Fatalf("Cannot parse port: %s: %s", rawPort, err)
	}

	cfg := config.PostgresConfig{
		Host:     host,
		Port:     port,
		User:     "minilink",
		Password: "secret",
		Database: "links",
		MaxConns: 8,
	}

	ctx := context.Background()
	err = pool.Retry(func() error {
		p, err := infraPostgres.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		p.Close()
		return nil
	})
	if err != nil {
		t.Fatalf("Postgres never became ready: %s", err)
	}

	db, err := infraPostgres.NewGorm(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, infraPostgres.AutoMigrate(ctx, db, &model.Link{}))
	pgxPool, err := infraPostgres.NewPool(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		pgxPool.Close()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	repo := NewPostgresLinkRepository(db, pgxPool)
	return func(t *testing.T) LinkRepository {
		t.Helper()
		require.NoError(t, db.Exec("TRUNCATE TABLE links").Error)
		return repo
	}
}

func TestPostgresLinkRepository(t *testing.T) {
	setup := startPostgres(t)

	runLinkRepositorySuite(t, setup)
	runSQLUniquenessCases(t, setup)

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("ClickReturnsUpdatedRow", func(t *testing.T) {
		repo := setup(t)
		link := newLink("promo", strPtr("promo"), base)
		exp := base.Add(time.Hour)
		link.ExpirationDate = &exp
		require.NoError(t, repo.Create(ctx, link))

		at := base.Add(time.Minute)
		got, err := repo.RecordClick(ctx, "promo", at)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ClickCount)
		assert.Equal(t, "promo", got.Alias())
		assert.Equal(t, "https://example.com/promo", got.LongURL)
		assert.True(t, got.LastAccessed.Equal(at))
		assert.True(t, got.CreatedAt.Equal(base))
		require.NotNil(t, got.ExpirationDate)
		assert.True(t, got.ExpirationDate.Equal(exp))
	})

	t.Run("ClickAtExpirationInstantCounts", func(t *testing.T) {
		repo := setup(t)
		link := newLink("edge", nil, base)
		exp := base.Add(time.Minute)
		link.ExpirationDate = &exp
		require.NoError(t, repo.Create(ctx, link))

		got, err := repo.RecordClick(ctx, "edge", exp)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ClickCount)

		_, err = repo.RecordClick(ctx, "edge", exp.Add(time.Millisecond))
		assert.ErrorIs(t, err, ErrLinkExpired)
	})
}
