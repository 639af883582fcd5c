package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/MiniLink/config"
	appmodel "github.com/sifan077/MiniLink/internal/app/model"
	apprepository "github.com/sifan077/MiniLink/internal/app/repository"
	appserver "github.com/sifan077/MiniLink/internal/app/server"
	appservice "github.com/sifan077/MiniLink/internal/app/service"
	"github.com/sifan077/MiniLink/internal/infra/logger"
	infraNATS "github.com/sifan077/MiniLink/internal/infra/nats"
	infraPostgres "github.com/sifan077/MiniLink/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/MiniLink/internal/infra/prometheus"
	infraRedis "github.com/sifan077/MiniLink/internal/infra/redis"
	infraSQLite "github.com/sifan077/MiniLink/internal/infra/sqlite"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.MustInit(logger.FromAppConfig(cfg.App, cfg.Log))
	defer func() { _ = logger.Sync() }()

	log.Info("Configuration loaded successfully",
		zap.String("env", cfg.App.Env),
		zap.Int("port", cfg.App.Port),
		zap.String("base_url", cfg.App.BaseURL),
		zap.String("store_driver", cfg.Store.Driver),
		zap.Bool("nats_enabled", cfg.NATS.Enabled),
		zap.Bool("prometheus_enabled", cfg.Prometheus.Enabled),
	)

	links, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open link store", zap.Error(err))
	}

	var (
		events    appservice.EventPublisher = appservice.NopPublisher{}
		publisher *appservice.LinkPublisher
		natsConn  *nats.Conn
	)
	if cfg.NATS.Enabled {
		conn, js, err := infraNATS.Connect(cfg.NATS, log.Named("nats"))
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		publisher = appservice.NewLinkPublisher(js)
		if err := publisher.EnsureStream(); err != nil {
			log.Fatal("Failed to prepare link event stream", zap.Error(err))
		}
		natsConn, events = conn, publisher
		log.Info("Connected to NATS successfully", zap.String("url", infraNATS.URL(cfg.NATS)))
	}

	var promServer *http.Server
	if cfg.Prometheus.Enabled {
		promServer = infraPrometheus.NewServer(cfg.Prometheus, nil)
		infraPrometheus.Serve(promServer, log)
	}

	linkService := appservice.NewLinkService(links, appservice.Options{
		BaseURL:    cfg.App.BaseURL,
		BatchLimit: cfg.App.BatchLimit,
		QR:         appservice.NewPNGQREncoder(0),
		Events:     events,
		Logger:     log.Named("links"),
	})

	server := appserver.New(appserver.Dependencies{
		Logger:      log,
		Links:       linkService,
		CORSOrigins: cfg.App.Origins(),
		Metrics:     cfg.Prometheus.Enabled,
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		log.Info("Starting HTTP server", zap.String("addr", addr))
		if err := server.Listen(addr); err != nil {
			log.Fatal("Fiber server exited", zap.Error(err))
		}
	}()

	wait := gfshutdown.GracefulShutdown(ctx, cfg.App.ShutdownGrace(), map[string]gfshutdown.Operation{
		// HTTP first, then the resources handlers depend on.
		"http": func(ctx context.Context) error {
			err := server.Shutdown(ctx)
			if publisher != nil {
				if flushErr := publisher.Flush(ctx); flushErr != nil {
					log.Warn("Pending link events were not acknowledged", zap.Error(flushErr))
				}
			}
			if natsConn != nil {
				if drainErr := natsConn.Drain(); drainErr != nil {
					log.Warn("Failed to drain NATS connection", zap.Error(drainErr))
				}
			}
			closeStore()
			return err
		},
		"metrics": func(ctx context.Context) error {
			if promServer == nil {
				return nil
			}
			return promServer.Shutdown(ctx)
		},
	})

	exitCode := <-wait
	log.Info("MiniLink stopped", zap.Int("exit_code", exitCode))
	_ = logger.Sync()
	os.Exit(exitCode)
}

// openStore connects the configured backend and returns its repository plus
// a function releasing every handle it opened.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (apprepository.LinkRepository, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		gormDB, err := infraPostgres.NewGorm(cfg.Postgres, log)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: access sql db: %w", err)
		}
		if err := infraPostgres.AutoMigrate(ctx, gormDB, &appmodel.Link{}); err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		log.Info("Connected to Postgres successfully",
			zap.String("host", cfg.Postgres.Host),
			zap.String("database", cfg.Postgres.Database),
		)
		return apprepository.NewPostgresLinkRepository(gormDB, pool), func() {
			pool.Close()
			_ = sqlDB.Close()
		}, nil

	case config.StoreDriverSQLite:
		gormDB, err := infraSQLite.NewGorm(cfg.SQLite, log)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: access sql db: %w", err)
		}
		if err := infraSQLite.AutoMigrate(ctx, gormDB, &appmodel.Link{}); err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		log.Info("Opened SQLite store", zap.String("path", cfg.SQLite.Path))
		return apprepository.NewLinkRepository(gormDB), func() { _ = sqlDB.Close() }, nil

	case config.StoreDriverRedis:
		client, err := infraRedis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Connected to Redis successfully", zap.String("addr", client.Options().Addr))
		return apprepository.NewRedisLinkRepository(client, cfg.Redis.KeyPrefix), func() { _ = client.Close() }, nil
	}

	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
