package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ledger-authz/internal/app"
	"github.com/odyssey-erp/ledger-authz/internal/auth"
	"github.com/odyssey-erp/ledger-authz/internal/observability"
	"github.com/odyssey-erp/ledger-authz/internal/platform/cache"
	"github.com/odyssey-erp/ledger-authz/internal/platform/db"
	"github.com/odyssey-erp/ledger-authz/internal/rbac"
	"github.com/odyssey-erp/ledger-authz/internal/session"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("authzd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	cacheMetrics, err := rbac.NewCacheMetrics(metrics.Registerer())
	if err != nil {
		return err
	}
	resolverCache, err := rbac.NewCache(rbac.NewResolver(nil), cfg.ResolverCacheSize, cacheMetrics)
	if err != nil {
		return err
	}

	sessions := session.NewManager(session.Config{
		TTL:             cfg.SessionTTL,
		CleanupInterval: cfg.SessionCleanupInterval,
		BitmapBytes:     cfg.SessionBitmapBytes,
		MemoryTarget:    cfg.SessionMemoryTarget,
	}, logger.With(slog.String("component", "session")), session.NewMetrics(metrics.Registerer()))

	repo := auth.NewRepository(dbpool)
	loader := auth.NewLoader(repo, resolverCache, auth.LoaderConfig{
		Policy:           cfg.FallbackPolicy(),
		SuperAdminEmails: cfg.AuthSuperAdminEmails,
	}, logger.With(slog.String("component", "loader")))
	snapshots := cache.NewSnapshotStore(redisClient, cfg.SnapshotTTL, logger)

	authHandler, err := auth.NewHandler(auth.HandlerConfig{
		Logger:          logger,
		Authenticator:   auth.NewService(repo),
		Loader:          loader,
		Cache:           resolverCache,
		Memberships:     repo,
		Sessions:        sessions,
		Snapshots:       snapshots,
		PublicRoutes:    cfg.PublicRoutes(),
		SecureCookie:    cfg.IsProduction(),
		LoginRateLimit:  cfg.LoginRateLimit,
		RoleLoadTimeout: cfg.AuthRoleLoadTimeout,
	})
	if err != nil {
		return err
	}

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		AuthHandler: authHandler,
		Metrics:     metrics,
		Checks: map[string]app.HealthChecker{
			"postgres": func(r *http.Request) error { return dbpool.Ping(r.Context()) },
			"redis":    func(r *http.Request) error { return redisClient.Ping(r.Context()).Err() },
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sessions.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
