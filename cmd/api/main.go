package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"usermanager.org/internal/audit"
	"usermanager.org/internal/auth"
	"usermanager.org/internal/config"
	"usermanager.org/internal/httpapi"
	"usermanager.org/internal/migrate"
	"usermanager.org/internal/obs"
	"usermanager.org/internal/seed"
	"usermanager.org/internal/store/memory"
	"usermanager.org/internal/store/pg"
	"usermanager.org/internal/store/sqlite"
)

// backend is what every store driver provides.
type backend interface {
	auth.CredentialStore
	auth.RoleStore
	audit.Store
	Ping(ctx context.Context) error
}

func main() {
	if err := run(); err != nil {
		obs.Logger().Error("fatal", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := obs.NewLogger(os.Stdout, cfg.LogLevel)
	obs.SetLogger(logger)

	// Инициализация observability (регистрация метрик, build info, трассировка)
	obs.Init()
	build := obs.InitBuildInfo(obs.BuildInfo{Version: cfg.Version, Commit: cfg.Commit, Store: cfg.Store.Driver})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := obs.SetupTracing(ctx, "usermanager-api", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(tctx)
	}()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	tokens, err := auth.NewTokenIssuer(cfg.TokenConfig())
	if err != nil {
		return err
	}
	auditLog := audit.New(store,
		audit.WithLogger(logger),
		audit.WithIncludeInactive(cfg.Audit.IncludeInactive),
	)
	svc, err := auth.NewService(store, store, tokens, auditLog,
		auth.WithAuditPolicy(cfg.AuditPolicy()),
		auth.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	if cfg.SeedFile != "" {
		f, err := seed.LoadFile(cfg.SeedFile)
		if err != nil {
			return err
		}
		if _, err := seed.Apply(ctx, svc, f, logger); err != nil {
			return err
		}
	}

	trusted, err := httpapi.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	status := httpapi.DefaultStatusPolicy()
	status.RegisterInvalidRole = cfg.HTTP.RegisterInvalidRoleStatus
	api, err := httpapi.New(httpapi.Options{
		Service:       svc,
		Audit:         auditLog,
		Tokens:        tokens,
		Ready:         httpapi.ReadyCheck{Store: store},
		Status:        status,
		AdminRole:     cfg.HTTP.AdminRole,
		RateBurst:     cfg.RateLimitBurst,
		RatePerSecond: cfg.RateLimitPerSecond,
		MaxBodyBytes:  cfg.MaxBodySize,
		Version:       cfg.Version,

		TrustedProxies: trusted,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting usermanager-api",
		slog.String("version", build.Version),
		slog.String("commit", build.Commit),
		slog.String("addr", srv.Addr),
		slog.String("store", cfg.Store.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (backend, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memory.New(), func() {}, nil

	case config.DriverPostgres:
		s, err := pg.Open(cfg.Store.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.Store.AutoMigrate {
			mgr := migrate.NewManager(s.DB(), migrate.Source{FS: pg.Migrations, Dir: "migrations"},
				migrate.WithSeeds(migrate.Source{FS: pg.Seeds, Dir: "seeds"}),
				migrate.WithLogger(logger),
			)
			mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := mgr.Up(mctx); err != nil {
				_ = s.Close()
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
			if err := mgr.Seed(mctx); err != nil {
				_ = s.Close()
				return nil, nil, fmt.Errorf("seed: %w", err)
			}
		}
		return s, func() { _ = s.Close() }, nil

	default:
		s, err := sqlite.New(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	}
}
