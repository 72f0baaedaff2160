// Saulto — Business Metrics Dashboard backend
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saulto/saulto/internal/api"
	"github.com/saulto/saulto/internal/api/handler"
	"github.com/saulto/saulto/internal/assistant"
	"github.com/saulto/saulto/internal/config"
	"github.com/saulto/saulto/internal/connector"
	"github.com/saulto/saulto/internal/db"
	"github.com/saulto/saulto/internal/health"
	"github.com/saulto/saulto/internal/observability"
	"github.com/saulto/saulto/internal/seed"
	syncpkg "github.com/saulto/saulto/internal/sync"
	"github.com/saulto/saulto/internal/version"
	"github.com/saulto/saulto/internal/warehouse"
	"github.com/saulto/saulto/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability -------------------------------------------------------
	obs, log, err := observability.New(ctx, &observability.Config{
		ServiceName:    "saulto",
		ServiceVersion: version.Version,
		LogLevel:       cfg.Log.Level,
		LogFormat:      cfg.Log.Format,
		OTLPEndpoint:   cfg.OTel.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer obs.Shutdown(context.Background())
	slog.SetDefault(log)
	log.Info("starting saulto", "version", version.Version, "commit", version.Commit, "db_driver", cfg.DB.Driver)

	// --- Database ------------------------------------------------------------
	// db.New opens the connection, runs migrations (AutoMigrate for SQLite,
	// golang-migrate for Postgres), and returns the GORM handle plus an
	// optional pgxpool (non-nil only for postgres, used by River and the
	// analytics warehouse).
	gormDB, pool, err := db.New(ctx, &cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if pool != nil {
		defer pool.Close()
	}
	log.Info("database ready", "driver", cfg.DB.Driver)

	// --- Seed company and admin ----------------------------------------------
	if err := seed.Ensure(ctx, gormDB, seed.Options{
		AdminEmail:    cfg.App.SeedAdminEmail,
		AdminPassword: cfg.App.SeedAdminPassword,
		CompanyName:   cfg.App.SeedCompanyName,
	}, log); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	// --- Connector stack -----------------------------------------------------
	providerClient := &http.Client{Timeout: cfg.Sync.HTTPTimeout}
	auths := make(map[string]syncpkg.TokenManager)
	oauthProviders := make(map[string]handler.OAuthProvider)
	for source, pc := range cfg.Providers {
		def, err := connector.Lookup(source)
		if err != nil {
			return fmt.Errorf("provider %s: %w", source, err)
		}
		a := connector.NewAuthenticator(def, pc.ClientID, pc.ClientSecret, cfg.App.BaseURL, cfg.JWT.Secret, providerClient)
		auths[source] = a
		oauthProviders[source] = a
		log.Info("connector enabled", "source", source)
	}

	var wh *warehouse.Warehouse
	var store syncpkg.Store
	if pool != nil {
		wh = warehouse.New(pool, cfg.Sync.RawRetention, log)
		store = wh
	}

	extractor := connector.NewExtractor(providerClient, log)
	orchestrator := syncpkg.New(gormDB, store, extractor, auths, cfg.Sync.EntityRowLimit, log)

	// --- Worker queue --------------------------------------------------------
	// River migrations only run when Postgres is available.
	if pool != nil {
		if err := worker.MigrateRiver(ctx, pool); err != nil {
			return fmt.Errorf("river migrations: %w", err)
		}
		log.Info("river migrations applied")
	}

	wq, err := worker.New(ctx, pool, cfg.DB.Driver, cfg.Worker.Concurrency, orchestrator, log)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}
	if err := wq.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := wq.Stop(stopCtx); err != nil {
			log.Error("worker stop error", "err", err)
		}
	}()

	// --- HTTP routes ---------------------------------------------------------
	var lister assistant.TableLister
	var warehouseReader handler.WarehouseReader
	var deployer handler.ModelDeployer
	if wh != nil {
		lister = wh
		warehouseReader = wh
		deployer = wh
	}

	router := api.NewRouter(api.Handlers{
		Health:      health.New(db.NewPinger(gormDB)),
		Auth:        handler.NewAuthHandler(gormDB, cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL),
		OAuth:       handler.NewOAuthHandler(gormDB, oauthProviders, wq, cfg.App.BaseURL, log),
		Connections: handler.NewConnectionHandler(gormDB, wq),
		Warehouse:   handler.NewWarehouseHandler(gormDB, warehouseReader),
		Chat:        handler.NewChatHandler(gormDB, assistant.NewHeuristicAgent(lister)),
		Models:      handler.NewSQLModelHandler(gormDB, deployer),
	}, cfg.JWT.Secret)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Start server --------------------------------------------------------
	log.Info("http server listening", "addr", srv.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped cleanly")
	return nil
}
