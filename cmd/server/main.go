package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Clark-Hu/watchvault/db"
	"github.com/Clark-Hu/watchvault/internal/config"
	httpserver "github.com/Clark-Hu/watchvault/internal/http"
	"github.com/Clark-Hu/watchvault/internal/logging"
	"github.com/Clark-Hu/watchvault/internal/repository"
	"github.com/Clark-Hu/watchvault/internal/store"
	"github.com/Clark-Hu/watchvault/internal/tmdb"
	"github.com/Clark-Hu/watchvault/internal/vault"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, logCloser := logging.New(logging.Options{
		Prefix:     "[watchvault] ",
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	defer logCloser.Close()

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	storeOpts := store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	}

	st, err := store.New(dbCtx, cfg.DBURL, storeOpts)
	if err != nil {
		logger.Fatalf("connect database: %v", err)
	}
	defer st.Close()

	if cfg.DBAutoMigrate {
		if err := st.Migrate(dbCtx, db.Migrations, "migrations"); err != nil {
			logger.Fatalf("apply migrations: %v", err)
		}
	}

	catalog, err := tmdb.NewClient(tmdb.Options{
		BaseURL:        cfg.TMDBBaseURL,
		APIKey:         cfg.TMDBAPIKey,
		Region:         cfg.TMDBRegion,
		MaxRetries:     cfg.TMDBMaxRetries,
		Timeout:        time.Duration(cfg.TMDBTimeoutMS) * time.Millisecond,
		RetryBaseDelay: time.Duration(cfg.TMDBRetryBaseMS) * time.Millisecond,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatalf("init catalog client: %v", err)
	}
	if cfg.TMDBAPIKey == "" {
		logger.Printf("warning: %v", tmdb.ErrMissingAPIKey)
	}

	repo := repository.New(st)
	vaultSvc := vault.NewService(repo.Vault, logger)
	server := httpserver.New(cfg, st, catalog, vaultSvc, logger)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()
	logger.Printf("listening on :%s (catalog region %s)", cfg.Port, catalog.Region())

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server error: %v", err)
		}
	case <-ctx.Done():
		// Start drains in-flight requests before returning; the store closes after.
		if err := <-serverErrCh; err != nil {
			logger.Printf("graceful shutdown error: %v", err)
		}
	}
}
