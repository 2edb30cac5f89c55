package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Options controls connection-pool behaviour.
type Options struct {
	MaxConns               int32
	MinConns               int32
	MaxConnIdleTime        time.Duration
	MaxConnLifetime        time.Duration
	ConnTimeout            time.Duration
	StatementCacheCapacity int
	Logger                 *log.Logger
}

// Store owns the Postgres pool shared by the vault repository and its
// change listeners.
type Store struct {
	pool   *pgxpool.Pool
	logger *log.Logger
	opts   Options
}

// New initializes a connection pool and validates connectivity with Ping.
func New(ctx context.Context, dbURL string, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("store: opening pool (max=%d, min=%d, idle=%s, life=%s, stmt_cache=%d)",
		opts.MaxConns, opts.MinConns, opts.MaxConnIdleTime, opts.MaxConnLifetime, opts.StatementCacheCapacity)

	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.StatementCacheCapacity >= 0 {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
		cfg.ConnConfig.StatementCacheCapacity = opts.StatementCacheCapacity
	}

	connCtx, cancel := withOptionalTimeout(ctx, opts.ConnTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Println("store: database connection established")

	return &Store{pool: pool, logger: logger, opts: opts}, nil
}

// Migrate applies every pending goose migration found under dir in fsys.
func (s *Store) Migrate(ctx context.Context, fsys fs.FS, dir string) error {
	if s == nil || s.pool == nil {
		return errors.New("store not initialized")
	}
	return ApplyMigrations(ctx, s.pool, fsys, dir, s.logger)
}

// ApplyMigrations is Migrate for callers holding a bare pool. Each migration
// runs in its own transaction and is recorded in goose_db_version.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, dir string, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	return withMigrator(pool, fsys, dir, func(provider *goose.Provider) error {
		results, err := provider.Up(ctx)
		for _, res := range results {
			if res.Error == nil {
				logger.Printf("store: applied migration %s (%s)", path.Base(res.Source.Path), res.Duration)
			}
		}
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	})
}

// RollbackMigration reverts the most recently applied migration.
func RollbackMigration(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, dir string, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	return withMigrator(pool, fsys, dir, func(provider *goose.Provider) error {
		res, err := provider.Down(ctx)
		if err != nil {
			return fmt.Errorf("rollback migration: %w", err)
		}
		logger.Printf("store: rolled back migration %s", path.Base(res.Source.Path))
		return nil
	})
}

func withMigrator(pool *pgxpool.Pool, fsys fs.FS, dir string, fn func(*goose.Provider) error) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return fmt.Errorf("open migrations dir %s: %w", dir, err)
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, sub)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	return fn(provider)
}

// Close releases database resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.logger.Println("store: closing connection pool")
	s.pool.Close()
}

// HealthCheck verifies the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("store not initialized")
	}
	checkCtx, cancel := withOptionalTimeout(ctx, s.opts.ConnTimeout)
	defer cancel()
	return s.pool.Ping(checkCtx)
}

// Pool exposes the underlying pgx pool for repositories.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Stats exposes pgxpool statistics; the health endpoint reports them.
func (s *Store) Stats() *pgxpool.Stat {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Stat()
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
