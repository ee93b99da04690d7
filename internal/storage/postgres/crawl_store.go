// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/useneurox-company/sitesnap/internal/store"
)

// CrawlStoreConfig controls the Postgres connection pool used for crawl runs.
type CrawlStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// CrawlStore implements store.CrawlRepository on top of Postgres.
type CrawlStore struct {
	pool dbConn
}

// NewCrawlStore creates a Postgres-backed CrawlStore using the provided config.
func NewCrawlStore(ctx context.Context, cfg CrawlStoreConfig) (*CrawlStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CrawlStore{pool: pool}, nil
}

// NewCrawlStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCrawlStoreWithPool(pool dbConn) (*CrawlStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CrawlStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *CrawlStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StartCrawl inserts the run as running, or leaves an existing row untouched.
func (s *CrawlStore) StartCrawl(ctx context.Context, id uuid.UUID, site string, startedAt time.Time) error {
	query := `
		INSERT INTO crawl_runs (id, site, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, id, site, startedAt, store.CrawlRunning); err != nil {
		return fmt.Errorf("insert crawl start: %w", err)
	}
	return nil
}

// CompleteCrawl marks a run as finished with a status and optional error message.
func (s *CrawlStore) CompleteCrawl(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.CrawlStatus,
	errMsg *string,
) error {
	query := `
		UPDATE crawl_runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE id = $4;
	`
	if _, err := s.pool.Exec(ctx, query, finishedAt, status, errMsg, id); err != nil {
		return fmt.Errorf("complete crawl: %w", err)
	}
	return nil
}

// AddPageCounts applies captured/skipped/error deltas to a run's counters.
func (s *CrawlStore) AddPageCounts(ctx context.Context, id uuid.UUID, captured, skipped, errored int64) error {
	if captured == 0 && skipped == 0 && errored == 0 {
		return nil
	}
	query := `
		UPDATE crawl_runs
		SET pages_captured = pages_captured + $1,
			pages_skipped = pages_skipped + $2,
			page_errors = page_errors + $3
		WHERE id = $4;
	`
	if _, err := s.pool.Exec(ctx, query, captured, skipped, errored, id); err != nil {
		return fmt.Errorf("update page counts: %w", err)
	}
	return nil
}

// GetCrawl retrieves a single crawl run by its ID.
func (s *CrawlStore) GetCrawl(ctx context.Context, id uuid.UUID) (store.CrawlRun, error) {
	query := `
		SELECT id, site, started_at, finished_at, status, error_message,
			pages_captured, pages_skipped, page_errors
		FROM crawl_runs
		WHERE id = $1;
	`
	var run store.CrawlRun
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&run.ID,
		&run.Site,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.ErrorMessage,
		&run.PagesCaptured,
		&run.PagesSkipped,
		&run.PageErrors,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.CrawlRun{}, store.ErrNotFound
		}
		return store.CrawlRun{}, fmt.Errorf("get crawl: %w", err)
	}
	return run, nil
}

// ListCrawls retrieves crawl runs, newest first, with optional status filtering.
func (s *CrawlStore) ListCrawls(
	ctx context.Context,
	status *store.CrawlStatus,
	limit,
	offset int,
) ([]store.CrawlRun, error) {
	query := `
		SELECT id, site, started_at, finished_at, status, error_message,
			pages_captured, pages_skipped, page_errors
		FROM crawl_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list crawls: %w", err)
	}
	defer rows.Close()

	var runs []store.CrawlRun
	for rows.Next() {
		var run store.CrawlRun
		err := rows.Scan(
			&run.ID,
			&run.Site,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.ErrorMessage,
			&run.PagesCaptured,
			&run.PagesSkipped,
			&run.PageErrors,
		)
		if err != nil {
			return nil, fmt.Errorf("scan crawl row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crawl rows: %w", err)
	}
	return runs, nil
}
