// Package store declares interfaces for persisting crawl run history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested crawl run does not exist.
var ErrNotFound = errors.New("crawl run not found")

// CrawlStatus mirrors the crawl_runs status column.
type CrawlStatus string

// Crawl statuses persisted in crawl_runs.status.
const (
	CrawlRunning CrawlStatus = "running"
	CrawlSuccess CrawlStatus = "success"
	CrawlError   CrawlStatus = "error"
)

// CrawlRun models one crawl of one site.
type CrawlRun struct {
	// ID is the crawl run identifier shared with progress events.
	ID uuid.UUID
	// Site is the crawled host (e.g., shop.example).
	Site string
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	// Status is running/success/error.
	Status CrawlStatus
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
	// PagesCaptured counts pages with at least one artifact written.
	PagesCaptured int64
	// PagesSkipped counts pages the classifier declined.
	PagesSkipped int64
	// PageErrors counts per-page failures the crawl survived.
	PageErrors int64
}

// CrawlRepository persists crawl run lifecycle and page counters.
type CrawlRepository interface {
	// StartCrawl inserts (or idempotently updates) the run as running.
	StartCrawl(ctx context.Context, id uuid.UUID, site string, startedAt time.Time) error
	// CompleteCrawl marks the run finished with the provided status and error.
	CompleteCrawl(ctx context.Context, id uuid.UUID, finishedAt time.Time, status CrawlStatus, errMsg *string) error
	// AddPageCounts applies captured/skipped/error deltas to a running crawl.
	AddPageCounts(ctx context.Context, id uuid.UUID, captured, skipped, errored int64) error

	// GetCrawl loads a single run or returns ErrNotFound.
	GetCrawl(ctx context.Context, id uuid.UUID) (CrawlRun, error)
	// ListCrawls returns runs filtered by optional status plus limit/offset,
	// newest first.
	ListCrawls(ctx context.Context, status *CrawlStatus, limit, offset int) ([]CrawlRun, error)
}
