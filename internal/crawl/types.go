// Package crawl runs the breadth-first site crawl: it owns the frontier and
// the shared crawl context, drives per-page processing through the browser,
// classifier, and capture engine, and assembles the final report.
package crawl

import (
	"context"
	"time"

	"github.com/useneurox-company/sitesnap/internal/browser"
	"github.com/useneurox-company/sitesnap/internal/capture"
)

// PageRecord is one successfully captured page. Records are append-only and
// never mutated after insertion.
type PageRecord struct {
	URL         string                  `json:"url"`
	Pathname    string                  `json:"pathname"`
	Title       string                  `json:"title"`
	Files       map[string]string       `json:"files"`
	Meta        *capture.PageMeta       `json:"meta,omitempty"`
	Interactive []capture.CapturedState `json:"interactive,omitempty"`
}

// Options configures one crawl run.
type Options struct {
	// StartURL is where the crawl begins; its host bounds the crawl.
	StartURL string `json:"startUrl"`
	// Criterion is the free-text capture criterion; empty captures all.
	Criterion string `json:"criterion,omitempty"`
	// MaxPages caps captured pages; 0 means unlimited.
	MaxPages int `json:"maxPages,omitempty"`
	// Workers is the number of concurrent page workers (min 1).
	Workers int `json:"workers,omitempty"`
	// Devices selects viewport profiles; empty means all defaults.
	Devices []string `json:"devices,omitempty"`
	// FullPage captures the full scroll height with viewport fallback.
	FullPage bool `json:"fullPage,omitempty"`
	// SaveHTML dumps rendered HTML per captured page.
	SaveHTML bool `json:"saveHtml,omitempty"`
	// ExtractMeta records description/og/canonical tags per page.
	ExtractMeta bool `json:"extractMeta,omitempty"`
	// Interactive captures hover/tab/modal states per page.
	Interactive bool `json:"interactive,omitempty"`
	// ExtractDesign extracts design tokens once per crawl.
	ExtractDesign bool `json:"extractDesign,omitempty"`
	// DownloadImages downloads site images once per crawl.
	DownloadImages bool `json:"downloadImages,omitempty"`
	// DismissOverlays hides consent banners before screenshots.
	DismissOverlays bool `json:"dismissOverlays,omitempty"`
	// SettleDelay is the wait between viewport change and screenshot.
	SettleDelay time.Duration `json:"-"`
	// MaxImages caps the once-per-crawl asset download.
	MaxImages int `json:"maxImages,omitempty"`
	// ShouldStop is polled before every dequeue; returning true requests a
	// graceful stop (in-flight pages finish).
	ShouldStop func() bool `json:"-"`
}

// Report is the crawl's final artifact manifest.
type Report struct {
	CrawlID    string       `json:"crawlId"`
	Site       string       `json:"site"`
	SiteName   string       `json:"siteName"`
	StartURL   string       `json:"startUrl"`
	CrawledAt  time.Time    `json:"crawledAt"`
	TotalPages int          `json:"totalPages"`
	Options    Options      `json:"options"`
	Pages      []PageRecord `json:"pages"`
	// Design is persisted as a sibling design-system.json, not inside the
	// report itself.
	Design *capture.DesignTokens `json:"-"`
}

// PageSession is one owned tab: navigation plus the capture capabilities.
type PageSession interface {
	capture.Session
	Navigate(ctx context.Context, rawURL string) (browser.PageInfo, error)
	Close()
}

// SessionSource hands out page sessions. The production implementation wraps
// the browser pool; tests substitute fixture-backed fakes.
type SessionSource interface {
	Acquire(ctx context.Context) (PageSession, error)
}

// PoolSource adapts a browser.Pool to the SessionSource interface.
type PoolSource struct {
	Pool *browser.Pool
}

// Acquire opens a tab on the underlying pool.
func (p PoolSource) Acquire(ctx context.Context) (PageSession, error) {
	return p.Pool.Acquire(ctx)
}
