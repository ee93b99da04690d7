package crawl

import (
	"sync"

	"github.com/useneurox-company/sitesnap/internal/capture"
	"github.com/useneurox-company/sitesnap/internal/frontier"
)

// Context is the shared mutable state of one crawl run. Pages are
// append-only; design tokens are set at most once; the stop flag only ever
// flips from false to true. All mutation points take the mutex because
// workers run on real goroutines.
type Context struct {
	mu sync.Mutex

	baseHost string
	frontier *frontier.Frontier
	maxPages int

	pages         []PageRecord
	design        *capture.DesignTokens
	designClaimed bool
	assetsClaimed bool
	stopRequested bool
}

// NewContext creates the shared state for one run.
func NewContext(baseHost string, f *frontier.Frontier, maxPages int) *Context {
	return &Context{
		baseHost: baseHost,
		frontier: f,
		maxPages: maxPages,
	}
}

// BaseHost returns the host that bounds the crawl.
func (c *Context) BaseHost() string { return c.baseHost }

// Frontier returns the run's URL queue.
func (c *Context) Frontier() *frontier.Frontier { return c.frontier }

// AppendPage records a captured page unless the page cap is already met.
// It reports whether the record was appended.
func (c *Context) AppendPage(record PageRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxPages > 0 && len(c.pages) >= c.maxPages {
		return false
	}
	c.pages = append(c.pages, record)
	return true
}

// Pages returns a copy of the captured records in append order.
func (c *Context) Pages() []PageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]PageRecord(nil), c.pages...)
}

// PageCount reports the number of captured pages.
func (c *Context) PageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

// LimitReached reports whether the page cap is in effect and met.
func (c *Context) LimitReached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxPages > 0 && len(c.pages) >= c.maxPages
}

// ClaimDesign reserves the once-per-crawl design extraction for the caller.
// Only the first caller gets true; the claim stands even if extraction later
// fails, so the crawl never runs it twice.
func (c *Context) ClaimDesign() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.designClaimed {
		return false
	}
	c.designClaimed = true
	return true
}

// SetDesignTokens stores the tokens if none are recorded yet.
func (c *Context) SetDesignTokens(tokens *capture.DesignTokens) {
	if tokens == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.design == nil {
		c.design = tokens
	}
}

// DesignTokens returns the recorded tokens, or nil.
func (c *Context) DesignTokens() *capture.DesignTokens {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.design
}

// ClaimAssets reserves the once-per-crawl image download for the caller.
func (c *Context) ClaimAssets() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.assetsClaimed {
		return false
	}
	c.assetsClaimed = true
	return true
}

// RequestStop asks workers to stop after their in-flight page.
func (c *Context) RequestStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRequested = true
}

// StopRequested reports whether a graceful stop was requested.
func (c *Context) StopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopRequested
}
