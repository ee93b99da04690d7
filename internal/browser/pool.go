// Package browser manages a shared headless Chrome process and hands out
// per-page sessions (tabs) to the capture pipeline.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrPoolClosed indicates the pool has been shut down.
var ErrPoolClosed = errors.New("browser pool closed")

// Config controls the shared Chrome process and per-session behavior.
type Config struct {
	// Headless runs Chrome without a visible window (default true).
	Headless bool `mapstructure:"headless" yaml:"headless"`
	// UserAgent overrides the browser user agent when non-empty.
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
	// NavigationTimeout bounds a single page load (default 45s).
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// SettleDelay is the post-load wait before reading the DOM (default 1.5s).
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	// MaxTabs caps concurrently open sessions (default 4).
	MaxTabs int `mapstructure:"max_tabs" yaml:"max_tabs"`
	// HostQPS limits navigations per host per second; 0 disables the limit.
	HostQPS float64 `mapstructure:"host_qps" yaml:"host_qps"`
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 1500 * time.Millisecond
	}
	if cfg.MaxTabs <= 0 {
		cfg.MaxTabs = 4
	}
	return cfg
}

// Pool owns one warm Chrome process and dispenses tabs. Sessions share the
// process, so startup cost is paid once per crawl rather than once per page.
type Pool struct {
	cfg             Config
	logger          *zap.Logger
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	sem             chan struct{}
	hostLimiters    sync.Map
	closed          chan struct{}
	closeOnce       sync.Once
}

// NewPool launches Chrome and warms up the browser context.
func NewPool(cfg Config, logger *zap.Logger) (*Pool, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Pool{
		cfg:             cfg,
		logger:          logger,
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		sem:             make(chan struct{}, cfg.MaxTabs),
		closed:          make(chan struct{}),
	}, nil
}

// Acquire opens a new tab. The caller must Close the session to release the
// tab slot; Acquire blocks while MaxTabs sessions are open.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	select {
	case <-p.closed:
		return nil, ErrPoolClosed
	default:
	}
	select {
	case p.sem <- struct{}{}:
	case <-p.closed:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire tab slot: %w", ctx.Err())
	}

	tabCtx, tabCancel := chromedp.NewContext(p.browserCtx)
	return &Session{
		pool:      p,
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
		logger:    p.logger,
	}, nil
}

// Close shuts down the Chrome process. Open sessions become unusable.
func (p *Pool) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.browserCancel()
		p.allocatorCancel()
	})
	select {
	case <-ctx.Done():
		return fmt.Errorf("browser pool close wait: %w", ctx.Err())
	default:
	}
	return nil
}

func (p *Pool) release() {
	select {
	case <-p.sem:
	default:
	}
}

// waitHostBudget blocks until the per-host navigation budget allows another
// page load.
func (p *Pool) waitHostBudget(ctx context.Context, rawURL string) error {
	if p.cfg.HostQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse navigation url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := p.hostLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(p.cfg.HostQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait host budget: %w", err)
	}
	return nil
}
