package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
)

// PageInfo describes the outcome of a navigation.
type PageInfo struct {
	// FinalURL is the location after redirects.
	FinalURL string
	// StatusCode is the HTTP status of the document response; 200 when the
	// browser reported none (e.g., served from cache).
	StatusCode int
	// Title is the document title after load.
	Title string
}

// Session is one open tab. Sessions are not safe for concurrent use; each
// crawl worker owns its own.
type Session struct {
	pool      *Pool
	tabCtx    context.Context
	tabCancel context.CancelFunc
	logger    *zap.Logger
	closeOnce sync.Once
}

// Navigate loads the URL, waits for the DOM to settle, and reports the
// document status. The pool's per-host budget is consulted first.
func (s *Session) Navigate(ctx context.Context, rawURL string) (PageInfo, error) {
	if err := s.pool.waitHostBudget(ctx, rawURL); err != nil {
		return PageInfo{}, err
	}

	taskCtx, cancel := context.WithTimeout(s.tabCtx, s.pool.cfg.NavigationTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(s.tabCtx, meta.captureEvent)

	var (
		finalURL string
		title    string
	)
	tasks := chromedp.Tasks{
		network.Enable(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.pool.cfg.SettleDelay),
		chromedp.Location(&finalURL),
		chromedp.Title(&title),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return PageInfo{}, fmt.Errorf("navigate %s: %w", rawURL, err)
	}

	status, metaURL := meta.snapshot()
	if status == 0 {
		status = 200
	}
	if metaURL != "" {
		finalURL = metaURL
	}
	if finalURL == "" {
		finalURL = rawURL
	}
	return PageInfo{FinalURL: finalURL, StatusCode: status, Title: title}, nil
}

// SetViewport resizes the emulated screen.
func (s *Session) SetViewport(ctx context.Context, width, height int, mobile bool) error {
	taskCtx, cancel, stop := s.taskContext(ctx, 10*time.Second)
	defer cancel()
	defer stop()

	orientation := &emulation.ScreenOrientation{
		Type:  emulation.OrientationTypeLandscapePrimary,
		Angle: 0,
	}
	if mobile {
		orientation = &emulation.ScreenOrientation{
			Type:  emulation.OrientationTypePortraitPrimary,
			Angle: 0,
		}
	}
	action := emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1, mobile).
		WithScreenOrientation(orientation)
	if err := chromedp.Run(taskCtx, action); err != nil {
		return fmt.Errorf("set viewport %dx%d: %w", width, height, err)
	}
	return nil
}

// Screenshot captures the current viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	taskCtx, cancel, stop := s.taskContext(ctx, 30*time.Second)
	defer cancel()
	defer stop()

	var buf []byte
	if err := chromedp.Run(taskCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// FullScreenshot captures the entire scrollable page as PNG.
func (s *Session) FullScreenshot(ctx context.Context) ([]byte, error) {
	taskCtx, cancel, stop := s.taskContext(ctx, 60*time.Second)
	defer cancel()
	defer stop()

	var buf []byte
	if err := chromedp.Run(taskCtx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("capture full screenshot: %w", err)
	}
	return buf, nil
}

// HTML returns the serialized DOM of the current page.
func (s *Session) HTML(ctx context.Context) (string, error) {
	taskCtx, cancel, stop := s.taskContext(ctx, 15*time.Second)
	defer cancel()
	defer stop()

	var html string
	if err := chromedp.Run(taskCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read outer html: %w", err)
	}
	return html, nil
}

// Evaluate runs a JavaScript expression and unmarshals the result into out.
// Pass nil when the result is irrelevant.
func (s *Session) Evaluate(ctx context.Context, expression string, out any) error {
	taskCtx, cancel, stop := s.taskContext(ctx, 15*time.Second)
	defer cancel()
	defer stop()

	if err := chromedp.Run(taskCtx, chromedp.Evaluate(expression, out)); err != nil {
		return fmt.Errorf("evaluate expression: %w", err)
	}
	return nil
}

// Click dispatches a click on the first element matching the selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	taskCtx, cancel, stop := s.taskContext(ctx, 10*time.Second)
	defer cancel()
	defer stop()

	if err := chromedp.Run(taskCtx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// Hover synthesizes mouseenter/mouseover on the first element matching the
// selector so pure-CSS and JS hover states render.
func (s *Session) Hover(ctx context.Context, selector string) error {
	const script = `(function(sel) {
		const el = document.querySelector(sel);
		if (!el) { return false; }
		for (const type of ['mouseenter', 'mouseover', 'mousemove']) {
			el.dispatchEvent(new MouseEvent(type, {bubbles: true, cancelable: true, view: window}));
		}
		return true;
	})(%q)`
	var found bool
	if err := s.Evaluate(ctx, fmt.Sprintf(script, selector), &found); err != nil {
		return fmt.Errorf("hover %q: %w", selector, err)
	}
	if !found {
		return fmt.Errorf("hover %q: element not found", selector)
	}
	return nil
}

// Type focuses the selector and types the given text.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	taskCtx, cancel, stop := s.taskContext(ctx, 10*time.Second)
	defer cancel()
	defer stop()

	if err := chromedp.Run(taskCtx, chromedp.SendKeys(selector, text, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("type into %q: %w", selector, err)
	}
	return nil
}

// PressEscape sends the Escape key to the page, the usual way to dismiss an
// opened modal or dropdown.
func (s *Session) PressEscape(ctx context.Context) error {
	taskCtx, cancel, stop := s.taskContext(ctx, 5*time.Second)
	defer cancel()
	defer stop()

	if err := chromedp.Run(taskCtx, chromedp.KeyEvent(kb.Escape)); err != nil {
		return fmt.Errorf("press escape: %w", err)
	}
	return nil
}

// WaitVisible blocks until the selector is visible or the timeout elapses.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	taskCtx, cancel, stop := s.taskContext(ctx, timeout)
	defer cancel()
	defer stop()

	if err := chromedp.Run(taskCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait visible %q: %w", selector, err)
	}
	return nil
}

// DismissOverlays hides fixed cookie/consent banners that would otherwise
// cover every screenshot. Only elements whose text clearly marks them as
// consent UI are touched.
func (s *Session) DismissOverlays(ctx context.Context) error {
	const script = `(function() {
		const markers = ['cookie', 'consent', 'gdpr', 'куки', 'соглас'];
		let hidden = 0;
		for (const el of document.querySelectorAll('div, section, aside, dialog')) {
			const style = window.getComputedStyle(el);
			if (style.position !== 'fixed' && style.position !== 'sticky') { continue; }
			const text = (el.textContent || '').toLowerCase();
			if (text.length > 600) { continue; }
			if (markers.some(m => text.includes(m))) {
				el.style.setProperty('display', 'none', 'important');
				hidden++;
			}
		}
		return hidden;
	})()`
	var hidden int
	if err := s.Evaluate(ctx, script, &hidden); err != nil {
		return fmt.Errorf("dismiss overlays: %w", err)
	}
	if hidden > 0 {
		s.logger.Debug("hid consent overlays", zap.Int("count", hidden))
	}
	return nil
}

// Close releases the tab and its pool slot.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.tabCancel()
		s.pool.release()
	})
}

func (s *Session) taskContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, func()) {
	taskCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	stop := forwardCancel(ctx, cancel)
	return taskCtx, cancel, stop
}

type responseMeta struct {
	once   sync.Once
	mu     sync.Mutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.once.Do(func() {
		m.mu.Lock()
		m.status = int(resp.Response.Status)
		m.url = resp.Response.URL
		m.mu.Unlock()
	})
}

func (m *responseMeta) snapshot() (int, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.url
}

// forwardCancel cancels the chromedp task when the caller's context ends.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
