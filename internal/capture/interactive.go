package capture

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Per-page limits for interactive-state capture.
const (
	maxHoverStates = 5
	maxTabStates   = 5
	maxModalStates = 3
)

// interactiveCandidates is the per-category selector lists discovered on the
// page. Selectors are synthesized by findCandidatesScript and are unique
// within the document at discovery time.
type interactiveCandidates struct {
	Hover  []string `json:"hover"`
	Tabs   []string `json:"tabs"`
	Modals []string `json:"modals"`
}

// findCandidatesScript walks the DOM and nominates interactive elements:
// hoverable cards/buttons/nav items, tab and accordion triggers, and
// modal-opening controls. Each nominee gets a data attribute so the Go side
// can address it with a stable selector.
const findCandidatesScript = `(function() {
	let seq = 0;
	const mark = (el) => {
		if (!el.hasAttribute('data-ss-state')) {
			el.setAttribute('data-ss-state', 'ss-' + (seq++));
		}
		return '[data-ss-state="' + el.getAttribute('data-ss-state') + '"]';
	};
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		return r.width > 8 && r.height > 8;
	};
	const result = {hover: [], tabs: [], modals: []};

	for (const el of document.querySelectorAll(
		'a.button, button, .btn, .card, [class*="product-card"], nav a, [class*="menu"] > li')) {
		if (result.hover.length >= 12) { break; }
		if (visible(el)) { result.hover.push(mark(el)); }
	}
	for (const el of document.querySelectorAll(
		'[role="tab"], .tab, [class*="tab-"], [class*="accordion"] summary, ' +
		'[class*="accordion"] [class*="header"], details summary, [data-toggle="collapse"]')) {
		if (result.tabs.length >= 12) { break; }
		if (visible(el)) { result.tabs.push(mark(el)); }
	}
	for (const el of document.querySelectorAll(
		'[data-toggle="modal"], [data-modal], [class*="modal-open"], ' +
		'[class*="popup-trigger"], [aria-haspopup="dialog"]')) {
		if (result.modals.length >= 8) { break; }
		if (visible(el)) { result.modals.push(mark(el)); }
	}
	return result;
})()`

// parkMouseScript moves hover focus away so the next capture starts neutral.
const parkMouseScript = `(function() {
	document.body.dispatchEvent(new MouseEvent('mousemove',
		{bubbles: true, clientX: 0, clientY: 0, view: window}));
	return true;
})()`

// captureInteractive drives hover, tab, and modal states on the desktop
// viewport, screenshotting each and restoring the page between states.
// Individual state failures are logged and skipped.
func (e *Engine) captureInteractive(
	ctx context.Context,
	sess Session,
	site string,
	slug string,
	opts Options,
) ([]CapturedState, error) {
	desktop := DeviceByName("desktop")
	if err := sess.SetViewport(ctx, desktop.Width, desktop.Height, desktop.Mobile); err != nil {
		return nil, fmt.Errorf("reset desktop viewport: %w", err)
	}
	settle(ctx, opts.SettleDelay)

	var candidates interactiveCandidates
	if err := sess.Evaluate(ctx, findCandidatesScript, &candidates); err != nil {
		return nil, fmt.Errorf("discover interactive candidates: %w", err)
	}

	var states []CapturedState
	capture := func(kind, selector string, idx int, drive func() error, restore func()) {
		name := fmt.Sprintf("%s-%d", kind, idx+1)
		if err := drive(); err != nil {
			e.logger.Debug("interactive state failed",
				zap.String("state", name), zap.String("selector", selector), zap.Error(err))
			return
		}
		settle(ctx, stateSettle(opts.SettleDelay))
		shot, err := sess.Screenshot(ctx)
		if restore != nil {
			restore()
		}
		if err != nil {
			e.logger.Debug("interactive screenshot failed", zap.String("state", name), zap.Error(err))
			return
		}
		path, err := e.storeShot(ctx, fmt.Sprintf("%s/interactive/%s-%s", site, slug, name), shot)
		if err != nil {
			e.logger.Warn("store interactive screenshot failed", zap.String("state", name), zap.Error(err))
			return
		}
		states = append(states, CapturedState{Name: name, Kind: kind, Selector: selector, File: path})
	}

	for i, sel := range limit(candidates.Hover, maxHoverStates) {
		selector := sel
		capture("hover", selector, i,
			func() error { return sess.Hover(ctx, selector) },
			func() {
				var parked bool
				_ = sess.Evaluate(ctx, parkMouseScript, &parked)
			})
	}
	for i, sel := range limit(candidates.Tabs, maxTabStates) {
		selector := sel
		capture("tab", selector, i,
			func() error { return sess.Click(ctx, selector) },
			nil)
	}
	for i, sel := range limit(candidates.Modals, maxModalStates) {
		selector := sel
		capture("modal", selector, i,
			func() error { return sess.Click(ctx, selector) },
			func() {
				if err := sess.PressEscape(ctx); err != nil {
					e.logger.Debug("modal dismiss failed", zap.String("selector", selector), zap.Error(err))
				}
			})
	}
	return states, nil
}

func limit(values []string, max int) []string {
	if len(values) <= max {
		return values
	}
	return values[:max]
}

// stateSettle keeps interactive transitions snappy even when the page-level
// settle delay is long.
func stateSettle(base time.Duration) time.Duration {
	const maxWait = 400 * time.Millisecond
	if base <= 0 || base > maxWait {
		return maxWait
	}
	return base
}
