// Package capture turns a loaded, capture-approved page into artifacts:
// screenshots per device profile, an HTML dump, meta tags, interactive-state
// screenshots, design tokens, and downloaded site images.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/useneurox-company/sitesnap/internal/imaging"
	"github.com/useneurox-company/sitesnap/internal/storage"
)

// Session is the per-tab browser capability the engine drives. A page must be
// navigated before it is handed to the engine.
type Session interface {
	SetViewport(ctx context.Context, width, height int, mobile bool) error
	Screenshot(ctx context.Context) ([]byte, error)
	FullScreenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, expression string, out any) error
	Click(ctx context.Context, selector string) error
	Hover(ctx context.Context, selector string) error
	PressEscape(ctx context.Context) error
	DismissOverlays(ctx context.Context) error
}

// Device is one viewport profile.
type Device struct {
	Name   string
	Width  int
	Height int
	Mobile bool
}

// Default device profiles, desktop first so interactive capture can reuse the
// final viewport.
var DefaultDevices = []Device{
	{Name: "desktop", Width: 1920, Height: 1080},
	{Name: "tablet", Width: 768, Height: 1024},
	{Name: "mobile", Width: 375, Height: 812, Mobile: true},
}

// DeviceByName resolves a profile; unknown names fall back to desktop.
func DeviceByName(name string) Device {
	for _, d := range DefaultDevices {
		if d.Name == name {
			return d
		}
	}
	return DefaultDevices[0]
}

// Options selects which artifacts to produce for a page.
type Options struct {
	// Devices lists profile names to screenshot; empty means all defaults.
	Devices []string
	// FullPage captures the whole scroll height, falling back to the
	// viewport once when the page is too large.
	FullPage bool
	// SaveHTML dumps the rendered DOM next to the screenshots.
	SaveHTML bool
	// ExtractMeta reads description/og/canonical tags from the DOM.
	ExtractMeta bool
	// Interactive captures hover/tab/modal states on the desktop viewport.
	Interactive bool
	// DismissOverlays hides consent banners before the first screenshot.
	DismissOverlays bool
	// SettleDelay is the wait after a viewport change before screenshotting.
	SettleDelay time.Duration
}

func (o Options) devices() []Device {
	if len(o.Devices) == 0 {
		return DefaultDevices
	}
	out := make([]Device, 0, len(o.Devices))
	for _, name := range o.Devices {
		out = append(out, DeviceByName(name))
	}
	return out
}

// PageMeta holds the document metadata read from the DOM.
type PageMeta struct {
	Description string `json:"description,omitempty"`
	OGTitle     string `json:"ogTitle,omitempty"`
	OGImage     string `json:"ogImage,omitempty"`
	Favicon     string `json:"favicon,omitempty"`
	Canonical   string `json:"canonical,omitempty"`
	Lang        string `json:"lang,omitempty"`
}

// CapturedState records one interactive-state screenshot.
type CapturedState struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Selector string `json:"selector"`
	File     string `json:"file"`
}

// Result is everything the engine produced for one page.
type Result struct {
	// Files maps artifact keys (device names, "html") to blob paths.
	Files map[string]string
	// Meta is set when ExtractMeta was requested and succeeded.
	Meta *PageMeta
	// Interactive lists captured hover/tab/modal states, in capture order.
	Interactive []CapturedState
}

// Engine writes page artifacts through a blob store.
type Engine struct {
	store      storage.Provider
	compressor imaging.Compressor
	logger     *zap.Logger
}

// NewEngine constructs an engine. A nil compressor disables re-encoding.
func NewEngine(store storage.Provider, compressor imaging.Compressor, logger *zap.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if compressor == nil {
		compressor = imaging.NoopCompressor{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, compressor: compressor, logger: logger}, nil
}

// ScreenshotFunc is invoked after each device screenshot lands, with the
// device name and elapsed capture time.
type ScreenshotFunc func(device string, dur time.Duration)

// CapturePage produces the requested artifacts for the page currently loaded
// in the session. Artifact failures are isolated: a failing tablet screenshot
// does not lose the desktop one. An error is returned only when no artifact
// could be produced at all.
func (e *Engine) CapturePage(
	ctx context.Context,
	sess Session,
	site string,
	pathname string,
	opts Options,
	onShot ScreenshotFunc,
) (Result, error) {
	res := Result{Files: map[string]string{}}
	slug := Slug(pathname)

	if opts.DismissOverlays {
		if err := sess.DismissOverlays(ctx); err != nil {
			e.logger.Debug("overlay dismissal failed", zap.String("path", pathname), zap.Error(err))
		}
	}

	var firstErr error
	for _, device := range opts.devices() {
		start := time.Now()
		path, err := e.captureDevice(ctx, sess, site, slug, device, opts)
		if err != nil {
			e.logger.Warn("device capture failed",
				zap.String("device", device.Name),
				zap.String("path", pathname),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		res.Files[device.Name] = path
		if onShot != nil {
			onShot(device.Name, time.Since(start))
		}
	}

	if opts.SaveHTML || opts.ExtractMeta {
		html, err := sess.HTML(ctx)
		if err != nil {
			e.logger.Warn("html dump failed", zap.String("path", pathname), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if opts.SaveHTML {
				objectPath := fmt.Sprintf("%s/html/%s.html", site, slug)
				if _, err := e.store.PutObject(ctx, objectPath, "text/html; charset=utf-8", strings.NewReader(html)); err != nil {
					return res, fmt.Errorf("store html dump: %w", err)
				}
				res.Files["html"] = objectPath
			}
			if opts.ExtractMeta {
				meta, err := ExtractMeta(html)
				if err != nil {
					e.logger.Debug("meta extraction failed", zap.String("path", pathname), zap.Error(err))
				} else {
					res.Meta = meta
				}
			}
		}
	}

	if opts.Interactive {
		states, err := e.captureInteractive(ctx, sess, site, slug, opts)
		if err != nil {
			e.logger.Warn("interactive capture failed", zap.String("path", pathname), zap.Error(err))
		}
		res.Interactive = states
	}

	if len(res.Files) == 0 && firstErr != nil {
		return res, fmt.Errorf("no artifacts captured: %w", firstErr)
	}
	return res, nil
}

// captureDevice sets the viewport and takes one screenshot, retrying once
// without full-page mode when the page is too large for a single capture.
func (e *Engine) captureDevice(
	ctx context.Context,
	sess Session,
	site string,
	slug string,
	device Device,
	opts Options,
) (string, error) {
	if err := sess.SetViewport(ctx, device.Width, device.Height, device.Mobile); err != nil {
		return "", fmt.Errorf("set %s viewport: %w", device.Name, err)
	}
	settle(ctx, opts.SettleDelay)

	var (
		shot []byte
		err  error
	)
	if opts.FullPage {
		shot, err = sess.FullScreenshot(ctx)
		if err != nil {
			e.logger.Debug("full-page capture failed, retrying viewport-only",
				zap.String("device", device.Name), zap.Error(err))
			shot, err = sess.Screenshot(ctx)
		}
	} else {
		shot, err = sess.Screenshot(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}

	return e.storeShot(ctx, fmt.Sprintf("%s/%s/%s", site, device.Name, slug), shot)
}

// storeShot compresses and persists one screenshot, returning its blob path.
// Compression failures fall back to the raw payload.
func (e *Engine) storeShot(ctx context.Context, basePath string, shot []byte) (string, error) {
	payload, contentType, err := e.compressor.Compress(shot)
	if err != nil {
		e.logger.Debug("screenshot compression failed, storing raw", zap.Error(err))
		payload, contentType = shot, "image/png"
	}
	objectPath := basePath + extensionFor(contentType)
	if _, err := e.store.PutObject(ctx, objectPath, contentType, bytes.NewReader(payload)); err != nil {
		return "", fmt.Errorf("store screenshot: %w", err)
	}
	return objectPath, nil
}

func extensionFor(contentType string) string {
	if contentType == "image/jpeg" {
		return ".jpg"
	}
	return ".png"
}

func settle(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9а-яё]+`)

// maxSlugBytes caps artifact names in bytes, not runes.
const maxSlugBytes = 120

// Slug converts a pathname into a filesystem-safe artifact name. The root
// path maps to "home".
func Slug(pathname string) string {
	trimmed := strings.Trim(pathname, "/")
	if trimmed == "" {
		return "home"
	}
	slug := slugUnsafe.ReplaceAllString(strings.ToLower(trimmed), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "page"
	}
	if len(slug) > maxSlugBytes {
		// Back off to a rune boundary so Cyrillic slugs stay valid UTF-8.
		cut := maxSlugBytes
		for cut > 0 && !utf8.RuneStart(slug[cut]) {
			cut--
		}
		slug = strings.TrimRight(slug[:cut], "-")
	}
	return slug
}

// ExtractMeta reads document metadata from a rendered HTML snapshot.
func ExtractMeta(html string) (*PageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	meta := &PageMeta{}
	meta.Description, _ = doc.Find(`meta[name="description"]`).Attr("content")
	meta.OGTitle, _ = doc.Find(`meta[property="og:title"]`).Attr("content")
	meta.OGImage, _ = doc.Find(`meta[property="og:image"]`).Attr("content")
	meta.Canonical, _ = doc.Find(`link[rel="canonical"]`).Attr("href")
	meta.Lang, _ = doc.Find("html").Attr("lang")
	doc.Find(`link[rel~="icon"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if href, ok := s.Attr("href"); ok {
			meta.Favicon = href
			return false
		}
		return true
	})
	return meta, nil
}
