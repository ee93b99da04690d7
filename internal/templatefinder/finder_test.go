package templatefinder

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/useneurox-company/sitesnap/internal/browser"
	"github.com/useneurox-company/sitesnap/internal/classify"
	"github.com/useneurox-company/sitesnap/internal/crawl"
	"github.com/useneurox-company/sitesnap/internal/oracle"
	"github.com/useneurox-company/sitesnap/internal/progress"
)

type sitePage struct {
	title  string
	status int
	html   string
}

type siteSource struct {
	pages map[string]sitePage
}

func (s *siteSource) Acquire(context.Context) (crawl.PageSession, error) {
	return &siteSession{source: s}, nil
}

type siteSession struct {
	source *siteSource
	html   string
}

func (f *siteSession) Navigate(_ context.Context, rawURL string) (browser.PageInfo, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return browser.PageInfo{}, err
	}
	page, ok := f.source.pages[u.Path]
	if !ok {
		f.html = "<html><body>missing</body></html>"
		return browser.PageInfo{FinalURL: rawURL, StatusCode: 404, Title: "404 — page not found"}, nil
	}
	f.html = page.html
	status := page.status
	if status == 0 {
		status = 200
	}
	return browser.PageInfo{FinalURL: rawURL, StatusCode: status, Title: page.title}, nil
}

func (f *siteSession) HTML(context.Context) (string, error)                { return f.html, nil }
func (f *siteSession) SetViewport(context.Context, int, int, bool) error   { return nil }
func (f *siteSession) Screenshot(context.Context) ([]byte, error)          { return []byte("s"), nil }
func (f *siteSession) FullScreenshot(context.Context) ([]byte, error)      { return []byte("f"), nil }
func (f *siteSession) Evaluate(context.Context, string, any) error         { return nil }
func (f *siteSession) Click(context.Context, string) error                 { return nil }
func (f *siteSession) Hover(context.Context, string) error                 { return nil }
func (f *siteSession) PressEscape(context.Context) error                   { return nil }
func (f *siteSession) DismissOverlays(context.Context) error               { return nil }
func (f *siteSession) Close()                                              {}

// pathOracle classifies by the Path line of the prompt.
func pathOracle(byPath map[string]string) oracle.Oracle {
	return oracle.Func(func(_ context.Context, prompt string) (string, error) {
		for path, answer := range byPath {
			if strings.Contains(prompt, "Path: "+path+"\n") {
				return answer, nil
			}
		}
		return "none", nil
	})
}

type stageRecorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *stageRecorder) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *stageRecorder) count(stage progress.Stage) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, evt := range r.events {
		if evt.Stage == stage {
			n++
		}
	}
	return n
}

func links(paths ...string) string {
	var b strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, p, p)
	}
	return b.String()
}

func fixtureShop() *siteSource {
	return &siteSource{pages: map[string]sitePage{
		"/": {title: "Widget Shop", html: "<html><body><nav>" +
			links("/about", "/contact", "/shop", "/shop/widget") + "</nav></body></html>"},
		"/about":   {title: "About us", html: `<html><body><section class="team">team</section></body></html>`},
		"/contact": {title: "Contacts", html: `<html><body><form></form><div id="map"></div></body></html>`},
		"/shop": {title: "Shop", html: "<html><body>" +
			strings.Repeat(`<div class="product-card"><span class="price">10</span></div>`, 6) +
			"</body></html>"},
		"/shop/widget": {title: "Widget", html: `<html><body><span class="price">99</span>` +
			`<button class="buy-button">Купить</button></body></html>`},
	}}
}

func shopOracle() oracle.Oracle {
	return pathOracle(map[string]string{
		"/":            "home",
		"/about":       "about",
		"/contact":     "contacts",
		"/shop":        "services",
		"/shop/widget": "product_item",
	})
}

func newFinder(t *testing.T, source crawl.SessionSource, o oracle.Oracle, emitter progress.Emitter) *Finder {
	t.Helper()
	classifier := classify.NewTemplateClassifier(o, nil, nil)
	finder, err := NewFinder(source, classifier, nil, emitter, nil)
	require.NoError(t, err)
	return finder
}

func foundTypes(result Result) []classify.PageType {
	types := make([]classify.PageType, 0, len(result.Found))
	for _, f := range result.Found {
		types = append(types, f.Type)
	}
	return types
}

func TestFinderCoversRequiredSet(t *testing.T) {
	t.Parallel()

	emitter := &stageRecorder{}
	finder := newFinder(t, fixtureShop(), shopOracle(), emitter)

	result, err := finder.Run(context.Background(), Options{StartURL: "https://shop.example/"})
	require.NoError(t, err)

	require.Empty(t, result.MissingRequired)
	require.Subset(t, foundTypes(result), []classify.PageType{
		classify.TypeHome, classify.TypeAbout, classify.TypeContacts,
		classify.TypeServices, classify.TypeProductItem, classify.TypeNotFound,
	})
	// Organic pages plus the synthetic 404 probe.
	require.Equal(t, 6, result.CheckedCount)

	// Priority sort: home first, 404 last.
	require.Equal(t, classify.TypeHome, result.Found[0].Type)
	require.Equal(t, classify.TypeNotFound, result.Found[len(result.Found)-1].Type)
	require.Equal(t, 1, emitter.count(progress.StageAllRequiredFound))
}

func TestFinderFirstMatchWins(t *testing.T) {
	t.Parallel()

	source := &siteSource{pages: map[string]sitePage{
		"/": {title: "Home", html: "<html><body>" + links("/about", "/about-2") + "</body></html>"},
		"/about":   {title: "About", html: "<html><body>first</body></html>"},
		"/about-2": {title: "About again", html: "<html><body>second</body></html>"},
	}}
	o := pathOracle(map[string]string{
		"/":        "home",
		"/about":   "about",
		"/about-2": "about",
	})
	finder := newFinder(t, source, o, nil)

	result, err := finder.Run(context.Background(), Options{StartURL: "https://a.example/"})
	require.NoError(t, err)

	for _, f := range result.Found {
		if f.Type == classify.TypeAbout {
			require.Equal(t, "https://a.example/about", f.Page.URL, "first match must win")
		}
	}
}

func TestFinderHardStopAtMaxPagesToCheck(t *testing.T) {
	t.Parallel()

	emitter := &stageRecorder{}
	finder := newFinder(t, fixtureShop(), shopOracle(), emitter)

	result, err := finder.Run(context.Background(), Options{
		StartURL:        "https://shop.example/",
		MaxPagesToCheck: 2,
	})
	require.NoError(t, err)

	// Two organic checks plus the 404 probe.
	require.Equal(t, 3, result.CheckedCount)
	require.Equal(t, 1, emitter.count(progress.StageLimitReached))
	require.NotEmpty(t, result.MissingRequired)
}

func TestFinderOracleFailureSkipsPagesNotRun(t *testing.T) {
	t.Parallel()

	broken := oracle.Func(func(context.Context, string) (string, error) {
		return "", errors.New("model unavailable")
	})
	finder := newFinder(t, fixtureShop(), broken, nil)

	result, err := finder.Run(context.Background(), Options{StartURL: "https://shop.example/"})
	require.NoError(t, err, "oracle failures are never run failures")

	// Only the deterministic 404 (from the probe) can be found.
	require.Equal(t, []classify.PageType{classify.TypeNotFound}, foundTypes(result))
	require.Contains(t, result.MissingRequired, classify.TypeHome)
}

func TestFinderDeterministic404NeedsNoOracle(t *testing.T) {
	t.Parallel()

	source := &siteSource{pages: map[string]sitePage{
		"/": {title: "Home", html: "<html><body>" + links("/dead") + "</body></html>"},
	}}
	o := pathOracle(map[string]string{"/": "home"})
	finder := newFinder(t, source, o, nil)

	result, err := finder.Run(context.Background(), Options{StartURL: "https://a.example/"})
	require.NoError(t, err)

	types := foundTypes(result)
	require.Contains(t, types, classify.TypeNotFound)
	// The organic /dead 404 means the probe is never issued.
	require.Equal(t, 2, result.CheckedCount)

	for _, f := range result.Found {
		if f.Type == classify.TypeNotFound {
			require.Equal(t, "/dead", f.Page.Pathname)
		}
	}
}

func TestFinderEarlyExitAfterSoftCap(t *testing.T) {
	t.Parallel()

	pages := map[string]sitePage{
		"/": {title: "Home", html: "<html><body>" + links(
			"/shop/widget", "/dead", "/about", "/contact", "/shop",
			"/portfolio", "/blog", "/faq", "/pricing") + "</body></html>"},
		"/shop/widget": {title: "Widget", html: "<html><body>w</body></html>"},
		"/about":       {title: "About", html: "<html><body>a</body></html>"},
		"/contact":     {title: "Contacts", html: "<html><body>c</body></html>"},
		"/shop":        {title: "Services", html: "<html><body>s</body></html>"},
		"/portfolio":   {title: "Portfolio", html: "<html><body>p</body></html>"},
		"/blog":        {title: "Blog", html: "<html><body>b</body></html>"},
		"/faq":         {title: "FAQ", html: "<html><body>f</body></html>"},
		"/pricing":     {title: "Pricing", html: "<html><body>pr</body></html>"},
	}
	o := pathOracle(map[string]string{
		"/":            "home",
		"/shop/widget": "product_item",
		"/about":       "about",
		"/contact":     "contacts",
		"/shop":        "services",
		"/portfolio":   "portfolio",
		"/blog":        "article",
		"/faq":         "faq",
		"/pricing":     "pricing",
	})
	emitter := &stageRecorder{}
	finder := newFinder(t, &siteSource{pages: pages}, o, emitter)

	result, err := finder.Run(context.Background(), Options{StartURL: "https://a.example/"})
	require.NoError(t, err)

	// Eight types (home, product_item, 404, about, contacts, services,
	// portfolio, article) complete the soft cap with the required set done;
	// /faq and /pricing are never dequeued.
	require.Equal(t, 8, result.CheckedCount)
	require.Empty(t, result.MissingRequired)
	require.NotContains(t, foundTypes(result), classify.TypePricing)
	require.Equal(t, 1, emitter.count(progress.StageAllRequiredFound))
}
