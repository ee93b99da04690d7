package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/useneurox-company/sitesnap/internal/browser"
	"github.com/useneurox-company/sitesnap/internal/capture"
	"github.com/useneurox-company/sitesnap/internal/classify"
	"github.com/useneurox-company/sitesnap/internal/imaging"
	"github.com/useneurox-company/sitesnap/internal/oracle"
	"github.com/useneurox-company/sitesnap/internal/progress"
	"github.com/useneurox-company/sitesnap/internal/storage/memory"
)

type fixturePage struct {
	title  string
	status int
	html   string
}

// fixtureSource serves an in-memory site to page sessions.
type fixtureSource struct {
	base        string
	pages       map[string]fixturePage
	navErr      map[string]error
	designCalls atomic.Int64
}

func (s *fixtureSource) Acquire(context.Context) (PageSession, error) {
	return &fixtureSession{source: s}, nil
}

type fixtureSession struct {
	source *fixtureSource
	html   string
}

func (f *fixtureSession) Navigate(_ context.Context, rawURL string) (browser.PageInfo, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return browser.PageInfo{}, err
	}
	if navErr, ok := f.source.navErr[u.Path]; ok {
		return browser.PageInfo{}, navErr
	}
	page, ok := f.source.pages[u.Path]
	if !ok {
		f.html = "<html><head><title>404</title></head><body>not found</body></html>"
		return browser.PageInfo{FinalURL: rawURL, StatusCode: 404, Title: "404"}, nil
	}
	f.html = page.html
	status := page.status
	if status == 0 {
		status = 200
	}
	return browser.PageInfo{FinalURL: rawURL, StatusCode: status, Title: page.title}, nil
}

func (f *fixtureSession) HTML(context.Context) (string, error) { return f.html, nil }

func (f *fixtureSession) SetViewport(context.Context, int, int, bool) error { return nil }

func (f *fixtureSession) Screenshot(context.Context) ([]byte, error) {
	return []byte("shot"), nil
}

func (f *fixtureSession) FullScreenshot(context.Context) ([]byte, error) {
	return []byte("fullshot"), nil
}

func (f *fixtureSession) Evaluate(_ context.Context, _ string, out any) error {
	if tokens, ok := out.(*capture.DesignTokens); ok {
		f.source.designCalls.Add(1)
		*tokens = capture.DesignTokens{Colors: capture.ColorTokens{Primary: "rgb(1, 2, 3)"}}
	}
	return nil
}

func (f *fixtureSession) Click(context.Context, string) error    { return nil }
func (f *fixtureSession) Hover(context.Context, string) error    { return nil }
func (f *fixtureSession) PressEscape(context.Context) error      { return nil }
func (f *fixtureSession) DismissOverlays(context.Context) error  { return nil }
func (f *fixtureSession) Close()                                 {}

type recordEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordEmitter) byStage(stage progress.Stage) []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Event
	for _, evt := range r.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

func fixtureSite() *fixtureSource {
	link := func(paths ...string) string {
		var b strings.Builder
		for _, p := range paths {
			fmt.Fprintf(&b, `<a href="%s">%s</a>`, p, p)
		}
		return b.String()
	}
	return &fixtureSource{
		base: "https://shop.example/",
		pages: map[string]fixturePage{
			"/": {title: "Widget Shop", html: "<html><body><nav>" +
				link("/about", "/contact", "/shop", "/shop/") + "</nav></body></html>"},
			"/about": {title: "About", html: `<html><body><section class="team">Our team</section></body></html>`},
			"/contact": {title: "Contacts", html: `<html><body><form><input name="email"></form>` +
				`<div id="map"></div></body></html>`},
			"/shop": {title: "Shop", html: `<html><body>` +
				strings.Repeat(`<div class="product-card"><span class="price">10</span></div>`, 6) +
				link("/shop/widget") + `</body></html>`},
			"/shop/widget": {title: "Widget", html: `<html><body><span class="price">99</span>` +
				`<button class="buy-button">Купить</button></body></html>`},
		},
	}
}

func newTestOrchestrator(t *testing.T, source SessionSource, emitter progress.Emitter, answer string) (*Orchestrator, *memory.BlobStore) {
	t.Helper()
	store := memory.NewBlobStore()
	engine, err := capture.NewEngine(store, imaging.NoopCompressor{}, nil)
	require.NoError(t, err)
	criteria := classify.NewCriteriaClassifier(oracle.Func(func(context.Context, string) (string, error) {
		return answer, nil
	}), nil)
	orch, err := NewOrchestrator(source, engine, criteria, emitter, nil)
	require.NoError(t, err)
	return orch, store
}

func capturedURLs(report Report) []string {
	urls := make([]string, 0, len(report.Pages))
	for _, page := range report.Pages {
		urls = append(urls, page.URL)
	}
	return urls
}

func TestRunSequentialCapturesWholeSite(t *testing.T) {
	t.Parallel()

	source := fixtureSite()
	emitter := &recordEmitter{}
	orch, store := newTestOrchestrator(t, source, emitter, "yes")

	report, err := orch.Run(context.Background(), Options{
		StartURL: "https://shop.example/",
		Workers:  1,
		Devices:  []string{"desktop"},
	})
	require.NoError(t, err)

	require.Equal(t, "shop.example", report.Site)
	require.Equal(t, "shop", report.SiteName)
	require.Equal(t, 5, report.TotalPages)
	require.ElementsMatch(t, []string{
		"https://shop.example/",
		"https://shop.example/about",
		"https://shop.example/contact",
		"https://shop.example/shop",
		"https://shop.example/shop/widget",
	}, capturedURLs(report))

	// BFS order: the start page is captured first.
	require.Equal(t, "https://shop.example/", report.Pages[0].URL)
	require.Len(t, emitter.byStage(progress.StageStart), 1)
	require.Len(t, emitter.byStage(progress.StageComplete), 1)
	require.Len(t, emitter.byStage(progress.StagePageFound), 5)
	require.Len(t, emitter.byStage(progress.StagePageCaptured), 5)
	require.Equal(t, 5, store.Len(), "one desktop screenshot per page")
}

func TestRunNoDuplicateCaptures(t *testing.T) {
	t.Parallel()

	source := fixtureSite()
	orch, _ := newTestOrchestrator(t, source, nil, "yes")

	// "/" and "/shop/" vs "/shop" exercise trailing-slash dedup.
	report, err := orch.Run(context.Background(), Options{
		StartURL: "https://shop.example/",
		Workers:  1,
	})
	require.NoError(t, err)

	seen := map[string]struct{}{}
	for _, page := range report.Pages {
		_, dup := seen[page.Pathname]
		require.False(t, dup, "page %s captured twice", page.Pathname)
		seen[page.Pathname] = struct{}{}
	}
}

func TestRunParallelMatchesSequential(t *testing.T) {
	t.Parallel()

	seqReport, err := func() (Report, error) {
		orch, _ := newTestOrchestrator(t, fixtureSite(), nil, "yes")
		return orch.Run(context.Background(), Options{StartURL: "https://shop.example/", Workers: 1})
	}()
	require.NoError(t, err)

	parReport, err := func() (Report, error) {
		orch, _ := newTestOrchestrator(t, fixtureSite(), nil, "yes")
		return orch.Run(context.Background(), Options{StartURL: "https://shop.example/", Workers: 4})
	}()
	require.NoError(t, err)

	require.ElementsMatch(t, capturedURLs(seqReport), capturedURLs(parReport))
}

func TestRunParallelDrainsLinearChain(t *testing.T) {
	t.Parallel()

	// Each page links only to the next, so the queue is empty whenever a
	// worker is mid-page. Idle workers must keep waiting on the in-flight
	// peer instead of exiting, or the chain is cut short.
	link := func(p string) string { return fmt.Sprintf(`<a href="%s">next</a>`, p) }
	source := &fixtureSource{
		base: "https://chain.example/",
		pages: map[string]fixturePage{
			"/":  {title: "Home", html: "<html><body>" + link("/a") + "</body></html>"},
			"/a": {title: "A", html: "<html><body>" + link("/b") + "</body></html>"},
			"/b": {title: "B", html: "<html><body>" + link("/c") + "</body></html>"},
			"/c": {title: "C", html: "<html><body>" + link("/d") + "</body></html>"},
			"/d": {title: "D", html: "<html><body>" + link("/e") + "</body></html>"},
			"/e": {title: "E", html: "<html><body>end</body></html>"},
		},
	}
	orch, _ := newTestOrchestrator(t, source, nil, "yes")

	report, err := orch.Run(context.Background(), Options{
		StartURL: "https://chain.example/",
		Workers:  4,
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{
		"https://chain.example/",
		"https://chain.example/a",
		"https://chain.example/b",
		"https://chain.example/c",
		"https://chain.example/d",
		"https://chain.example/e",
	}, capturedURLs(report))
}

func TestRunMaxPagesEmitsOneLimitEvent(t *testing.T) {
	t.Parallel()

	emitter := &recordEmitter{}
	orch, _ := newTestOrchestrator(t, fixtureSite(), emitter, "yes")

	report, err := orch.Run(context.Background(), Options{
		StartURL: "https://shop.example/",
		Workers:  1,
		MaxPages: 2,
	})
	require.NoError(t, err)
	require.LessOrEqual(t, report.TotalPages, 2)
	require.Len(t, emitter.byStage(progress.StageLimitReached), 1)
}

func TestRunSkippedPageStillExtendsCrawl(t *testing.T) {
	t.Parallel()

	source := fixtureSite()
	emitter := &recordEmitter{}
	store := memory.NewBlobStore()
	engine, err := capture.NewEngine(store, imaging.NoopCompressor{}, nil)
	require.NoError(t, err)

	// The oracle declines the shop listing but accepts everything else; the
	// widget page is only reachable through the declined listing.
	criteria := classify.NewCriteriaClassifier(oracle.Func(func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "Path: /shop\n") {
			return "no", nil
		}
		return "yes", nil
	}), nil)
	orch, err := NewOrchestrator(source, engine, criteria, emitter, nil)
	require.NoError(t, err)

	report, err := orch.Run(context.Background(), Options{
		StartURL:  "https://shop.example/",
		Workers:   1,
		Criterion: "product pages",
	})
	require.NoError(t, err)

	require.NotEmpty(t, emitter.byStage(progress.StageSkipped))
	require.Contains(t, capturedURLs(report), "https://shop.example/shop/widget",
		"links from a skipped page must still be crawled")
	require.NotContains(t, capturedURLs(report), "https://shop.example/shop")
}

func TestRunPageErrorDoesNotAbortCrawl(t *testing.T) {
	t.Parallel()

	source := fixtureSite()
	source.navErr = map[string]error{"/about": errors.New("net::ERR_CONNECTION_RESET")}
	emitter := &recordEmitter{}
	orch, _ := newTestOrchestrator(t, source, emitter, "yes")

	report, err := orch.Run(context.Background(), Options{
		StartURL: "https://shop.example/",
		Workers:  1,
	})
	require.NoError(t, err)

	require.Len(t, emitter.byStage(progress.StagePageError), 1)
	require.NotContains(t, capturedURLs(report), "https://shop.example/about")
	require.Contains(t, capturedURLs(report), "https://shop.example/contact")
}

func TestRunDesignTokensExtractedOnce(t *testing.T) {
	t.Parallel()

	source := fixtureSite()
	orch, _ := newTestOrchestrator(t, source, nil, "yes")

	report, err := orch.Run(context.Background(), Options{
		StartURL:      "https://shop.example/",
		Workers:       4,
		ExtractDesign: true,
	})
	require.NoError(t, err)
	require.NotNil(t, report.Design)
	require.Equal(t, "rgb(1, 2, 3)", report.Design.Colors.Primary)
	require.Equal(t, int64(1), source.designCalls.Load(), "design extraction must run once per crawl")
}

func TestRunShouldStopHaltsCrawl(t *testing.T) {
	t.Parallel()

	emitter := &recordEmitter{}
	orch, _ := newTestOrchestrator(t, fixtureSite(), emitter, "yes")

	var processed atomic.Int64
	report, err := orch.Run(context.Background(), Options{
		StartURL: "https://shop.example/",
		Workers:  1,
		ShouldStop: func() bool {
			return processed.Add(1) > 2
		},
	})
	require.NoError(t, err)
	require.Less(t, report.TotalPages, 5)
	require.Len(t, emitter.byStage(progress.StageStopping), 1)
}

func TestRunRejectsInvalidStartURL(t *testing.T) {
	t.Parallel()

	orch, _ := newTestOrchestrator(t, fixtureSite(), nil, "yes")
	_, err := orch.Run(context.Background(), Options{StartURL: "not a url"})
	require.Error(t, err)
}

func TestWriteReportPersistsArtifacts(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	report := Report{
		Site:       "shop.example",
		SiteName:   "shop",
		StartURL:   "https://shop.example/",
		CrawledAt:  time.Unix(1700000000, 0).UTC(),
		TotalPages: 1,
		Pages: []PageRecord{{
			URL:      "https://shop.example/",
			Pathname: "/",
			Title:    "Widget Shop",
			Files:    map[string]string{"desktop": "shop.example/desktop/home.png"},
		}},
		Design: &capture.DesignTokens{Colors: capture.ColorTokens{Primary: "rgb(1, 2, 3)"}},
	}

	uri, err := WriteReport(context.Background(), store, report)
	require.NoError(t, err)
	require.Equal(t, "memory://shop.example/report.json", uri)

	raw, ok := store.Object("shop.example/report.json")
	require.True(t, ok)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "shop.example", decoded["site"])
	require.NotContains(t, decoded, "Design", "design tokens live in the sibling file")

	designRaw, ok := store.Object("shop.example/design-system.json")
	require.True(t, ok)
	var design capture.DesignTokens
	require.NoError(t, json.Unmarshal(designRaw, &design))
	require.Equal(t, "rgb(1, 2, 3)", design.Colors.Primary)
}
