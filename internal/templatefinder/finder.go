// Package templatefinder crawls a site looking for one representative page
// per canonical template type, stopping early once the required set is
// covered.
package templatefinder

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/useneurox-company/sitesnap/internal/analyzer"
	"github.com/useneurox-company/sitesnap/internal/classify"
	"github.com/useneurox-company/sitesnap/internal/crawl"
	"github.com/useneurox-company/sitesnap/internal/frontier"
	"github.com/useneurox-company/sitesnap/internal/progress"
)

// softTypeCap is the found-type count past which the finder exits as soon as
// the required set is complete; below it, optional types still get a chance.
const softTypeCap = 8

// Options configures one template discovery run.
type Options struct {
	// StartURL is where discovery begins.
	StartURL string
	// MaxPagesToCheck hard-stops the run (default 40).
	MaxPagesToCheck int
	// ShouldStop is polled before every dequeue.
	ShouldStop func() bool
}

const defaultMaxPagesToCheck = 40

// PageInfo is the representative page recorded for one template type.
type PageInfo struct {
	URL      string `json:"url"`
	Pathname string `json:"pathname"`
	Title    string `json:"title"`
}

// FoundPage pairs a catalog entry with its discovered representative.
type FoundPage struct {
	Type     classify.PageType `json:"type"`
	Name     string            `json:"name"`
	Priority int               `json:"priority"`
	Required bool              `json:"required"`
	Page     PageInfo          `json:"page"`
}

// Result is the discovery outcome, sorted by catalog priority.
type Result struct {
	Site            string              `json:"site"`
	StartURL        string              `json:"startUrl"`
	CheckedCount    int                 `json:"checkedCount"`
	Found           []FoundPage         `json:"found"`
	MissingRequired []classify.PageType `json:"missingRequired"`
}

// Finder drives the discovery state machine over FoundPages.
type Finder struct {
	sessions   crawl.SessionSource
	classifier *classify.TemplateClassifier
	catalog    []classify.CatalogEntry
	emitter    progress.Emitter
	logger     *zap.Logger
	now        func() time.Time
}

// NewFinder wires the discovery dependencies. Emitter may be nil.
func NewFinder(
	sessions crawl.SessionSource,
	classifier *classify.TemplateClassifier,
	catalog []classify.CatalogEntry,
	emitter progress.Emitter,
	logger *zap.Logger,
) (*Finder, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session source is required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("template classifier is required")
	}
	if len(catalog) == 0 {
		catalog = classify.DefaultCatalog()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finder{
		sessions:   sessions,
		classifier: classifier,
		catalog:    catalog,
		emitter:    emitter,
		logger:     logger,
		now:        time.Now,
	}, nil
}

type finderRun struct {
	id        [16]byte
	baseHost  string
	frontier  *frontier.Frontier
	found     map[classify.PageType]PageInfo
	checked   int
	announced bool
}

// Run discovers template pages breadth-first. First match wins per type;
// required-set completion allows an early exit once at least softTypeCap
// types are found; a synthetic 404 probe fills the not-found type when
// organic crawling never hit one. A required type never found is a reported
// deficiency, not an error.
func (f *Finder) Run(ctx context.Context, opts Options) (Result, error) {
	start, err := url.Parse(opts.StartURL)
	if err != nil || start.Host == "" {
		return Result{}, fmt.Errorf("invalid start url %q", opts.StartURL)
	}
	maxPages := opts.MaxPagesToCheck
	if maxPages <= 0 {
		maxPages = defaultMaxPagesToCheck
	}

	r := &finderRun{
		id:       progress.UUIDToBytes(uuid.New()),
		baseHost: strings.ToLower(start.Host),
		frontier: frontier.New(),
		found:    map[classify.PageType]PageInfo{},
	}
	r.frontier.Enqueue(opts.StartURL)
	required := classify.RequiredTypes(f.catalog)

	f.emit(r, progress.Event{Stage: progress.StageStart, Site: r.baseHost})

	for {
		if ctx.Err() != nil {
			break
		}
		if opts.ShouldStop != nil && opts.ShouldStop() {
			f.emit(r, progress.Event{Stage: progress.StageStopping, Site: r.baseHost})
			break
		}
		if r.checked >= maxPages {
			f.emit(r, progress.Event{Stage: progress.StageLimitReached, Site: r.baseHost})
			break
		}
		rawURL, ok := r.frontier.DequeueNext()
		if !ok {
			break
		}
		r.checked++
		f.checkPage(ctx, r, rawURL)

		if f.requiredComplete(r, required) {
			if !r.announced {
				r.announced = true
				f.emit(r, progress.Event{Stage: progress.StageAllRequiredFound, Site: r.baseHost})
			}
			if len(r.found) >= softTypeCap {
				break
			}
		}
	}

	if _, ok := r.found[classify.TypeNotFound]; !ok {
		f.probeNotFound(ctx, r, start)
	}
	if !r.announced && f.requiredComplete(r, required) {
		r.announced = true
		f.emit(r, progress.Event{Stage: progress.StageAllRequiredFound, Site: r.baseHost})
	}

	result := Result{
		Site:         r.baseHost,
		StartURL:     opts.StartURL,
		CheckedCount: r.checked,
	}
	for _, entry := range f.catalog {
		if page, ok := r.found[entry.ID]; ok {
			result.Found = append(result.Found, FoundPage{
				Type:     entry.ID,
				Name:     entry.Name,
				Priority: entry.Priority,
				Required: entry.Required,
				Page:     page,
			})
		} else if entry.Required {
			result.MissingRequired = append(result.MissingRequired, entry.ID)
		}
	}
	sort.Slice(result.Found, func(i, j int) bool {
		return result.Found[i].Priority < result.Found[j].Priority
	})

	f.emit(r, progress.Event{
		Stage:    progress.StageComplete,
		Site:     r.baseHost,
		Captured: int64(len(result.Found)),
	})
	return result, nil
}

// checkPage loads, classifies, and records one page, then discovers links.
// Failures are per-page events; the run continues.
func (f *Finder) checkPage(ctx context.Context, r *finderRun, rawURL string) {
	sess, err := f.sessions.Acquire(ctx)
	if err != nil {
		f.pageError(r, rawURL, fmt.Errorf("acquire session: %w", err))
		return
	}
	defer sess.Close()

	info, err := sess.Navigate(ctx, rawURL)
	if err != nil {
		f.pageError(r, rawURL, err)
		return
	}
	html, err := sess.HTML(ctx)
	if err != nil {
		f.pageError(r, rawURL, fmt.Errorf("read dom: %w", err))
		return
	}

	f.discoverLinks(r, info.FinalURL, html)

	pathname := "/"
	if u, err := url.Parse(info.FinalURL); err == nil && u.Path != "" {
		pathname = u.Path
	}
	ref := classify.PageRef{URL: info.FinalURL, Pathname: pathname, Title: info.Title}
	page := classify.TemplatePage{PageRef: ref, StatusCode: info.StatusCode}
	if !classify.IsNotFound(info.StatusCode, info.Title) {
		f.emit(r, progress.Event{Stage: progress.StageAIChecking, Site: r.baseHost, URL: info.FinalURL})
	}

	doc, err := analyzer.Parse(html)
	if err != nil {
		f.pageError(r, rawURL, fmt.Errorf("parse dom: %w", err))
		return
	}
	pageType := f.classifier.Classify(ctx, page, analyzer.Analyze(doc))
	f.record(r, pageType, ref)
}

// record applies first-match-wins: an already-found type is never overwritten.
func (f *Finder) record(r *finderRun, pageType classify.PageType, ref classify.PageRef) {
	if pageType == classify.TypeNone {
		f.emit(r, progress.Event{Stage: progress.StageSkipped, Site: r.baseHost, URL: ref.URL})
		return
	}
	if _, ok := r.found[pageType]; ok {
		f.emit(r, progress.Event{Stage: progress.StageSkipped, Site: r.baseHost, URL: ref.URL,
			PageType: string(pageType)})
		return
	}
	r.found[pageType] = PageInfo{URL: ref.URL, Pathname: ref.Pathname, Title: ref.Title}
	f.emit(r, progress.Event{
		Stage:    progress.StagePageFound,
		Site:     r.baseHost,
		URL:      ref.URL,
		PageType: string(pageType),
	})
}

func (f *Finder) requiredComplete(r *finderRun, required map[classify.PageType]struct{}) bool {
	for id := range required {
		if _, ok := r.found[id]; !ok {
			return false
		}
	}
	return true
}

// probeNotFound issues one request to a guaranteed-nonexistent path so the
// result includes the site's 404 page.
func (f *Finder) probeNotFound(ctx context.Context, r *finderRun, base *url.URL) {
	probe := *base
	probe.Path = fmt.Sprintf("/sitesnap-404-probe-%d", f.now().UnixNano())
	probe.RawQuery = ""
	probeURL := probe.String()
	r.frontier.MarkVisited(probeURL)

	sess, err := f.sessions.Acquire(ctx)
	if err != nil {
		f.pageError(r, probeURL, fmt.Errorf("acquire session: %w", err))
		return
	}
	defer sess.Close()

	info, err := sess.Navigate(ctx, probeURL)
	if err != nil {
		f.pageError(r, probeURL, err)
		return
	}
	r.checked++
	f.record(r, classify.TypeNotFound, classify.PageRef{
		URL:      info.FinalURL,
		Pathname: probe.Path,
		Title:    info.Title,
	})
}

func (f *Finder) discoverLinks(r *finderRun, pageURL, html string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		f.logger.Debug("link discovery parse failed", zap.String("url", pageURL), zap.Error(err))
		return
	}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved, err := frontier.ResolveLink(pageURL, href)
		if err != nil {
			return
		}
		if !frontier.Admissible(resolved, r.baseHost) {
			return
		}
		r.frontier.Enqueue(resolved)
	})
}

func (f *Finder) pageError(r *finderRun, rawURL string, err error) {
	f.logger.Warn("template check failed", zap.String("url", rawURL), zap.Error(err))
	f.emit(r, progress.Event{Stage: progress.StagePageError, Site: r.baseHost, URL: rawURL, Note: err.Error()})
}

func (f *Finder) emit(r *finderRun, evt progress.Event) {
	if f.emitter == nil {
		return
	}
	evt.CrawlID = r.id
	evt.TS = f.now()
	f.emitter.Emit(evt)
}
