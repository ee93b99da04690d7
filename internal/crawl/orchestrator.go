package crawl

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/useneurox-company/sitesnap/internal/analyzer"
	"github.com/useneurox-company/sitesnap/internal/capture"
	"github.com/useneurox-company/sitesnap/internal/classify"
	"github.com/useneurox-company/sitesnap/internal/frontier"
	"github.com/useneurox-company/sitesnap/internal/progress"
)

// emptyQueueBackoff is how long a parallel worker waits before re-checking an
// empty queue while a peer may still be mid-discovery.
const emptyQueueBackoff = 100 * time.Millisecond

// Orchestrator runs crawls. It is safe to reuse across runs; each Run gets
// its own frontier and context.
type Orchestrator struct {
	sessions SessionSource
	engine   *capture.Engine
	criteria *classify.CriteriaClassifier
	emitter  progress.Emitter
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrchestrator wires the crawl dependencies. Emitter may be nil.
func NewOrchestrator(
	sessions SessionSource,
	engine *capture.Engine,
	criteria *classify.CriteriaClassifier,
	emitter progress.Emitter,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session source is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("capture engine is required")
	}
	if criteria == nil {
		return nil, fmt.Errorf("criteria classifier is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		sessions: sessions,
		engine:   engine,
		criteria: criteria,
		emitter:  emitter,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// run bundles the per-run state shared by all workers.
type run struct {
	id        [16]byte
	opts      Options
	cctx      *Context
	limitOnce sync.Once
	stopOnce  sync.Once
	inflight  atomic.Int64
}

// Run crawls breadth-first from opts.StartURL until the frontier drains or a
// stop condition fires, then assembles the report. Per-page failures are
// events, not errors; Run fails only on unusable input or a dead resource
// layer.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Report, error) {
	start, err := url.Parse(opts.StartURL)
	if err != nil || start.Host == "" {
		return Report{}, fmt.Errorf("invalid start url %q", opts.StartURL)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	f := frontier.New()
	f.Enqueue(opts.StartURL)
	r := &run{
		id:   progress.UUIDToBytes(uuid.New()),
		opts: opts,
		cctx: NewContext(strings.ToLower(start.Host), f, opts.MaxPages),
	}

	o.emit(r, progress.Event{Stage: progress.StageStart, Site: r.cctx.BaseHost()})
	startedAt := o.now()

	if opts.Workers == 1 {
		o.sequentialLoop(ctx, r)
	} else {
		group, groupCtx := errgroup.WithContext(ctx)
		for i := 0; i < opts.Workers; i++ {
			group.Go(func() error {
				o.workerLoop(groupCtx, r)
				return nil
			})
		}
		// Workers never return errors; the group is only a join point.
		_ = group.Wait()
	}

	report := Report{
		CrawlID:    uuid.UUID(r.id).String(),
		Site:       r.cctx.BaseHost(),
		SiteName:   siteName(r.cctx.BaseHost()),
		StartURL:   opts.StartURL,
		CrawledAt:  startedAt,
		TotalPages: r.cctx.PageCount(),
		Options:    opts,
		Pages:      r.cctx.Pages(),
		Design:     r.cctx.DesignTokens(),
	}

	o.emit(r, progress.Event{
		Stage:    progress.StageComplete,
		Site:     r.cctx.BaseHost(),
		Captured: int64(report.TotalPages),
	})
	return report, nil
}

// sequentialLoop processes pages in strict BFS discovery order.
func (o *Orchestrator) sequentialLoop(ctx context.Context, r *run) {
	for {
		if o.checkStop(ctx, r) {
			return
		}
		rawURL, ok := r.cctx.Frontier().DequeueNext()
		if !ok {
			return
		}
		o.processPage(ctx, r, rawURL)
	}
}

// workerLoop is one parallel worker: dequeue, process, and on an empty queue
// back off briefly while peers are in flight before exiting.
func (o *Orchestrator) workerLoop(ctx context.Context, r *run) {
	for {
		if o.checkStop(ctx, r) {
			return
		}
		// The in-flight slot is claimed before the dequeue so a peer seeing
		// an empty queue can never also see zero in-flight while this worker
		// holds a page whose links are still undiscovered.
		r.inflight.Add(1)
		rawURL, ok := r.cctx.Frontier().DequeueNext()
		if !ok {
			if r.inflight.Add(-1) == 0 {
				return
			}
			select {
			case <-time.After(emptyQueueBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}
		o.processPage(ctx, r, rawURL)
		r.inflight.Add(-1)
	}
}

// checkStop evaluates the stop conditions polled before every dequeue.
func (o *Orchestrator) checkStop(ctx context.Context, r *run) bool {
	if ctx.Err() != nil {
		return true
	}
	if r.cctx.StopRequested() || (r.opts.ShouldStop != nil && r.opts.ShouldStop()) {
		r.stopOnce.Do(func() {
			r.cctx.RequestStop()
			o.emit(r, progress.Event{Stage: progress.StageStopping, Site: r.cctx.BaseHost()})
		})
		return true
	}
	if r.cctx.LimitReached() {
		r.limitOnce.Do(func() {
			o.emit(r, progress.Event{
				Stage:    progress.StageLimitReached,
				Site:     r.cctx.BaseHost(),
				Captured: int64(r.cctx.PageCount()),
			})
		})
		return true
	}
	return false
}

// processPage runs the full per-page pipeline. Every failure inside is
// reported as a PAGE_ERROR event and swallowed so the crawl continues.
func (o *Orchestrator) processPage(ctx context.Context, r *run, rawURL string) {
	sess, err := o.sessions.Acquire(ctx)
	if err != nil {
		o.pageError(r, rawURL, fmt.Errorf("acquire session: %w", err))
		return
	}
	defer sess.Close()

	info, err := sess.Navigate(ctx, rawURL)
	if err != nil {
		o.pageError(r, rawURL, err)
		return
	}

	html, err := sess.HTML(ctx)
	if err != nil {
		o.pageError(r, rawURL, fmt.Errorf("read dom: %w", err))
		return
	}

	// Link discovery happens before the capture decision so a skipped page
	// still extends the crawl.
	o.discoverLinks(r, info.FinalURL, html)

	doc, err := analyzer.Parse(html)
	if err != nil {
		o.pageError(r, rawURL, fmt.Errorf("parse dom: %w", err))
		return
	}
	fp := analyzer.Analyze(doc)

	pathname := pathnameOf(info.FinalURL)
	ref := classify.PageRef{URL: info.FinalURL, Pathname: pathname, Title: info.Title}

	o.emit(r, progress.Event{
		Stage: progress.StagePageFound,
		Site:  r.cctx.BaseHost(),
		URL:   info.FinalURL,
		Note:  info.Title,
	})

	if r.opts.Criterion != "" {
		o.emit(r, progress.Event{Stage: progress.StageAIChecking, Site: r.cctx.BaseHost(), URL: info.FinalURL})
	}
	if !o.criteria.Match(ctx, r.opts.Criterion, ref, fp) {
		o.emit(r, progress.Event{Stage: progress.StageSkipped, Site: r.cctx.BaseHost(), URL: info.FinalURL})
		return
	}

	if r.cctx.LimitReached() {
		// The cap filled while this page was in flight; let checkStop emit
		// the limit event exactly once.
		return
	}

	res, err := o.engine.CapturePage(ctx, sess, r.cctx.BaseHost(), pathname, capture.Options{
		Devices:         r.opts.Devices,
		FullPage:        r.opts.FullPage,
		SaveHTML:        r.opts.SaveHTML,
		ExtractMeta:     r.opts.ExtractMeta,
		Interactive:     r.opts.Interactive,
		DismissOverlays: r.opts.DismissOverlays,
		SettleDelay:     r.opts.SettleDelay,
	}, func(device string, dur time.Duration) {
		o.emit(r, progress.Event{
			Stage:  progress.StageScreenshot,
			Site:   r.cctx.BaseHost(),
			URL:    info.FinalURL,
			Device: device,
			Dur:    dur,
		})
	})
	if err != nil {
		o.pageError(r, rawURL, err)
		return
	}

	record := PageRecord{
		URL:         info.FinalURL,
		Pathname:    pathname,
		Title:       info.Title,
		Files:       res.Files,
		Meta:        res.Meta,
		Interactive: res.Interactive,
	}
	if !r.cctx.AppendPage(record) {
		return
	}
	o.emit(r, progress.Event{
		Stage:    progress.StagePageCaptured,
		Site:     r.cctx.BaseHost(),
		URL:      info.FinalURL,
		Captured: int64(r.cctx.PageCount()),
	})

	if r.opts.ExtractDesign && r.cctx.ClaimDesign() {
		o.emit(r, progress.Event{Stage: progress.StageDesignTokens, Site: r.cctx.BaseHost()})
		tokens, err := o.engine.ExtractDesignTokens(ctx, sess)
		if err != nil {
			o.logger.Warn("design token extraction failed", zap.String("url", info.FinalURL), zap.Error(err))
		} else {
			r.cctx.SetDesignTokens(tokens)
		}
	}

	if r.opts.DownloadImages && r.cctx.ClaimAssets() {
		o.emit(r, progress.Event{Stage: progress.StageImagesDownload, Site: r.cctx.BaseHost()})
		if _, err := o.engine.DownloadImages(ctx, info.FinalURL, capture.AssetOptions{MaxImages: r.opts.MaxImages}); err != nil {
			o.logger.Warn("image download failed", zap.String("url", info.FinalURL), zap.Error(err))
		}
	}
}

// discoverLinks pushes the page's admissible same-host links into the
// frontier.
func (o *Orchestrator) discoverLinks(r *run, pageURL, html string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		o.logger.Debug("link discovery parse failed", zap.String("url", pageURL), zap.Error(err))
		return
	}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved, err := frontier.ResolveLink(pageURL, href)
		if err != nil {
			return
		}
		if !frontier.Admissible(resolved, r.cctx.BaseHost()) {
			return
		}
		r.cctx.Frontier().Enqueue(resolved)
	})
}

func (o *Orchestrator) pageError(r *run, rawURL string, err error) {
	o.logger.Warn("page failed", zap.String("url", rawURL), zap.Error(err))
	o.emit(r, progress.Event{
		Stage: progress.StagePageError,
		Site:  r.cctx.BaseHost(),
		URL:   rawURL,
		Note:  err.Error(),
	})
}

func (o *Orchestrator) emit(r *run, evt progress.Event) {
	if o.emitter == nil {
		return
	}
	evt.CrawlID = r.id
	evt.TS = o.now()
	o.emitter.Emit(evt)
}

func pathnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// siteName strips the www prefix and TLD-like suffix for a human label.
func siteName(host string) string {
	name := strings.TrimPrefix(host, "www.")
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	return name
}
