package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/useneurox-company/sitesnap/internal/progress"
)

// PrometheusSink exports crawl progress as Prometheus metrics. It owns all
// collectors for crawl lifecycle, page outcomes, and capture latency.
type PrometheusSink struct {
	crawlsStarted   prometheus.Counter
	crawlsCompleted prometheus.Counter
	crawlsRunning   prometheus.Gauge

	pagesFound     *prometheus.CounterVec
	pagesCaptured  *prometheus.CounterVec
	pagesSkipped   *prometheus.CounterVec
	pageErrors     *prometheus.CounterVec
	oracleChecks   *prometheus.CounterVec
	screenshots    *prometheus.CounterVec
	screenshotTime *prometheus.HistogramVec

	tracker *crawlTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		crawlsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitesnap_crawls_started_total",
			Help: "Total crawl runs started.",
		}),
		crawlsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitesnap_crawls_completed_total",
			Help: "Total crawl runs completed.",
		}),
		crawlsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitesnap_crawls_running",
			Help: "Current number of running crawls.",
		}),
		pagesFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitesnap_pages_found_total",
			Help: "Pages dequeued and loaded, partitioned by site.",
		}, []string{"site"}),
		pagesCaptured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitesnap_pages_captured_total",
			Help: "Pages committed to the report with artifacts, partitioned by site.",
		}, []string{"site"}),
		pagesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitesnap_pages_skipped_total",
			Help: "Pages the classifier declined to capture, partitioned by site.",
		}, []string{"site"}),
		pageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitesnap_page_errors_total",
			Help: "Per-page failures, partitioned by site.",
		}, []string{"site"}),
		oracleChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitesnap_oracle_checks_total",
			Help: "Oracle classification calls, partitioned by site.",
		}, []string{"site"}),
		screenshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitesnap_screenshots_total",
			Help: "Captured artifacts, partitioned by site and device.",
		}, []string{"site", "device"}),
		screenshotTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitesnap_screenshot_duration_seconds",
			Help:    "Screenshot capture latency, partitioned by device.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"device"}),
		tracker: newCrawlTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.crawlsStarted,
		s.crawlsCompleted,
		s.crawlsRunning,
		s.pagesFound,
		s.pagesCaptured,
		s.pagesSkipped,
		s.pageErrors,
		s.oracleChecks,
		s.screenshots,
		s.screenshotTime,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	switch evt.Stage {
	case progress.StageStart:
		s.crawlsStarted.Inc()
		if s.tracker.start(evt.CrawlID) {
			s.crawlsRunning.Inc()
		}
	case progress.StageComplete:
		s.crawlsCompleted.Inc()
		if s.tracker.complete(evt.CrawlID) {
			s.crawlsRunning.Dec()
		}
	case progress.StagePageFound:
		s.pagesFound.WithLabelValues(site).Inc()
	case progress.StagePageCaptured:
		s.pagesCaptured.WithLabelValues(site).Inc()
	case progress.StageSkipped:
		s.pagesSkipped.WithLabelValues(site).Inc()
	case progress.StagePageError:
		s.pageErrors.WithLabelValues(site).Inc()
	case progress.StageAIChecking:
		s.oracleChecks.WithLabelValues(site).Inc()
	case progress.StageScreenshot:
		device := evt.Device
		if device == "" {
			device = "unknown"
		}
		s.screenshots.WithLabelValues(site, device).Inc()
		if evt.Dur > 0 {
			s.screenshotTime.WithLabelValues(device).Observe(evt.Dur.Seconds())
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type crawlTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newCrawlTracker() *crawlTracker {
	return &crawlTracker{running: make(map[[16]byte]struct{})}
}

func (t *crawlTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *crawlTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
