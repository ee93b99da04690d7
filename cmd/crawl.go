package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/useneurox-company/sitesnap/internal/browser"
	"github.com/useneurox-company/sitesnap/internal/capture"
	"github.com/useneurox-company/sitesnap/internal/classify"
	"github.com/useneurox-company/sitesnap/internal/config"
	"github.com/useneurox-company/sitesnap/internal/crawl"
	"github.com/useneurox-company/sitesnap/internal/imaging"
	"github.com/useneurox-company/sitesnap/internal/oracle"
	"github.com/useneurox-company/sitesnap/internal/publisher"
)

type crawlFlags struct {
	criterion   string
	maxPages    int
	workers     int
	devices     []string
	fullPage    bool
	interactive bool
	design      bool
	images      bool
}

// newCrawlCmd creates the 'crawl' subcommand: capture every page of a site
// (or every page matching a criterion) across all configured viewports.
func newCrawlCmd() *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl <start-url>",
		Short: "Crawls a site and captures screenshots of its pages",
		Long: `Crawls breadth-first from the start URL, staying on the same host,
and captures screenshots, HTML, and metadata for every page. With
--criterion only pages the model approves are captured; skipped pages
still contribute their links to the crawl.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawlCommand(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.criterion, "criterion", "", "free-text capture criterion evaluated per page")
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", -1, "cap on captured pages (0 = unlimited)")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "concurrent page workers")
	cmd.Flags().StringSliceVar(&flags.devices, "devices", nil, "viewport profiles (desktop, tablet, mobile)")
	cmd.Flags().BoolVar(&flags.fullPage, "full-page", false, "capture full scroll height")
	cmd.Flags().BoolVar(&flags.interactive, "interactive", false, "capture hover/tab/modal states")
	cmd.Flags().BoolVar(&flags.design, "design", false, "extract design tokens once per crawl")
	cmd.Flags().BoolVar(&flags.images, "images", false, "download site images once per crawl")

	return cmd
}

func runCrawlCommand(cmd *cobra.Command, startURL string, flags crawlFlags) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := a.Config()
	logger := a.Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := browser.NewPool(browserConfig(cfg), logger.Named("browser"))
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer func() {
		if cerr := pool.Close(context.Background()); cerr != nil {
			logger.Warn("browser pool close failed", zap.Error(cerr))
		}
	}()

	orc, err := oracle.NewOllama(ctx, oracle.Config{
		BaseURL: cfg.Oracle.BaseURL,
		Model:   cfg.Oracle.Model,
		Timeout: cfg.Oracle.Timeout,
	}, logger.Named("oracle"))
	if err != nil {
		return fmt.Errorf("init oracle: %w", err)
	}

	engine, err := capture.NewEngine(
		a.Blobs(),
		imaging.NewJPEGCompressor(cfg.Crawl.JPEGQuality),
		logger.Named("capture"),
	)
	if err != nil {
		return fmt.Errorf("init capture engine: %w", err)
	}

	orch, err := crawl.NewOrchestrator(
		crawl.PoolSource{Pool: pool},
		engine,
		classify.NewCriteriaClassifier(orc, logger.Named("classify")),
		a.Emitter(),
		logger.Named("crawl"),
	)
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}

	opts := crawlOptions(cmd, cfg, startURL, flags)
	report, err := orch.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("run crawl: %w", err)
	}

	uri, err := crawl.WriteReport(ctx, a.Blobs(), report)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logger.Info("crawl finished",
		zap.String("site", report.Site),
		zap.Int("pages", report.TotalPages),
		zap.String("report", uri),
	)

	notifyCtx := ctx
	if errors.Is(ctx.Err(), context.Canceled) {
		notifyCtx = context.Background()
	}
	if _, perr := a.Publisher().Publish(notifyCtx, cfg.PubSub.TopicName, publisher.CrawlCompleted{
		CrawlID:    report.CrawlID,
		Site:       report.Site,
		Status:     "success",
		ReportURI:  uri,
		TotalPages: report.TotalPages,
		FinishedAt: report.CrawledAt,
	}); perr != nil {
		logger.Warn("crawl notification failed", zap.Error(perr))
	}
	return nil
}

func browserConfig(cfg config.Config) browser.Config {
	return browser.Config{
		Headless:          cfg.Browser.Headless,
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		SettleDelay:       cfg.Crawl.SettleDelay,
		MaxTabs:           cfg.Browser.MaxTabs,
		HostQPS:           cfg.Browser.HostQPS,
	}
}

// crawlOptions merges config defaults with explicitly set flags.
func crawlOptions(cmd *cobra.Command, cfg config.Config, startURL string, flags crawlFlags) crawl.Options {
	opts := crawl.Options{
		StartURL:        startURL,
		Criterion:       flags.criterion,
		MaxPages:        cfg.Crawl.MaxPages,
		Workers:         cfg.Crawl.Workers,
		Devices:         cfg.Crawl.Devices,
		FullPage:        cfg.Crawl.FullPage,
		SaveHTML:        cfg.Crawl.SaveHTML,
		ExtractMeta:     cfg.Crawl.ExtractMeta,
		Interactive:     cfg.Crawl.Interactive,
		ExtractDesign:   cfg.Crawl.ExtractDesign,
		DownloadImages:  cfg.Crawl.DownloadImages,
		DismissOverlays: cfg.Crawl.DismissOverlays,
		SettleDelay:     cfg.Crawl.SettleDelay,
		MaxImages:       cfg.Crawl.MaxImages,
	}
	if flags.maxPages >= 0 {
		opts.MaxPages = flags.maxPages
	}
	if flags.workers > 0 {
		opts.Workers = flags.workers
	}
	if len(flags.devices) > 0 {
		opts.Devices = flags.devices
	}
	if cmd.Flags().Changed("full-page") {
		opts.FullPage = flags.fullPage
	}
	if cmd.Flags().Changed("interactive") {
		opts.Interactive = flags.interactive
	}
	if cmd.Flags().Changed("design") {
		opts.ExtractDesign = flags.design
	}
	if cmd.Flags().Changed("images") {
		opts.DownloadImages = flags.images
	}
	return opts
}
