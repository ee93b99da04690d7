package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/useneurox-company/sitesnap/internal/browser"
	"github.com/useneurox-company/sitesnap/internal/classify"
	"github.com/useneurox-company/sitesnap/internal/crawl"
	"github.com/useneurox-company/sitesnap/internal/oracle"
	"github.com/useneurox-company/sitesnap/internal/publisher"
	"github.com/useneurox-company/sitesnap/internal/templatefinder"
)

// newTemplatesCmd creates the 'templates' subcommand: discover one
// representative page per canonical template type.
func newTemplatesCmd() *cobra.Command {
	var maxPages int
	cmd := &cobra.Command{
		Use:   "templates <start-url>",
		Short: "Discovers one representative page per template type",
		Long: `Crawls breadth-first from the start URL and asks the model to assign
each page a template type (home, product item, contacts, ...). The run
stops once every required type has a representative or the page budget
is exhausted, and prints the discovery result as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplatesCommand(cmd, args[0], maxPages)
		},
	}
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "cap on pages to check")
	return cmd
}

func runTemplatesCommand(cmd *cobra.Command, startURL string, maxPages int) error {
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

	finder, err := templatefinder.NewFinder(
		crawl.PoolSource{Pool: pool},
		classify.NewTemplateClassifier(orc, nil, logger.Named("classify")),
		nil,
		a.Emitter(),
		logger.Named("templates"),
	)
	if err != nil {
		return fmt.Errorf("init finder: %w", err)
	}

	if maxPages <= 0 {
		maxPages = cfg.Finder.MaxPagesToCheck
	}
	result, err := finder.Run(ctx, templatefinder.Options{
		StartURL:        startURL,
		MaxPagesToCheck: maxPages,
	})
	if err != nil {
		return fmt.Errorf("run discovery: %w", err)
	}

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	cmd.Println(string(payload))

	missing := make([]string, 0, len(result.MissingRequired))
	for _, t := range result.MissingRequired {
		missing = append(missing, string(t))
	}
	if _, perr := a.Publisher().Publish(ctx, cfg.PubSub.TopicName, publisher.TemplatesFound{
		Site:            result.Site,
		FoundCount:      len(result.Found),
		MissingRequired: missing,
		FinishedAt:      time.Now(),
	}); perr != nil {
		logger.Warn("discovery notification failed", zap.Error(perr))
	}
	return nil
}
