// Package app initializes and holds long-lived application services, acting
// as the dependency container for the CLI commands.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/useneurox-company/sitesnap/internal/api"
	"github.com/useneurox-company/sitesnap/internal/config"
	"github.com/useneurox-company/sitesnap/internal/logging"
	"github.com/useneurox-company/sitesnap/internal/progress"
	"github.com/useneurox-company/sitesnap/internal/progress/sinks"
	"github.com/useneurox-company/sitesnap/internal/publisher"
	memorypublisher "github.com/useneurox-company/sitesnap/internal/publisher/memory"
	pubsubpublisher "github.com/useneurox-company/sitesnap/internal/publisher/pubsub"
	"github.com/useneurox-company/sitesnap/internal/storage"
	"github.com/useneurox-company/sitesnap/internal/storage/gcs"
	"github.com/useneurox-company/sitesnap/internal/storage/local"
	pgstore "github.com/useneurox-company/sitesnap/internal/storage/postgres"
	"github.com/useneurox-company/sitesnap/internal/store"
)

// App holds the shared, long-lived services: logger, progress hub, artifact
// store, crawl history repository, notification publisher, and the Prometheus
// registry. It is initialized once at startup and handed to commands.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	hub      *progress.Hub
	blobs    storage.Provider
	crawls   store.CrawlRepository

	crawlStore   *pgstore.CrawlStore
	gcsClient    *gcsclient.Client
	pubsubClient *pubsub.Client
	pub          publisher.Publisher

	opsCancel context.CancelFunc
	opsDone   chan struct{}
}

// New builds the service container from configuration, failing fast when a
// configured backend cannot be reached.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{cfg: cfg, logger: logger}
	if err := a.initServices(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) initServices(ctx context.Context) error {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := a.initBlobStore(ctx); err != nil {
		return err
	}
	if err := a.initCrawlStore(ctx); err != nil {
		return err
	}
	if err := a.initPublisher(ctx); err != nil {
		return err
	}
	if err := a.initHub(); err != nil {
		return err
	}
	a.startOpsServer()
	return nil
}

func (a *App) initBlobStore(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case "local":
		blobs, err := local.New(local.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("init local artifact store: %w", err)
		}
		a.logger.Info("using local artifact store", zap.String("dir", a.cfg.Storage.LocalDir))
		a.blobs = blobs
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		a.gcsClient = client
		blobs, err := gcs.New(client, gcs.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.GCSPrefix,
		})
		if err != nil {
			return fmt.Errorf("init gcs artifact store: %w", err)
		}
		a.logger.Info("using gcs artifact store", zap.String("bucket", a.cfg.Storage.GCSBucket))
		a.blobs = blobs
	default:
		return fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
	return nil
}

func (a *App) initCrawlStore(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("crawl history persistence disabled")
		return nil
	}
	cs, err := pgstore.NewCrawlStore(ctx, pgstore.CrawlStoreConfig{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("init crawl store: %w", err)
	}
	a.crawlStore = cs
	a.crawls = cs
	a.logger.Info("crawl history persistence enabled")
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" {
		a.pub = memorypublisher.New()
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("init pubsub client: %w", err)
	}
	a.pubsubClient = client
	a.pub = pubsubpublisher.New(client.Topic(a.cfg.PubSub.TopicName))
	a.logger.Info("publishing crawl notifications",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName))
	return nil
}

func (a *App) initHub() error {
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("init prometheus sink: %w", err)
	}
	hubSinks := []progress.Sink{
		sinks.NewLogSink(a.logger.Named("progress")),
		promSink,
	}
	if a.crawls != nil {
		storeSink, err := sinks.NewStoreSink(a.crawls, a.logger.Named("store"))
		if err != nil {
			return fmt.Errorf("init store sink: %w", err)
		}
		hubSinks = append(hubSinks, storeSink)
	}
	a.hub = progress.NewHub(progress.Config{Logger: a.logger.Named("hub")}, hubSinks...)
	return nil
}

func (a *App) startOpsServer() {
	if !a.cfg.Metrics.Enabled {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.opsCancel = cancel
	a.opsDone = make(chan struct{})
	srv := api.NewServer(a.registry, a.crawls, a.logger.Named("api"))
	go func() {
		defer close(a.opsDone)
		if err := srv.Serve(ctx, a.cfg.Metrics.Addr); err != nil {
			a.logger.Error("ops server failed", zap.Error(err))
		}
	}()
	a.logger.Info("ops server listening", zap.String("addr", a.cfg.Metrics.Addr))
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Registry returns the Prometheus registry backing /metrics.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Emitter returns the progress hub; nil-safe for commands that skip events.
func (a *App) Emitter() progress.Emitter { return a.hub }

// Blobs returns the configured artifact store.
func (a *App) Blobs() storage.Provider { return a.blobs }

// Crawls returns the crawl history repository; nil when persistence is off.
func (a *App) Crawls() store.CrawlRepository { return a.crawls }

// Publisher returns the crawl notification publisher.
func (a *App) Publisher() publisher.Publisher { return a.pub }

// Close drains the progress hub and shuts down all services.
func (a *App) Close(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.opsCancel != nil {
		a.opsCancel()
		<-a.opsDone
	}
	if a.crawlStore != nil {
		a.crawlStore.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
