// Package main wires together the directory harvester binary.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/harvestlabs/dirharvest/internal/api"
	"github.com/harvestlabs/dirharvest/internal/clock/system"
	"github.com/harvestlabs/dirharvest/internal/config"
	"github.com/harvestlabs/dirharvest/internal/enrich/npi"
	apifetch "github.com/harvestlabs/dirharvest/internal/fetch/api"
	"github.com/harvestlabs/dirharvest/internal/fetch/headless"
	"github.com/harvestlabs/dirharvest/internal/harvest"
	"github.com/harvestlabs/dirharvest/internal/logging"
	"github.com/harvestlabs/dirharvest/internal/mapping/jsonapi"
	"github.com/harvestlabs/dirharvest/internal/metrics"
	"github.com/harvestlabs/dirharvest/internal/policy/gate"
	"github.com/harvestlabs/dirharvest/internal/policy/ratelimit"
	memorypublisher "github.com/harvestlabs/dirharvest/internal/publisher/memory"
	pubsubpublisher "github.com/harvestlabs/dirharvest/internal/publisher/pubsub"
	"github.com/harvestlabs/dirharvest/internal/storage/archive"
	"github.com/harvestlabs/dirharvest/internal/storage/gcs"
	memorystorage "github.com/harvestlabs/dirharvest/internal/storage/memory"
	"github.com/harvestlabs/dirharvest/internal/storage/postgres"
)

// publisher is the report notification surface.
type publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	stats := harvest.NewRunStats(cfg.Crawler.GlobalRecordCap)

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout()}
	source := apifetch.New(apifetch.Config{
		ListingsURL:   cfg.Source.ListingsURL,
		RegionsURL:    cfg.Source.RegionsURL,
		LocalitiesURL: cfg.Source.LocalitiesURL,
		UserAgent:     cfg.HTTP.UserAgent,
		Include:       cfg.Source.Include,
	}, httpClient, logger.Named("source"))

	var fetcher harvest.PageFetcher = source
	if cfg.Source.Fetcher == "headless" {
		hf, err := headless.New(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		}, source)
		if err != nil {
			logger.Error("headless fetcher init failed", zap.Error(err))
			return 1
		}
		defer hf.Close()
		fetcher = hf
	}

	var (
		records   harvest.RecordStore
		snapshots harvest.SnapshotStore
	)
	if cfg.DB.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.DB.DSN)
		if err != nil {
			logger.Error("postgres init failed", zap.Error(err))
			return 1
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			logger.Error("schema init failed", zap.Error(err))
			return 1
		}
		records = postgres.NewRecordStore(pool)
		snapshots = postgres.NewSnapshotStore(pool)
	} else {
		logger.Info("no db.dsn configured, using in-memory stores")
		records = memorystorage.NewRecordStore()
		snapshots = memorystorage.NewSnapshotStore()
	}

	if cfg.Storage.GCSBucket != "" {
		mirror, err := gcs.NewProvider(ctx, cfg.Storage.GCSBucket, logger.Named("gcs"))
		if err != nil {
			logger.Error("gcs mirror init failed", zap.Error(err))
			return 1
		}
		defer func() {
			if closeErr := mirror.Close(); closeErr != nil {
				logger.Warn("gcs client close failed", zap.Error(closeErr))
			}
		}()
		snapshots = archive.New(snapshots, mirror, logger.Named("archive"))
	}

	if cfg.Enrich.RegistryURL != "" {
		registry := npi.New(npi.Config{BaseURL: cfg.Enrich.RegistryURL}, httpClient, logger.Named("registry"))
		records = npi.NewRecordStore(records, registry, logger.Named("enrich"))
	}

	var reports publisher = memorypublisher.New()
	if cfg.PubSub.TopicName != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Error("pubsub init failed", zap.Error(err))
			return 1
		}
		pub := pubsubpublisher.New(client, cfg.PubSub.TopicName)
		defer func() {
			if closeErr := pub.Close(); closeErr != nil {
				logger.Warn("pubsub close failed", zap.Error(closeErr))
			}
		}()
		reports = pub
	}

	orch := harvest.NewOrchestrator(
		source,
		fetcher,
		jsonapi.New(logger.Named("mapper")),
		records,
		snapshots,
		ratelimit.New(cfg.Crawler.MaxCalls, cfg.RatePeriod()),
		gate.New(cfg.Crawler.MaxConcurrent),
		harvest.NewExponentialRetryPolicy(cfg.Crawler.PageRetries),
		system.New(),
		stats,
		harvest.OrchestratorConfig{
			MaxConcurrent:   cfg.Crawler.MaxConcurrent,
			BatchSize:       cfg.Crawler.BatchSize,
			GlobalRecordCap: cfg.Crawler.GlobalRecordCap,
			RegionTimeout:   cfg.RegionTimeout(),
			Paginator: harvest.PaginatorConfig{
				PageSize:    cfg.Crawler.PageSize,
				MaxPages:    cfg.Crawler.MaxPages,
				PageRetries: cfg.Crawler.PageRetries,
			},
		},
		logger.Named("harvest"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(stats, logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	report, err := orch.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("server shutdown error", zap.Error(shutdownErr))
	}

	if err != nil {
		logger.Error("run failed", zap.Error(err))
		return 1
	}

	if _, pubErr := reports.Publish(ctx, cfg.PubSub.TopicName, report); pubErr != nil {
		logger.Warn("report publish failed", zap.Error(pubErr))
	}
	printReport(report)

	if !report.Clean() {
		logger.Warn("run completed with failures",
			zap.Int("regions_failed", report.RegionsFailed),
			zap.Int("failures", len(report.Failures)))
		return 2
	}
	return 0
}

func printReport(report harvest.Report) {
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode report failed: %v\n", err)
		return
	}
	fmt.Println(string(out))
}
