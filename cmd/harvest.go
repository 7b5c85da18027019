package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/madfam-io/renec-harvester-sub000/internal/clock/system"
	"github.com/madfam-io/renec-harvester-sub000/internal/config"
	"github.com/madfam-io/renec-harvester-sub000/internal/coordinator"
	"github.com/madfam-io/renec-harvester-sub000/internal/drivers"
	"github.com/madfam-io/renec-harvester-sub000/internal/fetcher"
	collyfetcher "github.com/madfam-io/renec-harvester-sub000/internal/fetcher/colly"
	headlessfetcher "github.com/madfam-io/renec-harvester-sub000/internal/fetcher/headless"
	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
	"github.com/madfam-io/renec-harvester-sub000/internal/hash/sha256"
	"github.com/madfam-io/renec-harvester-sub000/internal/id/uuid"
	"github.com/madfam-io/renec-harvester-sub000/internal/logging"
	"github.com/madfam-io/renec-harvester-sub000/internal/metrics"
	pubsubpublisher "github.com/madfam-io/renec-harvester-sub000/internal/publisher/pubsub"
	gcsstorage "github.com/madfam-io/renec-harvester-sub000/internal/storage/gcs"
	localstorage "github.com/madfam-io/renec-harvester-sub000/internal/storage/local"
	memorystorage "github.com/madfam-io/renec-harvester-sub000/internal/storage/memory"
	storememory "github.com/madfam-io/renec-harvester-sub000/internal/store/memory"
	storepostgres "github.com/madfam-io/renec-harvester-sub000/internal/store/postgres"
)

func newHarvestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "harvest",
		Short: "Executes one harvest run",
		Long: `Runs one full harvest: discovery, per-component extraction, validation
gates and the change-set diff against the previous successful run. The run
summary is printed to stdout as JSON.`,
		RunE: runHarvestCommand,
	}
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()

	repo, closeRepo, err := buildRepository(ctx, cfg, clock, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	blobStore, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	publisher, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	hasher := sha256.New()
	pageFetcher, closeFetcher, err := buildFetcher(cfg, hasher, logger)
	if err != nil {
		return err
	}
	defer closeFetcher()

	registry, err := drivers.FromConfig(cfg, pageFetcher, logger.Named("drivers"))
	if err != nil {
		return fmt.Errorf("build driver registry: %w", err)
	}

	coord, err := coordinator.New(cfg, coordinator.Deps{
		Registry:  registry,
		Fetcher:   pageFetcher,
		Repo:      repo,
		BlobStore: blobStore,
		Publisher: publisher,
		Hasher:    hasher,
		Clock:     clock,
		IDs:       uuid.NewGenerator(),
		Metrics:   metrics.New(),
		Logger:    logger.Named("coordinator"),
	})
	if err != nil {
		return fmt.Errorf("build coordinator: %w", err)
	}

	summary, changeSet, err := coord.Run(ctx)
	if err != nil {
		return fmt.Errorf("harvest run: %w", err)
	}

	logger.Info("harvest finished",
		zap.String("run_id", summary.RunID),
		zap.String("status", string(summary.Status)),
		zap.Bool("no_baseline", changeSet.NoBaseline))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func buildRepository(
	ctx context.Context,
	cfg config.Config,
	clock harvester.Clock,
	logger *zap.Logger,
) (harvester.Repository, func(), error) {
	switch cfg.DB.Provider {
	case "postgres":
		repo, err := storepostgres.New(ctx, storepostgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
		}, clock)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres repository: %w", err)
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, nil, fmt.Errorf("migrate schema: %w", err)
		}
		return repo, repo.Close, nil
	case "memory", "":
		logger.Warn("using in-memory repository, run history will not persist")
		return storememory.New(clock), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown db provider %q", cfg.DB.Provider)
	}
}

func buildBlobStore(ctx context.Context, cfg config.Config) (harvester.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		return gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Storage.GCSBucket})
	case "local":
		return localstorage.New(localstorage.Config{BaseDir: cfg.Storage.LocalDir})
	case "memory", "":
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (harvester.Publisher, func(), error) {
	if !cfg.PubSub.Enabled {
		return nil, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("init pubsub client: %w", err)
	}
	return pubsubpublisher.New(client), func() { _ = client.Close() }, nil
}

func buildFetcher(cfg config.Config, hasher harvester.Hasher, logger *zap.Logger) (harvester.PageFetcher, func(), error) {
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Harvest.UserAgent,
		RespectRobots: true,
		Timeout:       cfg.FetchTimeout(),
	})

	var rendered harvester.PageFetcher
	closeRendered := func() {}
	if cfg.Headless.Enabled {
		headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Harvest.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			BodySampleCap:     cfg.Headless.BodySampleCapB,
		}, hasher)
		if err != nil {
			logger.Warn("headless fetcher init failed, rendering disabled", zap.Error(err))
		} else {
			rendered = headless
			closeRendered = headless.Close
		}
	}

	router, err := fetcher.NewRouter(static, rendered, logger.Named("fetcher"))
	if err != nil {
		closeRendered()
		return nil, nil, fmt.Errorf("build fetch router: %w", err)
	}
	polite := coordinator.NewPoliteFetcher(router, cfg.Harvest, logger.Named("politeness"))
	return polite, closeRendered, nil
}
