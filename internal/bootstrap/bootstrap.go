// Package bootstrap wires the process dependencies shared by the API and
// the worker.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/maauso/viralclips/internal/analysis"
	"github.com/maauso/viralclips/internal/config"
	"github.com/maauso/viralclips/internal/dispatch"
	"github.com/maauso/viralclips/internal/gemini"
	"github.com/maauso/viralclips/internal/media"
	"github.com/maauso/viralclips/internal/pipeline"
	"github.com/maauso/viralclips/internal/postgres"
	"github.com/maauso/viralclips/internal/project"
	"github.com/maauso/viralclips/internal/server"
	"github.com/maauso/viralclips/internal/storage"
	"github.com/maauso/viralclips/internal/tracing"
)

// Dependencies holds the adapters every process needs.
type Dependencies struct {
	Config    *config.Config
	Pool      *pgxpool.Pool
	Repo      project.Repository
	Blobs     storage.BlobStore
	Conn      *amqp.Connection
	Codec     *dispatch.Codec
	Topology  dispatch.Topology
	Publisher *dispatch.Publisher

	logger          *slog.Logger
	shutdownTracing tracing.ShutdownFunc
}

// Worker holds the task consumer and the retention scheduler. Scheduler is
// nil when RETENTION_SCHEDULER_ENABLED is false.
type Worker struct {
	Consumer  *dispatch.Consumer
	Scheduler *dispatch.Scheduler
}

// NewDependencies creates and initializes the shared dependencies.
// On error, everything opened so far is closed.
func NewDependencies(ctx context.Context, cfg *config.Config, serviceName string, logger *slog.Logger) (_ *Dependencies, err error) {
	d := &Dependencies{
		Config: cfg,
		Codec:  dispatch.NewCodec(),
		Topology: dispatch.Topology{
			Exchange: cfg.RabbitMQExchange,
			Queue:    cfg.RabbitMQQueue,
			DLQ:      cfg.RabbitMQDLQ,
		},
		logger: logger,
	}
	defer func() {
		if err != nil {
			_ = d.Close(context.WithoutCancel(ctx))
		}
	}()

	if d.shutdownTracing, err = tracing.Init(ctx, cfg.OTLPEndpoint, serviceName); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if d.Pool, err = postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.RunMigrations {
		if _, err = postgres.Migrate(ctx, d.Pool, logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	d.Repo = postgres.NewRepository(d.Pool)

	s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 storage: %w", err)
	}
	d.Blobs = s3Store
	logger.Info("S3 storage configured",
		slog.String("bucket", s3Store.Bucket()),
		slog.String("region", cfg.S3Region),
	)

	if d.Conn, err = amqp.Dial(cfg.RabbitMQURL); err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	if d.Publisher, err = dispatch.NewPublisher(d.Conn, d.Topology, d.Codec); err != nil {
		return nil, fmt.Errorf("create publisher: %w", err)
	}

	return d, nil
}

// NewAPIHandler builds the HTTP handler of the API process.
func (d *Dependencies) NewAPIHandler() http.Handler {
	janitor := pipeline.NewJanitor(pipeline.Dependencies{
		Repo:   d.Repo,
		Blobs:  d.Blobs,
		Logger: d.logger,
	})
	handlers := server.NewHandlers(d.Repo, d.Blobs, d.Publisher, janitor, d.logger,
		server.WithSignedURLTTL(d.Config.SignedURLTTL),
	)
	return server.NewRouter(handlers, d.logger, server.DefaultConfig())
}

// NewWorker builds the pipeline components and the task consumer.
func (d *Dependencies) NewWorker() (*Worker, error) {
	cfg := d.Config

	workspace, err := storage.NewWorkspace(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	geminiOpts := []gemini.ClientOption{
		gemini.WithModel(cfg.GeminiModel),
		gemini.WithRequestTimeout(cfg.GeminiRequestTimeout),
		gemini.WithMetadataTimeout(cfg.GeminiMetadataTimeout),
		gemini.WithMaxRetries(cfg.GeminiMaxRetries),
		gemini.WithBaseBackoff(cfg.GeminiRetryBackoff),
	}
	if cfg.GeminiBaseURL != "" {
		geminiOpts = append(geminiOpts, gemini.WithBaseURL(cfg.GeminiBaseURL))
	}
	client, err := gemini.NewClient(cfg.GeminiAPIKey, geminiOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	deps := pipeline.Dependencies{
		Repo:       d.Repo,
		Blobs:      d.Blobs,
		Workspace:  workspace,
		Transcoder: media.NewFFmpegTranscoder(cfg.FFmpegPath, cfg.FFprobePath,
			media.WithPreset(cfg.FFmpegPreset),
			media.WithCRF(cfg.FFmpegCRF),
		),
		Analyzer: analysis.NewGeminiAnalyzer(client,
			analysis.WithPollInterval(cfg.AnalysisPollInterval),
			analysis.WithMaxWait(cfg.AnalysisMaxWait),
			analysis.WithLogger(d.logger),
		),
		Logger: d.logger,
	}

	router := dispatch.NewRouter(d.Codec,
		pipeline.NewOrchestrator(deps,
			pipeline.WithSupersede(cfg.SupersedeStaleClips),
			pipeline.WithShortVideoThreshold(cfg.ShortVideoThreshold),
			pipeline.WithFallbackDuration(cfg.ProbeFallbackDuration),
		),
		pipeline.NewBurner(deps),
		pipeline.NewJanitor(deps),
		d.logger,
	)

	consumer, err := dispatch.NewConsumer(d.Conn, dispatch.ConsumerConfig{
		Topology:    d.Topology,
		Prefetch:    cfg.WorkerCount,
		WorkerCount: cfg.WorkerCount,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxAttempts: cfg.TaskMaxAttempts,
	}, router.Handle, d.logger)
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	d.logger.Info("worker configured",
		slog.String("workspace", workspace.Root()),
		slog.String("gemini_model", client.Model()),
		slog.Int("workers", cfg.WorkerCount),
		slog.Bool("supersede_stale_clips", cfg.SupersedeStaleClips),
		slog.Bool("retention_scheduler", cfg.RetentionSchedulerEnabled),
	)

	return &Worker{
		Consumer:  consumer,
		Scheduler: newScheduler(cfg, d.Publisher, d.logger),
	}, nil
}

// newScheduler returns the retention scheduler, or nil when this replica
// should not run one.
func newScheduler(cfg *config.Config, enqueuer dispatch.SweepEnqueuer, logger *slog.Logger) *dispatch.Scheduler {
	if !cfg.RetentionSchedulerEnabled {
		return nil
	}
	return dispatch.NewScheduler(enqueuer, cfg.RetentionSweepInterval, cfg.RetentionMaxAgeHours, logger)
}

// Close releases every dependency in reverse order of creation.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	if d.Publisher != nil {
		if err := d.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if d.Conn != nil && !d.Conn.IsClosed() {
		if err := d.Conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close rabbitmq: %w", err))
		}
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
	if d.shutdownTracing != nil {
		if err := d.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}
