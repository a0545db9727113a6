// Package bootstrap provides dependency initialization for the task
// pipeline. Backends (store, queue, cache, provider) are chosen once
// here; the rest of the code only sees the ports.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vidforge/vidforge/internal/comet"
	"github.com/vidforge/vidforge/internal/config"
	"github.com/vidforge/vidforge/internal/delivery"
	"github.com/vidforge/vidforge/internal/generation"
	"github.com/vidforge/vidforge/internal/media"
	"github.com/vidforge/vidforge/internal/queue"
	"github.com/vidforge/vidforge/internal/results"
	"github.com/vidforge/vidforge/internal/sora"
	"github.com/vidforge/vidforge/internal/storage"
	"github.com/vidforge/vidforge/internal/task"
	"github.com/vidforge/vidforge/internal/worker"
)

// Dependencies holds all initialized dependencies for the application.
type Dependencies struct {
	Repo        task.Repository
	Queue       queue.Queue
	Consumer    queue.Consumer
	TaskService *task.Service
	Pipeline    *worker.Pipeline
	Pool        *worker.Pool
	Reaper      *worker.StaleReaper

	closers []func()
}

// Close releases held connections.
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	repo, err := initRepository(ctx, cfg, logger, deps)
	if err != nil {
		return nil, err
	}
	deps.Repo = repo

	if err := initQueue(cfg, logger, deps); err != nil {
		return nil, err
	}

	recent := initResultsCache(cfg, logger, deps)

	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	gen, err := initGenerator(cfg)
	if err != nil {
		return nil, err
	}

	deliverer, err := delivery.NewTelegramDeliverer(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram deliverer: %w", err)
	}

	composer := media.NewFFmpegComposer(cfg.FFmpegPath, cfg.FFprobePath)

	deps.TaskService = task.NewService(repo, deps.Queue, recent, cfg.MaxClips, logger)
	deps.Pipeline = worker.NewPipeline(repo, gen, composer, store, deliverer, recent,
		cfg.PollInterval, cfg.PollTimeout, logger)
	deps.Pool = worker.NewPool(deps.Pipeline, cfg.WorkerPoolSize, logger)
	deps.Reaper = worker.NewStaleReaper(repo, deps.Queue, cfg.StaleInterval, cfg.LeaseTimeout, logger)

	return deps, nil
}

// initRepository selects the durable task store.
func initRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *Dependencies) (task.Repository, error) {
	if cfg.PostgresEnabled() {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		deps.closers = append(deps.closers, pool.Close)
		logger.Info("postgres task store configured")
		return task.NewPostgresRepository(pool), nil
	}

	logger.Warn("no DATABASE_URL set, using in-memory task store")
	return task.NewMemoryRepository(), nil
}

// initQueue selects the work queue. Without Kafka, an in-process queue
// serves both producer and consumer sides.
func initQueue(cfg *config.Config, logger *slog.Logger, deps *Dependencies) error {
	if cfg.KafkaEnabled() {
		kq, err := queue.NewKafkaQueue(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		deps.closers = append(deps.closers, func() { _ = kq.Close() })

		kc, err := queue.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, cfg.KafkaTopic, logger)
		if err != nil {
			return fmt.Errorf("create kafka consumer: %w", err)
		}
		deps.closers = append(deps.closers, func() { _ = kc.Close() })

		logger.Info("kafka queue configured",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.KafkaTopic))
		deps.Queue = kq
		deps.Consumer = kc
		return nil
	}

	logger.Warn("no KAFKA_BROKERS set, using in-process queue")
	mq := queue.NewMemoryQueue(256)
	deps.closers = append(deps.closers, func() { _ = mq.Close() })
	deps.Queue = mq
	deps.Consumer = mq
	return nil
}

// initResultsCache selects the recent-results cache used by remixes.
func initResultsCache(cfg *config.Config, logger *slog.Logger, deps *Dependencies) results.Cache {
	if cfg.RedisEnabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		deps.closers = append(deps.closers, func() { _ = client.Close() })
		logger.Info("redis results cache configured", slog.String("addr", cfg.RedisAddr))
		return results.NewRedisCache(client, cfg.RecentTTL)
	}

	logger.Warn("no REDIS_ADDR set, using in-memory results cache")
	return results.NewMemoryCache()
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir, cfg.ResultsDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}

// initGenerator chooses the generation provider once at construction.
func initGenerator(cfg *config.Config) (generation.Generator, error) {
	switch cfg.Provider {
	case config.ProviderComet:
		client, err := comet.NewClient(comet.WithAPIKey(cfg.CometAPIKey))
		if err != nil {
			return nil, fmt.Errorf("create comet client: %w", err)
		}
		return generation.NewCometGenerator(client), nil
	case config.ProviderSora:
		client, err := sora.NewClient(sora.WithAPIKey(cfg.OpenAIAPIKey))
		if err != nil {
			return nil, fmt.Errorf("create sora client: %w", err)
		}
		return generation.NewSoraGenerator(client), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, cfg.Provider)
	}
}
