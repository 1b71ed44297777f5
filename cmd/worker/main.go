/**
 * ScaleOCR Worker - Main Entry Point
 *
 * Reads the number shown on scale and gauge displays from queued photos.
 *
 * Architecture:
 * - Redis LIST consumer (default) or Asynq consumer for the job queue
 * - Strategy cascade over a Tesseract engine adapter
 * - Redis result cache keyed by image fingerprint
 * - PostgreSQL persistence for readings and job status
 * - Optional artifact archive for original images
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/scaleocr-worker/internal/cascade"
	"github.com/adverant/nexus/scaleocr-worker/internal/clients"
	"github.com/adverant/nexus/scaleocr-worker/internal/config"
	"github.com/adverant/nexus/scaleocr-worker/internal/logging"
	"github.com/adverant/nexus/scaleocr-worker/internal/ocr"
	"github.com/adverant/nexus/scaleocr-worker/internal/processor"
	"github.com/adverant/nexus/scaleocr-worker/internal/queue"
	"github.com/adverant/nexus/scaleocr-worker/internal/storage"
)

// queueConsumer is the lifecycle shared by both queue backends
type queueConsumer interface {
	start(ctx context.Context) error
	stop(ctx context.Context) error
}

type redisBackend struct{ *queue.RedisConsumer }

func (b redisBackend) start(context.Context) error { return b.Start() }
func (b redisBackend) stop(context.Context) error  { return b.Stop() }

type asynqBackend struct{ *queue.Consumer }

func (b asynqBackend) start(ctx context.Context) error { return b.Start(ctx) }
func (b asynqBackend) stop(ctx context.Context) error  { return b.Stop(ctx) }

func main() {
	logger := logging.NewLogger("Worker")
	defer logger.Sync()

	if err := godotenv.Load(".env.scaleocr"); err != nil {
		logger.Warn(".env.scaleocr not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.SetLevel(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker exited with error", "error", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	logger.Info("ScaleOCR Worker starting",
		"queue_backend", cfg.QueueBackend,
		"queue", cfg.QueueName,
		"workers", cfg.WorkerConcurrency,
		"env", cfg.NodeEnv)

	// Result cache
	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpt)
	defer redisClient.Close()

	cache := storage.NewResultCache(redisClient, time.Duration(cfg.ResultCacheTTL)*time.Second)

	// Storage
	storageManager, err := storage.NewStorageManager(cfg.DatabaseURL, cache, logging.NewLogger("Storage"))
	if err != nil {
		return fmt.Errorf("failed to initialize storage manager: %w", err)
	}
	defer storageManager.Close()
	logger.Info("Storage manager initialized", "cache_enabled", cache.Enabled())

	// Recognition
	engine, err := ocr.NewTesseractEngine(&ocr.TesseractConfig{
		TessdataPrefix: cfg.TessdataPrefix,
		Language:       cfg.TesseractLanguage,
		TempDir:        cfg.TempDir,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Tesseract: %w", err)
	}

	adapterOpts := []ocr.AdapterOption{
		ocr.WithTimeout(time.Duration(cfg.EngineTimeout) * time.Millisecond),
		ocr.WithAdapterLogger(logging.NewLogger("OCR")),
	}
	if cfg.SerializeEngine {
		adapterOpts = append(adapterOpts, ocr.WithSerialization())
	}
	adapter := ocr.NewAdapter(engine, adapterOpts...)

	extractor := cascade.NewExtractor(adapter, cascade.WithLogger(logging.NewLogger("Cascade")))
	logger.Info("Extraction cascade ready",
		"engine", engine.Name(),
		"strategies", extractor.Strategies(),
		"serialized", cfg.SerializeEngine)

	// Optional image archive
	var archive processor.ImageArchive
	if cfg.ArtifactAPIURL != "" {
		archive = clients.NewArtifactClient(cfg.ArtifactAPIURL, logging.NewLogger("ArtifactClient"))
		logger.Info("Image archive enabled", "url", cfg.ArtifactAPIURL)
	}

	proc, err := processor.NewReadingProcessor(&processor.ProcessorConfig{
		MaxFileSize:       cfg.MaxFileSize,
		ProcessingTimeout: time.Duration(cfg.ProcessingTimeout) * time.Millisecond,
		Extractor:         extractor,
		Store:             storageManager,
		Archive:           archive,
		Logger:            logging.NewLogger("Processor"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize reading processor: %w", err)
	}

	consumer, err := newConsumer(cfg, proc)
	if err != nil {
		return fmt.Errorf("failed to initialize queue consumer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := consumer.start(ctx); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	logger.Info("ScaleOCR Worker is ready, waiting for jobs")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal, initiating graceful shutdown", "signal", sig.String())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	if err := consumer.stop(stopCtx); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}

	logger.Info("Shutdown complete",
		"engine_calls", adapter.Calls(),
		"storage", storageManager.GetStats())
	return nil
}

func newConsumer(cfg *config.Config, proc processor.ReadingProcessorInterface) (queueConsumer, error) {
	switch cfg.QueueBackend {
	case config.QueueBackendAsynq:
		c, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
			Logger:            logging.NewLogger("Consumer"),
		})
		if err != nil {
			return nil, err
		}
		return asynqBackend{c}, nil

	default:
		c, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
			Logger:            logging.NewLogger("RedisConsumer"),
		})
		if err != nil {
			return nil, err
		}
		return redisBackend{c}, nil
	}
}
