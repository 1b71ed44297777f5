/**
 * Queue Consumer for ScaleOCR Worker
 *
 * Consumes reading extraction tasks from Redis using Asynq.
 * Bad input and unreadable images are not retried.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	apperrors "github.com/adverant/nexus/scaleocr-worker/internal/errors"
	"github.com/adverant/nexus/scaleocr-worker/internal/logging"
	"github.com/adverant/nexus/scaleocr-worker/internal/processor"
)

// TaskTypeExtractReading is the task type for reading extraction jobs
const TaskTypeExtractReading = "extract-reading"

// Consumer handles job consumption from Redis queue
type Consumer struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor processor.ReadingProcessorInterface
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	MaxRetries        int
	Processor         processor.ReadingProcessorInterface
	ProcessingTimeout int64 // milliseconds, default 120000
	Logger            *logging.Logger
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("Consumer")
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// 5s, 10s, 20s ... capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Warn("Task processing error",
					"type", task.Type(),
					"code", string(apperrors.CodeOf(err)),
					"error", err)
			}),
			Logger: &asynqLogger{logger: logger},
		},
	)

	consumer := &Consumer{
		client:    asynq.NewClient(redisOpt),
		server:    server,
		mux:       asynq.NewServeMux(),
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
	}

	consumer.mux.HandleFunc(TaskTypeExtractReading, consumer.handleExtractReading)

	return consumer, nil
}

// Enqueue submits a reading job to the consumer's queue
func (c *Consumer) Enqueue(ctx context.Context, payload *JobPayload) (*asynq.TaskInfo, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeExtractReading, data)
	opts := []asynq.Option{
		asynq.Queue(c.config.QueueName),
		asynq.MaxRetry(c.config.MaxRetries),
	}
	if payload.JobID != "" {
		opts = append(opts, asynq.TaskID(payload.JobID))
	}

	return c.client.EnqueueContext(ctx, task, opts...)
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue server: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")

	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}

	c.logger.Info("Queue consumer stopped")
	return nil
}

// handleExtractReading processes one reading extraction task
func (c *Consumer) handleExtractReading(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var payload JobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}

	log := c.logger.With("job_id", payload.JobID)
	log.Info("Processing reading",
		"filename", payload.Filename,
		"size", payload.FileSize,
		"user", payload.UserID)

	if err := c.processor.UpdateJobStatus(ctx, payload.JobID, StatusProcessing, payload.intakeMetadata()); err != nil {
		log.Warn("Failed to update status to processing", "error", err)
	}

	timeout := 120 * time.Second
	if c.config.ProcessingTimeout > 0 {
		timeout = time.Duration(c.config.ProcessingTimeout) * time.Millisecond
	}

	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.processor.ProcessReading(processCtx, payload.toRequest())
	duration := time.Since(startTime)

	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded && apperrors.CodeOf(err) == "" {
			err = apperrors.NewProcessingTimeoutError(payload.JobID, timeout, err)
		}

		retryCount, _ := asynq.GetRetryCount(ctx)
		maxRetry, ok := asynq.GetMaxRetry(ctx)
		final := !retryable(err) || (ok && retryCount >= maxRetry)

		log.Warn("Reading extraction failed",
			"duration", duration,
			"retry", retryCount,
			"final", final,
			"error", err)

		if final {
			meta := failureMetadata(err, retryCount+1, duration)
			if updateErr := c.processor.UpdateJobStatus(ctx, payload.JobID, StatusFailed, meta); updateErr != nil {
				log.Warn("Failed to update status to failed", "error", updateErr)
			}
		}

		if !retryable(err) {
			return fmt.Errorf("reading extraction failed: %w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("reading extraction failed: %w", err)
	}

	log.Info("Reading extracted",
		"duration", duration,
		"value", result.Value,
		"strategy", result.Strategy,
		"cached", result.Cached)

	if err := c.processor.UpdateJobStatus(ctx, payload.JobID, StatusCompleted, completionMetadata(result, duration)); err != nil {
		log.Warn("Failed to update status to completed", "error", err)
	}

	if rw := task.ResultWriter(); rw != nil {
		data, _ := json.Marshal(result)
		if _, err := rw.Write(data); err != nil {
			log.Debug("Could not write task result", "error", err)
		}
	}

	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
		"maxRetries":  c.config.MaxRetries,
	}
}

// asynqLogger routes asynq's internal logging through the worker logger
type asynqLogger struct {
	logger *logging.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	_ = l.logger.Sync()
	os.Exit(1)
}
