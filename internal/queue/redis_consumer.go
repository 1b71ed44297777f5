/**
 * Direct Redis Queue Consumer for ScaleOCR Worker
 *
 * Compatible with the API's TypeScript RedisQueue: job IDs on a LIST, job
 * JSON in a hash, status sets, result/error hashes and a pub/sub channel.
 * A single fetch loop hands job IDs to a bounded ants pool.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/adverant/nexus/scaleocr-worker/internal/errors"
	"github.com/adverant/nexus/scaleocr-worker/internal/logging"
	"github.com/adverant/nexus/scaleocr-worker/internal/processor"
)

var errNoJobs = errors.New("no jobs available")

// RedisJobData represents a job from the Redis queue
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.ReadingProcessorInterface
	ProcessingTimeout int64         // milliseconds, default 120000
	PollTimeout       time.Duration // BRPOP block time, default 5s
	Logger            *logging.Logger
}

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client     *redis.Client
	ownsClient bool
	processor  processor.ReadingProcessorInterface
	config     *RedisConsumerConfig
	logger     *logging.Logger
	pool       *ants.PoolWithFunc
	ctx        context.Context
	cancel     context.CancelFunc
	loop       sync.WaitGroup
	jobs       sync.WaitGroup
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c, err := NewRedisConsumerWithClient(client, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	c.ownsClient = true
	return c, nil
}

// NewRedisConsumerWithClient creates a consumer on an existing client. The
// client is not closed by Stop.
func NewRedisConsumerWithClient(client *redis.Client, cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "scaleocr:jobs"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("RedisConsumer")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client:    client,
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (c *RedisConsumer) key(suffix string) string {
	return fmt.Sprintf("%s:%s", c.config.QueueName, suffix)
}

// Enqueue stores a job and pushes its ID onto the queue
func (c *RedisConsumer) Enqueue(ctx context.Context, job *RedisJobData) error {
	if job.ID == "" {
		job.ID = job.Payload.JobID
	}
	if job.Type == "" {
		job.Type = TaskTypeExtractReading
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, c.key("data"), job.ID, data)
		pipe.LPush(ctx, c.config.QueueName, job.ID)
		return nil
	})
	return err
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	pool, err := ants.NewPoolWithFunc(c.config.Concurrency, func(arg interface{}) {
		defer c.jobs.Done()
		jobID, ok := arg.(string)
		if !ok {
			c.logger.Error("Unexpected pool argument", "type", fmt.Sprintf("%T", arg))
			return
		}
		if err := c.runJob(jobID); err != nil {
			c.logger.Error("Job handling failed", "id", jobID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	c.pool = pool

	c.logger.Info("Starting Redis queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName)

	c.loop.Add(1)
	go c.fetchLoop()

	return nil
}

// Stop stops fetching, waits for in-flight jobs and releases the pool
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping queue consumer")
	c.cancel()
	c.loop.Wait()
	c.jobs.Wait()

	if c.pool != nil {
		c.pool.Release()
	}
	if c.ownsClient {
		return c.client.Close()
	}
	return nil
}

func (c *RedisConsumer) fetchLoop() {
	defer c.loop.Done()

	for {
		if c.ctx.Err() != nil {
			return
		}

		jobID, err := c.nextJobID()
		if err != nil {
			if errors.Is(err, errNoJobs) || c.ctx.Err() != nil {
				continue
			}
			c.logger.Warn("Failed to fetch job", "error", err)
			select {
			case <-time.After(time.Second):
			case <-c.ctx.Done():
			}
			continue
		}

		c.jobs.Add(1)
		if err := c.pool.Invoke(jobID); err != nil {
			c.jobs.Done()
			// Put it back at the consuming end so it is picked up next
			c.client.RPush(context.Background(), c.config.QueueName, jobID)
			c.logger.Error("Failed to dispatch job, re-queued", "id", jobID, "error", err)
		}
	}
}

// nextJobID blocks up to PollTimeout for a job ID
func (c *RedisConsumer) nextJobID() (string, error) {
	result, err := c.client.BRPop(c.ctx, c.config.PollTimeout, c.config.QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return "", errNoJobs
		}
		return "", fmt.Errorf("failed to fetch job: %w", err)
	}
	if len(result) < 2 {
		return "", fmt.Errorf("invalid job result")
	}
	return result[1], nil
}

// runJob handles one job end to end, including retry bookkeeping
func (c *RedisConsumer) runJob(id string) error {
	// Job bookkeeping must survive consumer shutdown
	ctx := context.WithoutCancel(c.ctx)

	jobData, err := c.client.HGet(ctx, c.key("data"), id).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data: %w", err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		c.markFailed(ctx, id, id, map[string]interface{}{"error": fmt.Sprintf("malformed job: %v", err)})
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = job.ID
	}

	jobID := job.Payload.JobID
	log := c.logger.With("job_id", jobID)

	if err := c.processor.UpdateJobStatus(ctx, jobID, StatusProcessing, job.Payload.intakeMetadata()); err != nil {
		log.Warn("Could not record processing status", "error", err)
	}
	c.client.SAdd(ctx, c.key("processing"), jobID)
	c.publish(ctx, jobID, StatusProcessing)

	start := time.Now()
	result, err := c.processJob(&job)
	duration := time.Since(start)

	if err != nil {
		job.Attempts++
		if retryable(err) && job.Attempts < job.MaxRetries {
			updated, _ := json.Marshal(job)
			c.client.HSet(ctx, c.key("data"), job.ID, updated)
			c.client.SRem(ctx, c.key("processing"), jobID)
			c.client.LPush(ctx, c.config.QueueName, job.ID)
			log.Warn("Job failed, re-queued",
				"attempt", job.Attempts,
				"max_retries", job.MaxRetries,
				"error", err)
			return nil
		}

		log.Warn("Job failed", "attempts", job.Attempts, "duration", duration, "error", err)
		c.markFailed(ctx, job.ID, jobID, failureMetadata(err, job.Attempts, duration))
		return nil
	}

	meta := completionMetadata(result, duration)
	if err := c.processor.UpdateJobStatus(ctx, jobID, StatusCompleted, meta); err != nil {
		log.Error("Failed to record completed status", "error", err)
	}

	resultData, _ := json.Marshal(result)
	c.client.SRem(ctx, c.key("processing"), jobID)
	c.client.SAdd(ctx, c.key("completed"), jobID)
	c.client.HSet(ctx, c.key("results"), jobID, resultData)
	c.publish(ctx, jobID, StatusCompleted)

	log.Info("Job completed",
		"value", result.Value,
		"strategy", result.Strategy,
		"cached", result.Cached,
		"duration", duration)
	return nil
}

// processJob runs the processor under the processing timeout
func (c *RedisConsumer) processJob(job *RedisJobData) (*processor.ProcessResult, error) {
	timeout := 120 * time.Second
	if c.config.ProcessingTimeout > 0 {
		timeout = time.Duration(c.config.ProcessingTimeout) * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), timeout)
	defer cancel()

	result, err := c.processor.ProcessReading(ctx, job.Payload.toRequest())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded && apperrors.CodeOf(err) == "" {
			return nil, apperrors.NewProcessingTimeoutError(job.Payload.JobID, timeout, err)
		}
		return nil, err
	}
	return result, nil
}

func (c *RedisConsumer) markFailed(ctx context.Context, id, jobID string, meta map[string]interface{}) {
	if err := c.processor.UpdateJobStatus(ctx, jobID, StatusFailed, meta); err != nil {
		c.logger.Warn("Failed to record failed status", "job_id", jobID, "error", err)
	}

	errorData, _ := json.Marshal(meta)
	c.client.SRem(ctx, c.key("processing"), jobID)
	c.client.SAdd(ctx, c.key("failed"), jobID)
	c.client.HSet(ctx, c.key("errors"), jobID, errorData)
	c.publish(ctx, jobID, StatusFailed)
}

// publish emits a job event for WebSocket streaming
func (c *RedisConsumer) publish(ctx context.Context, jobID, status string) {
	event := map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	eventData, _ := json.Marshal(event)
	c.client.Publish(ctx, c.key("events"), eventData)
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats() (map[string]int64, error) {
	ctx := context.Background()

	waiting, err := c.client.LLen(ctx, c.config.QueueName).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue length: %w", err)
	}
	processing, _ := c.client.SCard(ctx, c.key("processing")).Result()
	completed, _ := c.client.SCard(ctx, c.key("completed")).Result()
	failed, _ := c.client.SCard(ctx, c.key("failed")).Result()

	return map[string]int64{
		"waiting":    waiting,
		"processing": processing,
		"completed":  completed,
		"failed":     failed,
	}, nil
}
