/**
 * PostgreSQL Client for ScaleOCR Worker
 *
 * Handles job persistence and reading records.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	Status           string
	ReadingID        string
	Strategy         string
	Attempts         int
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// Reading is an accepted numeric reading and the context it was taken in
type Reading struct {
	ID          string    `json:"id"`
	JobID       string    `json:"jobId"`
	UserID      string    `json:"userId"`
	Value       float64   `json:"value"`
	Unit        string    `json:"uM"`
	Category    string    `json:"category"`
	Status      string    `json:"status"`
	Strategy    string    `json:"strategy"`
	Fingerprint string    `json:"fingerprint"`
	ArtifactID  string    `json:"artifactId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DefaultReadingStatus is recorded when the caller supplies none
const DefaultReadingStatus = "recorded"

// sanitizeValue rounds a reading to 6 decimal places so NUMERIC(14,6) never
// rejects binary float noise such as 0.33600000000000002
func sanitizeValue(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// NewPostgresClientFromDB wraps an existing handle
func NewPostgresClientFromDB(db *sql.DB) *PostgresClient {
	return &PostgresClient{db: db}
}

// UpdateJobStatus upserts the job row so the worker can create it when the
// API has not yet done so
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update == nil || update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var filename, mimeType, userID string
	var fileSize int64
	if update.Metadata != nil {
		if fn, ok := update.Metadata["filename"].(string); ok {
			filename = fn
		}
		if mt, ok := update.Metadata["mimeType"].(string); ok {
			mimeType = mt
		}
		switch fs := update.Metadata["fileSize"].(type) {
		case int64:
			fileSize = fs
		case int:
			fileSize = int64(fs)
		case float64:
			fileSize = int64(fs)
		}
		if uid, ok := update.Metadata["userId"].(string); ok {
			userID = uid
		}
	}

	query := `
		INSERT INTO scaleocr.processing_jobs (
			id, user_id, filename, mime_type, file_size,
			status, reading_id, strategy, attempts, processing_time_ms,
			error_code, error_message, metadata,
			created_at, updated_at
		) VALUES (
			$1::uuid, COALESCE(NULLIF($10, ''), 'anonymous'), COALESCE(NULLIF($11, ''), 'unknown'),
			COALESCE(NULLIF($12, ''), 'application/octet-stream'), NULLIF($13, 0),
			$2, CASE WHEN $3 = '' THEN NULL ELSE $3::uuid END,
			NULLIF($4, ''), NULLIF($5, 0), NULLIF($6, 0),
			NULLIF($7, ''), NULLIF($8, ''),
			COALESCE($9::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			reading_id = COALESCE(EXCLUDED.reading_id, scaleocr.processing_jobs.reading_id),
			strategy = COALESCE(EXCLUDED.strategy, scaleocr.processing_jobs.strategy),
			attempts = COALESCE(EXCLUDED.attempts, scaleocr.processing_jobs.attempts),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, scaleocr.processing_jobs.processing_time_ms),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = COALESCE(EXCLUDED.metadata, scaleocr.processing_jobs.metadata),
			file_size = COALESCE(EXCLUDED.file_size, scaleocr.processing_jobs.file_size),
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,            // $1
		update.Status,           // $2
		update.ReadingID,        // $3
		update.Strategy,         // $4
		update.Attempts,         // $5
		update.ProcessingTimeMs, // $6
		update.ErrorCode,        // $7
		update.ErrorMessage,     // $8
		metadataJSON,            // $9
		userID,                  // $10
		filename,                // $11
		mimeType,                // $12
		fileSize,                // $13
	).Scan(&returnedID)

	if err == sql.ErrNoRows {
		return fmt.Errorf("job not found: %s", update.JobID)
	}
	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}

	return nil
}

// SaveReading inserts a reading, assigning an ID when none is set
func (p *PostgresClient) SaveReading(ctx context.Context, r *Reading) (*Reading, error) {
	if r == nil {
		return nil, fmt.Errorf("reading is required")
	}
	if r.Fingerprint == "" {
		return nil, fmt.Errorf("fingerprint is required")
	}

	out := *r
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.Status == "" {
		out.Status = DefaultReadingStatus
	}
	out.Value = sanitizeValue(out.Value)

	query := `
		INSERT INTO scaleocr.readings (
			id, job_id, user_id, value, unit, category,
			status, strategy, fingerprint, artifact_id, created_at
		) VALUES (
			$1::uuid, CASE WHEN $2 = '' THEN NULL ELSE $2::uuid END,
			COALESCE(NULLIF($3, ''), 'anonymous'), $4::NUMERIC(14,6),
			NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, NULLIF($10, ''), NOW()
		)
		RETURNING created_at
	`

	err := p.db.QueryRowContext(
		ctx,
		query,
		out.ID,
		out.JobID,
		out.UserID,
		out.Value,
		out.Unit,
		out.Category,
		out.Status,
		out.Strategy,
		out.Fingerprint,
		out.ArtifactID,
	).Scan(&out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save reading (job=%s): %w", out.JobID, err)
	}

	return &out, nil
}

// GetReading retrieves a reading by ID
func (p *PostgresClient) GetReading(ctx context.Context, id string) (*Reading, error) {
	if id == "" {
		return nil, fmt.Errorf("reading ID is required")
	}

	query := `
		SELECT id, job_id, user_id, value, unit, category,
			status, strategy, fingerprint, artifact_id, created_at
		FROM scaleocr.readings
		WHERE id = $1::uuid
	`

	return p.scanReading(p.db.QueryRowContext(ctx, query, id), id)
}

// GetReadingByFingerprint returns the most recent reading for an image
func (p *PostgresClient) GetReadingByFingerprint(ctx context.Context, fingerprint string) (*Reading, error) {
	if fingerprint == "" {
		return nil, fmt.Errorf("fingerprint is required")
	}

	query := `
		SELECT id, job_id, user_id, value, unit, category,
			status, strategy, fingerprint, artifact_id, created_at
		FROM scaleocr.readings
		WHERE fingerprint = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	return p.scanReading(p.db.QueryRowContext(ctx, query, fingerprint), fingerprint)
}

func (p *PostgresClient) scanReading(row *sql.Row, key string) (*Reading, error) {
	var (
		r                               Reading
		jobID, unit, category, artifact sql.NullString
	)

	err := row.Scan(
		&r.ID, &jobID, &r.UserID, &r.Value, &unit, &category,
		&r.Status, &r.Strategy, &r.Fingerprint, &artifact, &r.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrReadingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reading %s: %w", key, err)
	}

	r.JobID = jobID.String
	r.Unit = unit.String
	r.Category = category.String
	r.ArtifactID = artifact.String

	return &r, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
