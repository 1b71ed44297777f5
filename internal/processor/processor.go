/**
 * Reading Processor for ScaleOCR Worker
 *
 * Turns a queued job into a stored reading:
 * - load the image (inline buffer or URL download)
 * - correct the declared type from magic bytes, reject unsupported types
 * - reuse a previous reading of byte-identical images
 * - run the extraction cascade (concurrent duplicates share one run)
 * - archive the image and persist the reading
 */

package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/adverant/nexus/scaleocr-worker/internal/cascade"
	"github.com/adverant/nexus/scaleocr-worker/internal/clients"
	apperrors "github.com/adverant/nexus/scaleocr-worker/internal/errors"
	"github.com/adverant/nexus/scaleocr-worker/internal/logging"
	"github.com/adverant/nexus/scaleocr-worker/internal/storage"
)

// ReadingProcessorInterface is what the queue consumers depend on
type ReadingProcessorInterface interface {
	ProcessReading(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error
}

// Extractor reads a number from an image
type Extractor interface {
	Extract(ctx context.Context, raw cascade.RawImage) (*cascade.Result, error)
}

// ReadingStore persists readings and job state
type ReadingStore interface {
	LookupReading(ctx context.Context, fingerprint string) (*storage.Reading, error)
	SaveReading(ctx context.Context, r *storage.Reading) (*storage.Reading, error)
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// ImageArchive stores original images
type ImageArchive interface {
	ArchiveImage(ctx context.Context, req *clients.ArchiveRequest) (*clients.Artifact, error)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	MaxFileSize       int64
	ProcessingTimeout time.Duration
	Extractor         Extractor
	Store             ReadingStore
	Archive           ImageArchive // optional
	Logger            *logging.Logger
	HTTPClient        *http.Client
	Download          DownloadPolicy
}

// ProcessRequest represents a reading request
type ProcessRequest struct {
	JobID      string
	UserID     string
	Filename   string
	MimeType   string
	FileSize   int64
	FileURL    string
	FileBuffer []byte
	Unit       string
	Category   string
	Status     string
	Metadata   map[string]interface{}
}

// ProcessResult represents the processing result
type ProcessResult struct {
	ReadingID        string
	Value            float64
	Strategy         string
	Attempts         int
	Cached           bool
	ArtifactID       string
	Fingerprint      string
	ProcessingTimeMs int64
}

// ReadingProcessor handles reading jobs
type ReadingProcessor struct {
	config     ProcessorConfig
	extractor  Extractor
	store      ReadingStore
	archive    ImageArchive
	logger     *logging.Logger
	httpClient *http.Client
	inflight   singleflight.Group
}

// NewReadingProcessor creates a new reading processor
func NewReadingProcessor(cfg *ProcessorConfig) (*ReadingProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("processor config is required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("reading store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	return &ReadingProcessor{
		config:     *cfg,
		extractor:  cfg.Extractor,
		store:      cfg.Store,
		archive:    cfg.Archive,
		logger:     logger,
		httpClient: httpClient,
	}, nil
}

// Fingerprint identifies byte-identical images
func Fingerprint(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// ProcessReading processes a reading through the complete pipeline
func (p *ReadingProcessor) ProcessReading(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	start := time.Now()
	log := p.logger.With("job_id", req.JobID)

	// Step 1: Load image
	data, err := p.loadFile(ctx, req)
	if err != nil {
		return nil, err
	}
	if p.config.MaxFileSize > 0 && int64(len(data)) > p.config.MaxFileSize {
		return nil, apperrors.NewInvalidInputError(
			fmt.Sprintf("image exceeds maximum size: %d > %d bytes", len(data), p.config.MaxFileSize), nil).
			WithJobID(req.JobID)
	}

	// Step 2: Correct MIME type from magic bytes
	mimeType := req.MimeType
	if detected := detectMimeTypeFromMagicBytes(data); detected != "" &&
		(mimeType == "" || mimeType == "application/octet-stream") {
		log.Info("Corrected MIME type from magic bytes", "declared", mimeType, "detected", detected)
		mimeType = detected
	}

	raw := cascade.RawImage{Data: data, MimeType: mimeType}
	if err := raw.Validate(); err != nil {
		return nil, withJobID(err, req.JobID)
	}

	// Step 3: Reuse a previous reading of the same image
	fingerprint := Fingerprint(data)
	var (
		value    float64
		strategy string
		attempts int
		cached   bool
	)

	prev, err := p.store.LookupReading(ctx, fingerprint)
	switch {
	case err == nil:
		value, strategy, cached = prev.Value, prev.Strategy, true
		log.Info("Reusing previous reading", "fingerprint", fingerprint, "reading_id", prev.ID)
	case !errors.Is(err, storage.ErrReadingNotFound):
		log.Warn("Reading lookup failed, extracting anyway", "fingerprint", fingerprint, "error", err)
	}

	// Step 4: Extract
	if !cached {
		result, shared, err := p.extract(ctx, fingerprint, raw)
		if err != nil {
			return nil, withJobID(err, req.JobID)
		}
		value, strategy, attempts = result.Value, result.Strategy, result.Attempts
		log.Info("Extraction complete",
			"value", value,
			"strategy", strategy,
			"attempts", attempts,
			"shared", shared)
	}

	// Step 5: Archive the image
	var artifactID string
	if p.archive != nil {
		artifact, err := p.archive.ArchiveImage(ctx, &clients.ArchiveRequest{
			Image:    data,
			Filename: archiveFilename(req, mimeType),
			MimeType: mimeType,
			JobID:    req.JobID,
			Metadata: map[string]interface{}{
				"fingerprint": fingerprint,
				"strategy":    strategy,
				"value":       value,
			},
		})
		if err != nil {
			log.Warn("Image archive failed, continuing without it", "error", err)
		} else {
			artifactID = artifact.ID
		}
	}

	// Step 6: Persist
	saved, err := p.store.SaveReading(ctx, &storage.Reading{
		JobID:       req.JobID,
		UserID:      req.UserID,
		Value:       value,
		Unit:        req.Unit,
		Category:    req.Category,
		Status:      req.Status,
		Strategy:    strategy,
		Fingerprint: fingerprint,
		ArtifactID:  artifactID,
	})
	if err != nil {
		return nil, apperrors.NewStorageFailedError(req.JobID, err)
	}

	return &ProcessResult{
		ReadingID:        saved.ID,
		Value:            saved.Value,
		Strategy:         strategy,
		Attempts:         attempts,
		Cached:           cached,
		ArtifactID:       artifactID,
		Fingerprint:      fingerprint,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// extract runs the cascade under the processing timeout. Concurrent calls
// for the same fingerprint wait for the first one's outcome.
func (p *ReadingProcessor) extract(ctx context.Context, fingerprint string, raw cascade.RawImage) (*cascade.Result, bool, error) {
	v, err, shared := p.inflight.Do(fingerprint, func() (interface{}, error) {
		runCtx := ctx
		if p.config.ProcessingTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, p.config.ProcessingTimeout)
			defer cancel()
		}

		result, err := p.extractor.Extract(runCtx, raw)
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewProcessingTimeoutError("", p.config.ProcessingTimeout, err)
		}
		return result, err
	})
	if err != nil {
		return nil, shared, err
	}
	return v.(*cascade.Result), shared, nil
}

// UpdateJobStatus updates job status in database
func (p *ReadingProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error {
	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Metadata: metadata,
	}

	if metadata != nil {
		if readingID, ok := metadata["readingId"].(string); ok {
			update.ReadingID = readingID
		}
		if strategy, ok := metadata["strategy"].(string); ok {
			update.Strategy = strategy
		}
		if attempts, ok := metadata["attempts"].(int); ok {
			update.Attempts = attempts
		}
		if processingTime, ok := metadata["processingTime"].(int64); ok {
			update.ProcessingTimeMs = processingTime
		}
		if errorMsg, ok := metadata["error"].(string); ok {
			update.ErrorCode = "PROCESSING_ERROR"
			if code, ok := metadata["errorCode"].(string); ok && code != "" {
				update.ErrorCode = code
			}
			update.ErrorMessage = errorMsg
		}
	}

	return p.store.UpdateJobStatus(ctx, update)
}

// loadFile loads the image from the inline buffer or its URL
func (p *ReadingProcessor) loadFile(ctx context.Context, req *ProcessRequest) ([]byte, error) {
	if len(req.FileBuffer) > 0 {
		return req.FileBuffer, nil
	}

	if req.FileURL != "" {
		data, err := p.downloadFileFromURL(ctx, req.JobID, req.FileURL)
		if err != nil {
			return nil, fmt.Errorf("failed to download image: %w", err)
		}
		return data, nil
	}

	return nil, apperrors.NewInvalidInputError("no image provided (buffer or URL)", nil).WithJobID(req.JobID)
}

func withJobID(err error, jobID string) error {
	var pe *apperrors.ProcessingError
	if errors.As(err, &pe) {
		return pe.WithJobID(jobID)
	}
	return err
}

func archiveFilename(req *ProcessRequest, mimeType string) string {
	if req.Filename != "" {
		return req.Filename
	}
	ext := ".jpg"
	if mimeType == "image/png" {
		ext = ".png"
	}
	return req.JobID + ext
}
