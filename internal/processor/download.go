package processor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/adverant/nexus/scaleocr-worker/internal/errors"
)

// DownloadPolicy controls URL download retries
type DownloadPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (d DownloadPolicy) withDefaults() DownloadPolicy {
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = 5
	}
	if d.InitialBackoff <= 0 {
		d.InitialBackoff = time.Second
	}
	if d.MaxBackoff <= 0 {
		d.MaxBackoff = 32 * time.Second
	}
	return d
}

func (d DownloadPolicy) backoff(attempt int) time.Duration {
	b := d.InitialBackoff << (attempt - 1)
	if b <= 0 || b > d.MaxBackoff {
		return d.MaxBackoff
	}
	return b
}

// downloadFileFromURL fetches an image with exponential backoff. Oversized
// bodies fail immediately since retrying cannot help.
func (p *ReadingProcessor) downloadFileFromURL(ctx context.Context, jobID string, fileURL string) ([]byte, error) {
	policy := p.config.Download.withDefaults()
	log := p.logger.With("job_id", jobID)

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		data, retry, err := p.fetch(ctx, fileURL)
		if err == nil {
			log.Debug("Download complete", "attempt", attempt, "bytes", len(data))
			return data, nil
		}
		if !retry {
			return nil, err
		}

		lastErr = err
		log.Warn("Download attempt failed", "attempt", attempt, "max_attempts", policy.MaxAttempts, "error", err)

		if attempt < policy.MaxAttempts {
			select {
			case <-time.After(policy.backoff(attempt)):
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
		}
	}

	return nil, fmt.Errorf("failed to download image after %d attempts: %w", policy.MaxAttempts, lastErr)
}

func (p *ReadingProcessor) fetch(ctx context.Context, fileURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, false, apperrors.NewInvalidInputError("invalid image URL", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 4xx other than throttling will not change on retry
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retry, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	limit := p.config.MaxFileSize
	if limit > 0 && resp.ContentLength > limit {
		return nil, false, apperrors.NewInvalidInputError(
			fmt.Sprintf("image exceeds maximum size: %d > %d bytes", resp.ContentLength, limit), nil)
	}
	if limit <= 0 {
		limit = 50 * 1024 * 1024
	}

	// Read one byte past the limit so oversize bodies without Content-Length are caught
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, true, err
	}
	if int64(len(data)) > limit {
		return nil, false, apperrors.NewInvalidInputError(
			fmt.Sprintf("image exceeds maximum size of %d bytes", limit), nil)
	}

	return data, false, nil
}
