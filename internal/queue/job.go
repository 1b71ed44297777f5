package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/adverant/nexus/scaleocr-worker/internal/errors"
	"github.com/adverant/nexus/scaleocr-worker/internal/processor"
)

// Job statuses shared by both queue backends
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// JobPayload is the reading request enqueued by the API
type JobPayload struct {
	JobID      string                 `json:"jobId"`
	UserID     string                 `json:"userId"`
	Filename   string                 `json:"filename"`
	MimeType   string                 `json:"mimeType,omitempty"`
	FileSize   int64                  `json:"fileSize,omitempty"`
	FileURL    string                 `json:"fileUrl,omitempty"`
	FileBuffer []byte                 `json:"-"` // set by UnmarshalJSON
	Unit       string                 `json:"uM,omitempty"`
	Category   string                 `json:"category,omitempty"`
	Status     string                 `json:"status,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// MarshalJSON encodes the image as base64
func (p JobPayload) MarshalJSON() ([]byte, error) {
	type Alias JobPayload
	return json.Marshal(&struct {
		FileBuffer string `json:"fileBuffer,omitempty"`
		Alias
	}{
		FileBuffer: base64.StdEncoding.EncodeToString(p.FileBuffer),
		Alias:      Alias(p),
	})
}

// UnmarshalJSON accepts the image either as a base64 string or as a
// Node.js Buffer object ({"type":"Buffer","data":[...]})
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type Alias JobPayload
	aux := &struct {
		FileBuffer interface{} `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	switch v := aux.FileBuffer.(type) {
	case nil:
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
		}
		p.FileBuffer = decoded

	case map[string]interface{}:
		if t, _ := v["type"].(string); t != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		arr, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		p.FileBuffer = make([]byte, len(arr))
		for i, val := range arr {
			b, ok := val.(float64)
			if !ok || b < 0 || b > 255 {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			p.FileBuffer[i] = byte(b)
		}

	default:
		return fmt.Errorf("fileBuffer must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

func (p *JobPayload) toRequest() *processor.ProcessRequest {
	return &processor.ProcessRequest{
		JobID:      p.JobID,
		UserID:     p.UserID,
		Filename:   p.Filename,
		MimeType:   p.MimeType,
		FileSize:   p.FileSize,
		FileURL:    p.FileURL,
		FileBuffer: p.FileBuffer,
		Unit:       p.Unit,
		Category:   p.Category,
		Status:     p.Status,
		Metadata:   p.Metadata,
	}
}

func (p *JobPayload) intakeMetadata() map[string]interface{} {
	return map[string]interface{}{
		"filename": p.Filename,
		"mimeType": p.MimeType,
		"fileSize": p.FileSize,
		"userId":   p.UserID,
	}
}

// retryable reports whether running the job again could change the outcome.
// Bad input and unreadable images fail the same way every time.
func retryable(err error) bool {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrorInvalidInput, apperrors.ErrorNoNumberDetected:
		return false
	}
	return true
}

func completionMetadata(result *processor.ProcessResult, duration time.Duration) map[string]interface{} {
	return map[string]interface{}{
		"readingId":      result.ReadingID,
		"value":          result.Value,
		"strategy":       result.Strategy,
		"attempts":       result.Attempts,
		"cached":         result.Cached,
		"artifactId":     result.ArtifactID,
		"processingTime": duration.Milliseconds(),
	}
}

func failureMetadata(err error, attempts int, duration time.Duration) map[string]interface{} {
	m := map[string]interface{}{
		"error":          err.Error(),
		"attempts":       attempts,
		"processingTime": duration.Milliseconds(),
	}
	if code := apperrors.CodeOf(err); code != "" {
		m["errorCode"] = string(code)
	}
	return m
}
