/**
 * Artifact Client for ScaleOCR Worker
 *
 * Archives the original scale photo alongside its reading so a disputed
 * value can be checked against the image it came from. Archiving is best
 * effort: the caller records the reading whether or not the upload succeeds.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/adverant/nexus/scaleocr-worker/internal/logging"
)

// SourceService identifies this worker to the artifact service
const SourceService = "scaleocr-worker"

// defaultTTLDays keeps archived images for a year
const defaultTTLDays = 365

// ArtifactClient uploads images to the artifact service
type ArtifactClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// ArchiveRequest describes an image to archive
type ArchiveRequest struct {
	Image    []byte
	Filename string
	MimeType string
	JobID    string
	TTLDays  int // 0 means defaultTTLDays
	Metadata map[string]interface{}
}

// Artifact is an archived image
type Artifact struct {
	ID             string `json:"id"`
	Filename       string `json:"filename"`
	FileSize       int64  `json:"file_size"`
	MimeType       string `json:"mime_type"`
	StorageBackend string `json:"storage_backend"`
	DownloadURL    string `json:"download_url"`
	CreatedAt      string `json:"created_at"`
	ExpiresAt      string `json:"expires_at,omitempty"`
}

type artifactResponse struct {
	Success  bool     `json:"success"`
	Artifact Artifact `json:"artifact"`
	Error    string   `json:"error,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// NewArtifactClient creates a new artifact client
func NewArtifactClient(baseURL string, logger *logging.Logger) *ArtifactClient {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ArtifactClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// HealthCheck verifies the artifact service is available
func (c *ArtifactClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("artifact service health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("artifact service health check returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// ArchiveImage uploads an image and returns the stored artifact
func (c *ArtifactClient) ArchiveImage(ctx context.Context, req *ArchiveRequest) (*Artifact, error) {
	if req == nil || len(req.Image) == 0 {
		return nil, fmt.Errorf("image is required: received empty buffer")
	}
	if req.Filename == "" {
		return nil, fmt.Errorf("filename is required")
	}
	if req.JobID == "" {
		return nil, fmt.Errorf("job ID is required: identifies the reading this image belongs to")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", req.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file part: %w", err)
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, fmt.Errorf("failed to write image to form: %w", err)
	}

	ttlDays := req.TTLDays
	if ttlDays <= 0 {
		ttlDays = defaultTTLDays
	}

	fields := map[string]string{
		"source_service": SourceService,
		"source_id":      req.JobID,
		"ttl_days":       strconv.Itoa(ttlDays),
		"mime_type":      req.MimeType,
	}
	if len(req.Metadata) > 0 {
		metadataJSON, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata to JSON: %w", err)
		}
		fields["metadata"] = string(metadataJSON)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write %s field: %w", k, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/files/upload", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to artifact storage failed after %v: %w", time.Since(start), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("artifact upload failed with HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result artifactResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse artifact upload response: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("artifact upload returned success=false: %s", result.Error)
	}
	if result.Artifact.ID == "" {
		return nil, fmt.Errorf("artifact upload succeeded but returned empty artifact ID")
	}

	c.logger.Info("Image archived",
		"artifact_id", result.Artifact.ID,
		"job_id", req.JobID,
		"size", len(req.Image),
		"storage", result.Artifact.StorageBackend,
		"duration", time.Since(start))

	return &result.Artifact, nil
}

// GetArtifact retrieves archived image metadata by ID
func (c *ArtifactClient) GetArtifact(ctx context.Context, artifactID string) (*Artifact, error) {
	if artifactID == "" {
		return nil, fmt.Errorf("artifact ID is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/files/"+artifactID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create get artifact request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("artifact not found: %s", artifactID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get artifact returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var result artifactResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse artifact response: %w", err)
	}

	return &result.Artifact, nil
}
