package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/judgement-ingest/internal/errors"
	"github.com/savaki/judgement-ingest/internal/models"
)

const (
	// HeaderRequestID carries the per-record request id to the DS API
	HeaderRequestID = "X-Request-Id"
	// HeaderAPIKey carries the DS API key when one is configured
	HeaderAPIKey = "x-api-key"
)

// DSAPIClient starts OCR jobs on the DS API
type DSAPIClient struct {
	client  HTTPClient
	url     string
	apiKey  string
	timeout time.Duration
}

// NewDSAPIClient creates a client posting jobs to url.
// apiKey may be empty.
func NewDSAPIClient(client HTTPClient, url, apiKey string, timeout time.Duration) *DSAPIClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &DSAPIClient{
		client:  client,
		url:     url,
		apiKey:  apiKey,
		timeout: timeout,
	}
}

// SubmitJob posts the job request and returns the job id from the response
func (c *DSAPIClient) SubmitJob(ctx context.Context, requestID string, job models.JobRequest) (string, error) {
	logger := zerolog.Ctx(ctx)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if requestID != "" {
		req.Header.Set(HeaderRequestID, requestID)
	}
	if c.apiKey != "" {
		req.Header.Set(HeaderAPIKey, c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call DS API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: DS API returned %d: %s", errors.ErrUnexpectedStatus, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var jobResponse models.JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&jobResponse); err != nil {
		return "", fmt.Errorf("failed to decode DS API response: %w", err)
	}

	jobID := jobResponse.JobID.String()
	if jobID == "" {
		return "", errors.ErrMissingJobID
	}

	logger.Debug().
		Str("job_id", jobID).
		Str("input_file_path", job.InputFilePath).
		Msg("DS API accepted job")

	return jobID, nil
}
