package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// taskClient implements the provider's asynchronous media embedding
// protocol: submit a file, receive a task handle, poll until the task
// yields one vector per timed segment or an error.
type taskClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	interval   time.Duration
	timeout    time.Duration
	logger     *zap.Logger
}

func newTaskClient(cfg Config, logger *zap.Logger) *taskClient {
	return &taskClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.EmbeddingModel,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		interval:   cfg.PollInterval,
		timeout:    cfg.PollTimeout,
		logger:     logger,
	}
}

type submitResponse struct {
	TaskID string `json:"task_id"`
	Error  *providerError `json:"error,omitempty"`
}

type pollResponse struct {
	Status   string `json:"status"` // "pending", "running", "done", "error"
	Segments []struct {
		Start     float64   `json:"start"`
		End       float64   `json:"end"`
		Embedding []float32 `json:"embedding"`
	} `json:"segments"`
	Error *providerError `json:"error,omitempty"`
}

type providerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *taskClient) embedMedia(ctx context.Context, path, mediaType string) ([]TimedVector, error) {
	taskID, err := c.submit(ctx, path, mediaType)
	if err != nil {
		return nil, err
	}
	return c.poll(ctx, taskID)
}

func (c *taskClient) submit(ctx context.Context, path, mediaType string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open media file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("read media file: %w", err)
	}
	mw.WriteField("model", c.model)
	mw.WriteField("media_type", mediaType)
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/media/embeddings", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return "", err
	}

	var sub submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if sub.Error != nil {
		return "", classifyProviderError(sub.Error)
	}
	if sub.TaskID == "" {
		return "", fmt.Errorf("provider returned no task id")
	}
	return sub.TaskID, nil
}

func (c *taskClient) poll(ctx context.Context, taskID string) ([]TimedVector, error) {
	deadline := time.Now().Add(c.timeout)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		result, done, err := c.pollOnce(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if done {
			return result, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: task %s still running after %s", ErrProviderTimeout, taskID, c.timeout)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrProviderTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *taskClient) pollOnce(ctx context.Context, taskID string) ([]TimedVector, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/media/embeddings/"+taskID, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, false, err
	}

	var pr pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, false, fmt.Errorf("decode poll response: %w", err)
	}

	switch pr.Status {
	case "done":
		segments := make([]TimedVector, 0, len(pr.Segments))
		for _, s := range pr.Segments {
			segments = append(segments, TimedVector{Start: s.Start, End: s.End, Vector: s.Embedding})
		}
		return segments, true, nil
	case "error":
		return nil, false, classifyProviderError(pr.Error)
	default:
		return nil, false, nil
	}
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrQuotaExceeded
	case code >= 400 && code < 500:
		return fmt.Errorf("%w: provider status %d", ErrInvalidInput, code)
	case code >= 500:
		return fmt.Errorf("%w: provider status %d", ErrProviderUnavailable, code)
	}
	return nil
}

func classifyProviderError(pe *providerError) error {
	if pe == nil {
		return fmt.Errorf("provider reported an unspecified error")
	}
	switch pe.Code {
	case "quota_exceeded":
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, pe.Message)
	case "invalid_input", "duration_too_long", "unsupported_format":
		return fmt.Errorf("%w: %s (%s)", ErrInvalidInput, pe.Message, pe.Code)
	case "timeout":
		return fmt.Errorf("%w: %s", ErrProviderTimeout, pe.Message)
	default:
		return fmt.Errorf("provider error %s: %s", pe.Code, pe.Message)
	}
}

func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
