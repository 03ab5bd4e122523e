package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const maxAttempts = 3

// Embedder generates fixed-length vectors for query text and photos.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, path string) ([]float32, error)
	Model() string
}

// Config carries provider connection settings.
type Config struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	Dimensions     int
	PollInterval   time.Duration
	PollTimeout    time.Duration
}

// Client talks to an OpenAI-compatible embedding endpoint. Text and
// photo embeddings are synchronous; video chunks go through the async
// task API in video_client.go.
type Client struct {
	oa     *openai.Client
	tasks  *taskClient
	cfg    Config
	logger *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("embedding API key is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 15 * time.Minute
	}
	return &Client{
		oa:     openai.NewClientWithConfig(clientConfig),
		tasks:  newTaskClient(cfg, logger),
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (c *Client) Model() string {
	return c.cfg.EmbeddingModel
}

// EmbedText returns the embedding vector for a text query.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := c.withRetry(ctx, "embed text", func() error {
		req := openai.EmbeddingRequest{
			Input:      []string{text},
			Model:      openai.EmbeddingModel(c.cfg.EmbeddingModel),
			Dimensions: c.cfg.Dimensions,
		}
		resp, err := c.oa.CreateEmbeddings(ctx, req)
		if err != nil {
			return classifyOpenAIError(err)
		}
		if len(resp.Data) == 0 {
			return errors.New("empty embedding response")
		}
		vec = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedImage returns the single embedding vector for a photo file.
func (c *Client) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	segs, err := c.tasks.embedMedia(ctx, path, "image")
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, errors.New("provider returned no vector for image")
	}
	return segs[0].Vector, nil
}

// TimedVector is one provider-produced sub-segment of a video chunk.
// Start and End are relative to the submitted file, not the original
// video; the caller translates them before persisting.
type TimedVector struct {
	Start  float64
	End    float64
	Vector []float32
}

// EmbedVideo submits a video file and waits for its timed segment
// vectors. The provider decides how many sub-segments a file becomes.
func (c *Client) EmbedVideo(ctx context.Context, path string) ([]TimedVector, error) {
	return c.tasks.embedMedia(ctx, path, "video")
}

// withRetry retries transient failures with exponential backoff. Quota
// and invalid-input errors are surfaced immediately so the caller can
// apply its own policy.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrQuotaExceeded) || errors.Is(lastErr, ErrInvalidInput) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		c.logger.Warn("provider call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrProviderTimeout, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		case apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500:
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
	}
	// 5xx responses and transport failures land here. They mean the
	// provider cannot answer, not that the input is bad, so they get the
	// same query-time fallback treatment as quota and timeout.
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
