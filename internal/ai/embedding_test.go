package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	client, err := NewClient(Config{
		APIKey:         "test-key",
		BaseURL:        baseURL,
		EmbeddingModel: "test-model",
		Dimensions:     4,
		PollInterval:   10 * time.Millisecond,
		PollTimeout:    time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func writeTempMedia(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake media bytes"), 0644))
	return path
}

func TestEmbedText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.1, 0.2, 0.3, 0.4}},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	vec, err := client.EmbedText(context.Background(), "dog on beach")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, vec)
}

func TestEmbedTextQuotaNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.EmbedText(context.Background(), "dog on beach")
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, 1, calls)
}

func TestEmbedVideoTaskProtocol(t *testing.T) {
	var polls int
	mux := http.NewServeMux()
	mux.HandleFunc("/media/embeddings", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "test-model", r.FormValue("model"))
		assert.Equal(t, "video", r.FormValue("media_type"))
		json.NewEncoder(w).Encode(map[string]string{"task_id": "task-1"})
	})
	mux.HandleFunc("/media/embeddings/task-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		polls++
		if polls < 3 {
			json.NewEncoder(w).Encode(map[string]string{"status": "running"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "done",
			"segments": []map[string]any{
				{"start": 0.0, "end": 30.0, "embedding": []float32{1, 0, 0, 0}},
				{"start": 30.0, "end": 62.5, "embedding": []float32{0, 1, 0, 0}},
			},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL)

	segs, err := client.EmbedVideo(context.Background(), writeTempMedia(t))
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, 0.0, segs[0].Start)
	assert.Equal(t, 30.0, segs[0].End)
	assert.Equal(t, 62.5, segs[1].End)
	assert.GreaterOrEqual(t, polls, 3)
}

func TestEmbedVideoProviderErrorCodes(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{"quota_exceeded", ErrQuotaExceeded},
		{"duration_too_long", ErrInvalidInput},
		{"unsupported_format", ErrInvalidInput},
		{"timeout", ErrProviderTimeout},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/media/embeddings", func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					http.NotFound(w, r)
					return
				}
				json.NewEncoder(w).Encode(map[string]string{"task_id": "task-1"})
			})
			mux.HandleFunc("/media/embeddings/task-1", func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					http.NotFound(w, r)
					return
				}
				json.NewEncoder(w).Encode(map[string]any{
					"status": "error",
					"error":  map[string]string{"code": tc.code, "message": "boom"},
				})
			})
			server := httptest.NewServer(mux)
			defer server.Close()

			client := newTestClient(t, server.URL)
			_, err := client.EmbedVideo(context.Background(), writeTempMedia(t))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEmbedImageUsesFirstVector(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/media/embeddings", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "image", r.FormValue("media_type"))
		json.NewEncoder(w).Encode(map[string]string{"task_id": "task-1"})
	})
	mux.HandleFunc("/media/embeddings/task-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "done",
			"segments": []map[string]any{
				{"start": 0.0, "end": 0.0, "embedding": []float32{0.9, 0.1, 0, 0}},
			},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL)

	vec, err := client.EmbedImage(context.Background(), writeTempMedia(t))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.9, 0.1, 0, 0}, vec)
}

func TestEmbedVideoServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.EmbedVideo(context.Background(), writeTempMedia(t))
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.True(t, IsProviderUnavailable(err))
}

func TestEmbedVideoTransportFailureIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.EmbedVideo(context.Background(), writeTempMedia(t))
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestIsProviderUnavailable(t *testing.T) {
	assert.True(t, IsProviderUnavailable(ErrQuotaExceeded))
	assert.True(t, IsProviderUnavailable(ErrProviderTimeout))
	assert.True(t, IsProviderUnavailable(ErrProviderUnavailable))
	assert.False(t, IsProviderUnavailable(ErrInvalidInput))
	assert.False(t, IsProviderUnavailable(assert.AnError))
	assert.False(t, IsProviderUnavailable(nil))
}
