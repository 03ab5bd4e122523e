package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkravets/luminio/internal/database"
	"github.com/mkravets/luminio/internal/models"
)

type testEnv struct {
	db       *database.DB
	media    *database.MediaRepository
	segments *database.SegmentRepository
	cache    *database.QueryCacheRepository
	logger   *zap.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.NewDB(database.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
		Dimensions: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &testEnv{
		db:       db,
		media:    database.NewMediaRepository(db),
		segments: database.NewSegmentRepository(db),
		cache:    database.NewQueryCacheRepository(db),
		logger:   zap.NewNop(),
	}
}

func (env *testEnv) seedPhoto(t *testing.T, owner, filename string, tags []string, vec []float32, createdAt time.Time) *models.MediaItem {
	t.Helper()

	item := models.NewMediaItem(owner, "", filename, "", models.KindPhoto, "image/jpeg", 100)
	item.Tags = tags
	item.CreatedAt = createdAt
	require.NoError(t, env.media.Insert(context.Background(), item))

	if vec != nil {
		require.NoError(t, env.segments.UpsertPhotoVector(context.Background(), &models.PhotoVector{
			MediaID:   item.ID,
			Embedding: vec,
			Model:     "test-model",
		}))
	}
	return item
}

func (env *testEnv) seedVideo(t *testing.T, owner, filename, title string, tags []string, duration float64) *models.MediaItem {
	t.Helper()

	item := models.NewMediaItem(owner, "", filename, title, models.KindVideo, "video/mp4", 1000)
	item.Tags = tags
	require.NoError(t, env.media.Insert(context.Background(), item))
	if duration > 0 {
		require.NoError(t, env.media.SetDuration(context.Background(), item.ID, duration))
		item.Duration = duration
	}
	return item
}

func (env *testEnv) seedSegment(t *testing.T, mediaID string, index int, start, end float64, vec []float32) {
	t.Helper()

	require.NoError(t, env.segments.UpsertSegment(context.Background(), &models.VideoSegment{
		MediaID:      mediaID,
		SegmentIndex: index,
		StartTime:    start,
		EndTime:      end,
		Embedding:    vec,
		Model:        "test-model",
	}))
}

// fakeEmbedder returns canned vectors keyed by text, or a fixed error.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float32{0, 0, 0, 1}, nil
}

func (f *fakeEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0, 0}, nil
}

func (f *fakeEmbedder) Model() string { return "test-model" }
