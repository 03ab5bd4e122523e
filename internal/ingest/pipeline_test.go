package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkravets/luminio/internal/ai"
	"github.com/mkravets/luminio/internal/database"
	"github.com/mkravets/luminio/internal/models"
	"github.com/mkravets/luminio/internal/storage"
)

type fakeMediaEmbedder struct {
	imageVec []float32
	segments []ai.TimedVector
	err      error
}

func (f *fakeMediaEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.imageVec, nil
}

func (f *fakeMediaEmbedder) EmbedVideo(ctx context.Context, path string) ([]ai.TimedVector, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.segments, nil
}

func (f *fakeMediaEmbedder) Model() string { return "test-model" }

type pipelineEnv struct {
	db       *database.DB
	media    *database.MediaRepository
	segments *database.SegmentRepository
	store    *storage.LocalStorage
}

func newPipelineEnv(t *testing.T) *pipelineEnv {
	t.Helper()

	db, err := database.NewDB(database.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
		Dimensions: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	return &pipelineEnv{
		db:       db,
		media:    database.NewMediaRepository(db),
		segments: database.NewSegmentRepository(db),
		store:    store,
	}
}

func (env *pipelineEnv) newPipeline(embedder MediaEmbedder) *Pipeline {
	return NewPipeline(env.media, env.segments, env.store, nil, nil, embedder,
		PipelineConfig{MaxChunkSeconds: 6600, OverlapSeconds: 5, ChunkWorkers: 2},
		zap.NewNop())
}

func (env *pipelineEnv) seedPhoto(t *testing.T, owner string) *models.MediaItem {
	t.Helper()

	locator, err := env.store.Save(strings.NewReader("fake jpeg"), storage.FileInfo{Filename: "photo.jpg"})
	require.NoError(t, err)

	item := models.NewMediaItem(owner, "", "photo.jpg", "", models.KindPhoto, "image/jpeg", 9)
	item.StoragePath = locator
	require.NoError(t, env.media.Insert(context.Background(), item))
	return item
}

func TestProcessPhotoHappyPath(t *testing.T) {
	env := newPipelineEnv(t)
	pipeline := env.newPipeline(&fakeMediaEmbedder{imageVec: []float32{0.1, 0.2, 0.3, 0.4}})

	item := env.seedPhoto(t, "alice")
	require.NoError(t, pipeline.Process(context.Background(), item.ID))

	got, err := env.media.GetByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, got.IndexStatus)
	assert.Empty(t, got.IndexError)

	vectors, err := env.segments.ListPhotoVectors(context.Background(), "", "")
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, vectors[0].Embedding)
}

func TestProcessSkipsAlreadyClaimedItem(t *testing.T) {
	env := newPipelineEnv(t)
	pipeline := env.newPipeline(&fakeMediaEmbedder{imageVec: []float32{1, 0, 0, 0}})

	item := env.seedPhoto(t, "alice")
	claimed, err := env.media.ClaimForIndexing(context.Background(), item.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	// A duplicate task delivery does nothing.
	require.NoError(t, pipeline.Process(context.Background(), item.ID))

	vectors, err := env.segments.ListPhotoVectors(context.Background(), "", "")
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestProcessQuotaReturnsItemToPending(t *testing.T) {
	env := newPipelineEnv(t)
	pipeline := env.newPipeline(&fakeMediaEmbedder{err: ai.ErrQuotaExceeded})

	item := env.seedPhoto(t, "alice")
	err := pipeline.Process(context.Background(), item.ID)
	assert.ErrorIs(t, err, ai.ErrQuotaExceeded)

	got, err := env.media.GetByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.IndexStatus)
	assert.Empty(t, got.IndexError)
}

func TestProcessHardFailureMarksFailed(t *testing.T) {
	env := newPipelineEnv(t)
	pipeline := env.newPipeline(&fakeMediaEmbedder{err: ai.ErrInvalidInput})

	item := env.seedPhoto(t, "alice")
	err := pipeline.Process(context.Background(), item.ID)
	assert.ErrorIs(t, err, ai.ErrInvalidInput)

	got, err := env.media.GetByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.IndexStatus)
	assert.NotEmpty(t, got.IndexError)
}

func (env *pipelineEnv) seedVideo(t *testing.T, owner string) *models.MediaItem {
	t.Helper()

	locator, err := env.store.Save(strings.NewReader("fake mp4"), storage.FileInfo{Filename: "long.mp4"})
	require.NoError(t, err)

	item := models.NewMediaItem(owner, "", "long.mp4", "", models.KindVideo, "video/mp4", 8)
	item.StoragePath = locator
	require.NoError(t, env.media.Insert(context.Background(), item))
	return item
}

// writeChunk mimics a completed extraction: an allocated chunk file on
// disk plus its row.
func (env *pipelineEnv) writeChunk(t *testing.T, item *models.MediaItem, index, total int, start, end float64) *models.VideoChunk {
	t.Helper()

	locator, dstPath, err := env.store.AllocateChunk(item.StoragePath, index)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dstPath, []byte("chunk bytes"), 0644))

	chunk := models.NewVideoChunk(item.ID, index, total, start, end)
	chunk.StoragePath = locator
	require.NoError(t, env.segments.InsertChunk(context.Background(), chunk))
	return chunk
}

func TestVideoReindexReplacesChunksAndSegments(t *testing.T) {
	env := newPipelineEnv(t)
	pipeline := env.newPipeline(&fakeMediaEmbedder{})

	item := env.seedVideo(t, "alice")
	timed := []ai.TimedVector{
		{Start: 0, End: 30, Vector: []float32{1, 0, 0, 0}},
	}

	// Two indexing passes over the same video, as after quota
	// exhaustion or a forced reindex. Each pass mints fresh chunk ids,
	// so without the upfront cleanup the rows would accumulate.
	for pass := 0; pass < 2; pass++ {
		require.NoError(t, pipeline.removeDerived(context.Background(), item.ID))
		chunk := env.writeChunk(t, item, 0, 2, 0, 5435)
		require.NoError(t, pipeline.persistSegments(context.Background(), item.ID, chunk.ID, chunk.StartOffset, timed))
	}

	chunks, err := env.segments.ListChunks(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)

	segs, err := env.segments.ListSegmentVectors(context.Background(), "", "")
	require.NoError(t, err)
	assert.Len(t, segs, 1)
}

func TestEmbedFailureRemovesChunkArtifacts(t *testing.T) {
	env := newPipelineEnv(t)
	pipeline := env.newPipeline(&fakeMediaEmbedder{err: ai.ErrInvalidInput})

	item := env.seedVideo(t, "alice")
	chunk := env.writeChunk(t, item, 0, 1, 0, 5400)

	err := pipeline.embedChunks(context.Background(), item, []models.VideoChunk{*chunk})
	assert.ErrorIs(t, err, ai.ErrInvalidInput)

	chunks, err := env.segments.ListChunks(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	_, err = env.store.Open(chunk.StoragePath)
	assert.Error(t, err)
}

func TestPersistSegmentsTranslatesToOriginalTimeline(t *testing.T) {
	env := newPipelineEnv(t)
	pipeline := env.newPipeline(&fakeMediaEmbedder{})

	item := models.NewMediaItem("alice", "", "long.mp4", "", models.KindVideo, "video/mp4", 100)
	require.NoError(t, env.media.Insert(context.Background(), item))

	chunk := models.NewVideoChunk(item.ID, 1, 2, 5425, 10860)
	require.NoError(t, env.segments.InsertChunk(context.Background(), chunk))

	// Provider times are relative to the chunk file; out of order on
	// purpose.
	timed := []ai.TimedVector{
		{Start: 30, End: 60, Vector: []float32{0, 1, 0, 0}},
		{Start: 0, End: 30, Vector: []float32{1, 0, 0, 0}},
	}
	require.NoError(t, pipeline.persistSegments(context.Background(), item.ID, chunk.ID, chunk.StartOffset, timed))

	candidates, err := env.segments.ListSegmentVectors(context.Background(), "", "")
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	starts := []float64{candidates[0].StartTime, candidates[1].StartTime}
	assert.Contains(t, starts, 5425.0)
	assert.Contains(t, starts, 5455.0)
	for _, c := range candidates {
		assert.GreaterOrEqual(t, c.StartTime, chunk.StartOffset)
		assert.LessOrEqual(t, c.EndTime, chunk.EndOffset)
	}
}

func TestPersistSegmentsRerunOverwrites(t *testing.T) {
	env := newPipelineEnv(t)
	pipeline := env.newPipeline(&fakeMediaEmbedder{})

	item := models.NewMediaItem("alice", "", "clip.mp4", "", models.KindVideo, "video/mp4", 100)
	require.NoError(t, env.media.Insert(context.Background(), item))

	timed := []ai.TimedVector{
		{Start: 0, End: 30, Vector: []float32{1, 0, 0, 0}},
	}
	require.NoError(t, pipeline.persistSegments(context.Background(), item.ID, "", 0, timed))
	require.NoError(t, pipeline.persistSegments(context.Background(), item.ID, "", 0, timed))

	count, err := env.segments.CountSegments(context.Background(), item.ID, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
