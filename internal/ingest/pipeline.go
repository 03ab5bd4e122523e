package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mkravets/luminio/internal/ai"
	"github.com/mkravets/luminio/internal/database"
	"github.com/mkravets/luminio/internal/models"
	"github.com/mkravets/luminio/internal/storage"
	"github.com/mkravets/luminio/internal/video"
)

// Pipeline turns an uploaded media item into searchable vectors: photos
// get one embedding, videos are probed, split into provider-sized
// chunks when too long, embedded chunk by chunk and persisted as timed
// segments on the original timeline.
type Pipeline struct {
	media    *database.MediaRepository
	segments *database.SegmentRepository
	store    storage.Storage
	prober   *video.Prober
	cutter   *video.Extractor
	embedder MediaEmbedder

	maxChunkSeconds float64
	overlapSeconds  float64
	chunkWorkers    int
	logger          *zap.Logger
}

// MediaEmbedder is the slice of the provider client the pipeline needs.
type MediaEmbedder interface {
	EmbedImage(ctx context.Context, path string) ([]float32, error)
	EmbedVideo(ctx context.Context, path string) ([]ai.TimedVector, error)
	Model() string
}

type PipelineConfig struct {
	MaxChunkSeconds float64
	OverlapSeconds  float64
	ChunkWorkers    int
}

func NewPipeline(
	media *database.MediaRepository,
	segments *database.SegmentRepository,
	store storage.Storage,
	prober *video.Prober,
	cutter *video.Extractor,
	embedder MediaEmbedder,
	cfg PipelineConfig,
	logger *zap.Logger,
) *Pipeline {
	workers := cfg.ChunkWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{
		media:           media,
		segments:        segments,
		store:           store,
		prober:          prober,
		cutter:          cutter,
		embedder:        embedder,
		maxChunkSeconds: cfg.MaxChunkSeconds,
		overlapSeconds:  cfg.OverlapSeconds,
		chunkWorkers:    workers,
		logger:          logger,
	}
}

// Process indexes one media item end to end. The pending->indexing
// claim makes it safe to deliver the same task twice: the second
// delivery sees the claim fail and returns without work.
func (p *Pipeline) Process(ctx context.Context, mediaID string) error {
	claimed, err := p.media.ClaimForIndexing(ctx, mediaID)
	if err != nil {
		return fmt.Errorf("claim %s: %w", mediaID, err)
	}
	if !claimed {
		p.logger.Debug("media item not claimable, skipping",
			zap.String("media_id", mediaID))
		return nil
	}

	item, err := p.media.GetByID(ctx, mediaID)
	if err != nil {
		return fmt.Errorf("load %s: %w", mediaID, err)
	}

	switch item.Kind {
	case models.KindPhoto:
		err = p.processPhoto(ctx, item)
	case models.KindVideo:
		err = p.processVideo(ctx, item)
	default:
		err = fmt.Errorf("%w: unknown media kind %q", ai.ErrInvalidInput, item.Kind)
	}

	return p.settle(ctx, item, err)
}

// settle maps a processing outcome onto the item's index status.
// Quota exhaustion is the one recoverable failure: the item goes back
// to pending so a later resume pass retries it.
func (p *Pipeline) settle(ctx context.Context, item *models.MediaItem, procErr error) error {
	if procErr == nil {
		if err := p.media.UpdateStatus(ctx, item.ID, models.StatusReady, ""); err != nil {
			return fmt.Errorf("mark ready: %w", err)
		}
		p.logger.Info("media item indexed",
			zap.String("media_id", item.ID),
			zap.String("kind", string(item.Kind)))
		return nil
	}

	if errors.Is(procErr, ai.ErrQuotaExceeded) {
		p.logger.Warn("provider quota exhausted, returning item to pending",
			zap.String("media_id", item.ID))
		if err := p.media.UpdateStatus(ctx, item.ID, models.StatusPending, ""); err != nil {
			return fmt.Errorf("return to pending: %w", err)
		}
		return procErr
	}

	p.logger.Error("indexing failed",
		zap.String("media_id", item.ID),
		zap.Error(procErr))
	if err := p.media.UpdateStatus(ctx, item.ID, models.StatusFailed, procErr.Error()); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return procErr
}

func (p *Pipeline) processPhoto(ctx context.Context, item *models.MediaItem) error {
	path, err := p.store.LocalPath(item.StoragePath)
	if err != nil {
		return fmt.Errorf("resolve blob: %w", err)
	}

	vec, err := p.embedder.EmbedImage(ctx, path)
	if err != nil {
		return fmt.Errorf("embed photo: %w", err)
	}

	return p.segments.UpsertPhotoVector(ctx, &models.PhotoVector{
		MediaID:   item.ID,
		Embedding: vec,
		Model:     p.embedder.Model(),
	})
}

func (p *Pipeline) processVideo(ctx context.Context, item *models.MediaItem) error {
	srcPath, err := p.store.LocalPath(item.StoragePath)
	if err != nil {
		return fmt.Errorf("resolve blob: %w", err)
	}

	probe, err := p.prober.Probe(ctx, srcPath)
	if err != nil {
		return err
	}
	if !probe.HasVideoStream() {
		return fmt.Errorf("%w: no video stream in %q", ai.ErrInvalidInput, item.Filename)
	}
	if err := p.media.SetDuration(ctx, item.ID, probe.Duration); err != nil {
		return fmt.Errorf("record duration: %w", err)
	}
	item.Duration = probe.Duration

	// A previous pass (quota exhaustion, forced reindex) may have left
	// chunks and segments behind under different chunk ids. Clear them
	// so this pass replaces rows instead of accumulating duplicates.
	if err := p.removeDerived(ctx, item.ID); err != nil {
		return err
	}

	plan := video.PlanChunks(probe.Duration, p.maxChunkSeconds, p.overlapSeconds)
	if len(plan) == 1 {
		// Fits in one provider call; no physical cutting, segments
		// persist with an empty chunk id and times need no translation.
		return p.embedWholeVideo(ctx, item, srcPath)
	}

	p.logger.Info("video exceeds provider limit, chunking",
		zap.String("media_id", item.ID),
		zap.Float64("duration", probe.Duration),
		zap.Int("chunks", len(plan)))

	chunks, err := p.extractChunks(ctx, item, srcPath, plan)
	if err != nil {
		p.cleanupChunks(ctx, item.ID, chunks)
		// Cutting failures are often transient (load spikes, slow
		// disks); one clean retry before giving up on the item.
		if !errors.Is(err, video.ErrExtractionTimeout) && !errors.Is(err, video.ErrEncodeFailed) {
			return err
		}
		p.logger.Warn("chunk extraction failed, retrying once",
			zap.String("media_id", item.ID),
			zap.Error(err))
		chunks, err = p.extractChunks(ctx, item, srcPath, plan)
		if err != nil {
			p.cleanupChunks(ctx, item.ID, chunks)
			return err
		}
	}

	if err := p.embedChunks(ctx, item, chunks); err != nil {
		return err
	}
	return nil
}

func (p *Pipeline) embedWholeVideo(ctx context.Context, item *models.MediaItem, path string) error {
	timed, err := p.embedder.EmbedVideo(ctx, path)
	if err != nil {
		return fmt.Errorf("embed video: %w", err)
	}
	if len(timed) == 0 {
		return errors.New("provider returned no segments for video")
	}
	return p.persistSegments(ctx, item.ID, "", 0, timed)
}

// extractChunks cuts every planned range into its own file, records the
// chunk rows and returns them in index order. Cutting is CPU and IO
// bound, so ranges run concurrently under a worker limit.
func (p *Pipeline) extractChunks(ctx context.Context, item *models.MediaItem, srcPath string, plan []video.ChunkRange) ([]models.VideoChunk, error) {
	chunks := make([]models.VideoChunk, len(plan))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.chunkWorkers)
	var mu sync.Mutex

	for i, rng := range plan {
		i, rng := i, rng
		g.Go(func() error {
			locator, dstPath, err := p.store.AllocateChunk(item.StoragePath, i)
			if err != nil {
				return fmt.Errorf("allocate chunk %d: %w", i, err)
			}
			if err := p.cutter.Extract(gctx, srcPath, rng.Start, rng.End, dstPath); err != nil {
				return fmt.Errorf("extract chunk %d: %w", i, err)
			}

			chunk := models.NewVideoChunk(item.ID, i, len(plan), rng.Start, rng.End)
			chunk.StoragePath = locator
			if err := p.segments.InsertChunk(gctx, chunk); err != nil {
				return fmt.Errorf("record chunk %d: %w", i, err)
			}

			mu.Lock()
			chunks[i] = *chunk
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return chunks, err
	}
	return chunks, nil
}

// embedChunks submits each chunk file to the provider and persists the
// returned segments, translated from chunk-relative time onto the
// original video's timeline by the chunk's start offset.
func (p *Pipeline) embedChunks(ctx context.Context, item *models.MediaItem, chunks []models.VideoChunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.chunkWorkers)

	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			path, err := p.store.LocalPath(chunk.StoragePath)
			if err != nil {
				return fmt.Errorf("resolve chunk %d: %w", chunk.ChunkIndex, err)
			}
			timed, err := p.embedder.EmbedVideo(gctx, path)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", chunk.ChunkIndex, err)
			}
			return p.persistSegments(gctx, item.ID, chunk.ID, chunk.StartOffset, timed)
		})
	}
	if err := g.Wait(); err != nil {
		// An item that did not finish must not leave chunk files or
		// half-written vectors behind. The next pass re-extracts from
		// the original.
		p.cleanupChunks(ctx, item.ID, chunks)
		if derr := p.segments.DeleteSegments(ctx, item.ID); derr != nil {
			p.logger.Warn("failed to remove segment rows",
				zap.String("media_id", item.ID),
				zap.Error(derr))
		}
		return err
	}
	return nil
}

// persistSegments upserts the provider's timed vectors, shifted by
// offset seconds. Segment indexes follow ascending start time within
// the chunk so a rerun overwrites the same rows.
func (p *Pipeline) persistSegments(ctx context.Context, mediaID, chunkID string, offset float64, timed []ai.TimedVector) error {
	sort.Slice(timed, func(i, j int) bool { return timed[i].Start < timed[j].Start })

	for i, tv := range timed {
		seg := &models.VideoSegment{
			MediaID:      mediaID,
			ChunkID:      chunkID,
			SegmentIndex: i,
			StartTime:    offset + tv.Start,
			EndTime:      offset + tv.End,
			Embedding:    tv.Vector,
			Model:        p.embedder.Model(),
		}
		if err := p.segments.UpsertSegment(ctx, seg); err != nil {
			return fmt.Errorf("persist segment %d: %w", i, err)
		}
	}
	return nil
}

// removeDerived deletes everything a prior indexing pass derived from
// the video: chunk files, chunk rows and segment rows.
func (p *Pipeline) removeDerived(ctx context.Context, mediaID string) error {
	prior, err := p.segments.ListChunks(ctx, mediaID)
	if err != nil {
		return fmt.Errorf("list prior chunks: %w", err)
	}
	for _, c := range prior {
		if c.StoragePath == "" {
			continue
		}
		if err := p.store.Delete(c.StoragePath); err != nil {
			p.logger.Warn("failed to remove stale chunk file",
				zap.String("media_id", mediaID),
				zap.Int("chunk_index", c.ChunkIndex),
				zap.Error(err))
		}
	}
	if err := p.segments.DeleteChunks(ctx, mediaID); err != nil {
		return fmt.Errorf("delete prior chunks: %w", err)
	}
	if err := p.segments.DeleteSegments(ctx, mediaID); err != nil {
		return fmt.Errorf("delete prior segments: %w", err)
	}
	return nil
}

// cleanupChunks removes any chunk files and rows written before a
// failure so a retry starts from a clean slate.
func (p *Pipeline) cleanupChunks(ctx context.Context, mediaID string, chunks []models.VideoChunk) {
	for _, c := range chunks {
		if c.StoragePath == "" {
			continue
		}
		if err := p.store.Delete(c.StoragePath); err != nil {
			p.logger.Warn("failed to remove chunk file",
				zap.String("media_id", mediaID),
				zap.Int("chunk_index", c.ChunkIndex),
				zap.Error(err))
		}
	}
	if err := p.segments.DeleteChunks(ctx, mediaID); err != nil {
		p.logger.Warn("failed to remove chunk rows",
			zap.String("media_id", mediaID),
			zap.Error(err))
	}
}
