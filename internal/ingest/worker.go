package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mkravets/luminio/internal/ai"
	"github.com/mkravets/luminio/internal/database"
	"github.com/mkravets/luminio/internal/queue"
)

const dequeueTimeout = 5 * time.Second

// WorkerPool drains the ingestion queue with a fixed number of
// goroutines, each running items through the pipeline one at a time.
type WorkerPool struct {
	queue    *queue.Queue
	pipeline *Pipeline
	count    int
	logger   *zap.Logger

	wg sync.WaitGroup
}

func NewWorkerPool(q *queue.Queue, pipeline *Pipeline, count int, logger *zap.Logger) *WorkerPool {
	if count <= 0 {
		count = 1
	}
	return &WorkerPool{queue: q, pipeline: pipeline, count: count, logger: logger}
}

// Start launches the workers. They run until ctx is cancelled; Wait
// blocks until all of them have drained their current item.
func (w *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < w.count; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.run(ctx, id)
		}(i)
	}
}

func (w *WorkerPool) Wait() {
	w.wg.Wait()
}

func (w *WorkerPool) run(ctx context.Context, id int) {
	logger := w.logger.With(zap.Int("worker", id))
	logger.Info("ingest worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("ingest worker stopping")
			return
		default:
		}

		task, err := w.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("ingest worker stopping")
				return
			}
			logger.Error("dequeue failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue
		}

		if err := w.pipeline.Process(ctx, task.MediaID); err != nil {
			// Process already settled the item's status; quota errors
			// additionally pause the worker so the pool does not hammer
			// an exhausted provider in a tight loop.
			if errors.Is(err, ai.ErrQuotaExceeded) {
				logger.Warn("quota exhausted, pausing worker",
					zap.String("media_id", task.MediaID))
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Minute):
				}
			}
		}
	}
}

// ResumePending re-enqueues items stuck in pending, picking up work
// left behind by a crash or quota exhaustion. Safe to run repeatedly:
// the pipeline's claim makes duplicate tasks harmless.
func ResumePending(ctx context.Context, media *database.MediaRepository, q *queue.Queue, logger *zap.Logger) (int, error) {
	items, err := media.ListPending(ctx, 500)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, item := range items {
		if err := q.Enqueue(ctx, queue.IngestTask{MediaID: item.ID}); err != nil {
			return enqueued, err
		}
		enqueued++
	}
	if enqueued > 0 {
		logger.Info("re-enqueued pending media items", zap.Int("count", enqueued))
	}
	return enqueued, nil
}
