package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IngestTask asks a worker to index one media item.
type IngestTask struct {
	MediaID string    `json:"media_id"`
	Created time.Time `json:"created"`
}

// Queue is a Redis-backed FIFO of ingestion tasks. Ingestion is the
// long-running path and must stay off request handling, so uploads only
// enqueue and return.
type Queue struct {
	client *redis.Client
	name   string
}

type Config struct {
	Addr     string
	Password string
	DB       int
	Name     string
}

func New(cfg Config) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.Addr, err)
	}

	return &Queue{client: client, name: cfg.Name}, nil
}

func (q *Queue) Enqueue(ctx context.Context, task IngestTask) error {
	if task.Created.IsZero() {
		task.Created = time.Now().UTC()
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next task. A nil task with nil
// error means the timeout elapsed with nothing to do.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*IngestTask, error) {
	result, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue failed: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected BLPOP result shape")
	}

	var task IngestTask
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &task, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}
