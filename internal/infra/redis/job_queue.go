package redis

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"

	"companion-pipeline/internal/domain"
	"companion-pipeline/internal/domain/ports/repository"
)

var _ repository.JobQueue = (*JobQueue)(nil)

// JobQueue is a FIFO Redis list of pending job ids. LPUSH/RPOP keeps arrival
// order, and RPOP's atomicity guarantees each id is handed to exactly one
// worker.
type JobQueue struct {
	client RedisClient
	key    string
}

func NewJobQueue(client RedisClient, key string) *JobQueue {
	return &JobQueue{client: client, key: key}
}

func (q *JobQueue) Enqueue(ctx context.Context, jobID string) error {
	if jobID == "" {
		return domain.ErrInvalidArgument
	}
	return q.client.LPush(ctx, q.key, jobID)
}

func (q *JobQueue) Dequeue(ctx context.Context) (string, error) {
	id, err := q.client.RPop(ctx, q.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrQueueEmpty
		}
		return "", err
	}
	return id, nil
}
