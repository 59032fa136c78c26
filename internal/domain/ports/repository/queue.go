package repository

import "context"

// JobQueue is the FIFO list of pending job ids, decoupled from the job store.
// Dequeue hands each id to exactly one caller.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string) error

	// Dequeue pops the head without blocking; domain.ErrQueueEmpty when no
	// work is pending.
	Dequeue(ctx context.Context) (jobID string, err error)
}
