package repository

import (
	"context"
	"time"

	"companion-pipeline/internal/domain/model"
)

// TransitionFields are the columns written together with a status change.
// Nil pointers leave the column untouched; the write is a single atomic
// compare-and-set so two workers racing on the same id cannot both win.
type TransitionFields struct {
	ExternalRef *string
	ResultRef   *string
	LastError   *string
}

type JobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.Job) error
	Get(ctx context.Context, tx Tx, id string) (*model.Job, error)

	// Transition atomically moves the job to next, guarded by the monotonic
	// status ordering. Returns domain.ErrInvalidTransition when the current
	// status does not permit the move and domain.ErrNotFound when the row is
	// gone. On success it returns the updated snapshot.
	Transition(ctx context.Context, tx Tx, id string, next model.JobStatus, fields TransitionFields) (*model.Job, error)

	// SetExternalRef records the backend's job handle as soon as it is known.
	// Only meaningful while the job is still processing.
	SetExternalRef(ctx context.Context, tx Tx, id, externalRef string) error

	// Delete is best-effort storage hygiene after the terminal event has been
	// delivered; correctness never depends on it.
	Delete(ctx context.Context, tx Tx, id string) error

	// DeleteTerminalBefore removes terminal jobs whose terminal timestamp is
	// older than the cutoff, returning how many rows went away.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}
