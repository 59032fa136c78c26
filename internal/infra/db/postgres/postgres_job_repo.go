package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"companion-pipeline/internal/domain"
	"companion-pipeline/internal/domain/model"
	"companion-pipeline/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `id, conversation_id, requester_id, operation, params, status,
  external_ref, result_ref, last_error, message_id, created_at, updated_at, terminal_at`

func (r *jobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	const q = `
INSERT INTO generation_jobs
  (id, conversation_id, requester_id, operation, params, status,
   external_ref, result_ref, last_error, message_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, '', '', '', $7, $8, $9);`

	job.UpdatedAt = time.Now()
	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.ConversationID, job.RequesterID, string(job.Operation),
		[]byte(job.Params), string(job.Status), job.MessageID, job.CreatedAt, job.UpdatedAt)
	return err
}

func (r *jobRepo) Get(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM generation_jobs WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

// Transition is the pipeline's central correctness guarantee: a single
// compare-and-set UPDATE whose WHERE clause encodes the monotonic ordering.
// Of two workers racing on the same id, exactly one sees a row come back.
func (r *jobRepo) Transition(ctx context.Context, tx repository.Tx, id string, next model.JobStatus, fields repository.TransitionFields) (*model.Job, error) {
	var required model.JobStatus
	switch next {
	case model.JobStatusProcessing:
		required = model.JobStatusPending
	case model.JobStatusCompleted, model.JobStatusFailed:
		required = model.JobStatusProcessing
	default:
		return nil, domain.ErrInvalidTransition
	}

	const q = `
UPDATE generation_jobs SET
  status       = $3,
  external_ref = COALESCE($4, external_ref),
  result_ref   = COALESCE($5, result_ref),
  last_error   = COALESCE($6, last_error),
  updated_at   = now(),
  terminal_at  = CASE WHEN $3 IN ('completed', 'failed') AND terminal_at IS NULL
                      THEN now() ELSE terminal_at END
WHERE id = $1 AND status = $2
RETURNING ` + jobColumns + `;`

	row, err := pickRow(ctx, r.pool, tx, q,
		id, string(required), string(next), fields.ExternalRef, fields.ResultRef, fields.LastError)
	if err != nil {
		return nil, err
	}
	job, err := scanJob(row)
	if errors.Is(err, domain.ErrNotFound) {
		// No row matched: either the job is gone or its current status does
		// not permit the move. Look again to tell the two apart.
		if _, getErr := r.Get(ctx, tx, id); errors.Is(getErr, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrInvalidTransition
	}
	return job, err
}

func (r *jobRepo) SetExternalRef(ctx context.Context, tx repository.Tx, id, externalRef string) error {
	const q = `
UPDATE generation_jobs SET external_ref = $2, updated_at = now()
WHERE id = $1 AND status = 'processing';`
	_, err := execSQL(ctx, r.pool, tx, q, id, externalRef)
	return err
}

func (r *jobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	const q = `DELETE FROM generation_jobs WHERE id = $1;`
	_, err := execSQL(ctx, r.pool, tx, q, id)
	return err
}

func (r *jobRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const q = `
DELETE FROM generation_jobs
WHERE status IN ('completed', 'failed') AND terminal_at < $1;`
	tag, err := execSQL(ctx, r.pool, nil, q, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var operation, status string
	var params []byte
	err := row.Scan(
		&j.ID, &j.ConversationID, &j.RequesterID, &operation, &params, &status,
		&j.ExternalRef, &j.ResultRef, &j.LastError, &j.MessageID,
		&j.CreatedAt, &j.UpdatedAt, &j.TerminalAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.Operation = model.OperationKind(operation)
	j.Status = model.JobStatus(status)
	j.Params = params
	return &j, nil
}
