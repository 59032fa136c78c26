//go:build !integration

package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"companion-pipeline/internal/domain"
	"companion-pipeline/internal/domain/model"
	"companion-pipeline/internal/domain/ports/adapter"
	"companion-pipeline/internal/domain/ports/repository"
)

// ---- pass-through transaction manager ----

type noopTxManager struct{}

var _ repository.TransactionManager = (*noopTxManager)(nil)

func (noopTxManager) WithTx(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// ---- in-memory job repository ----

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job

	CreateErr error
}

var _ repository.JobRepository = (*memJobRepo)(nil)

func newMemJobRepo() *memJobRepo { return &memJobRepo{jobs: make(map[string]*model.Job)} }

func (r *memJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if r.CreateErr != nil {
		return r.CreateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *memJobRepo) Get(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) Transition(ctx context.Context, tx repository.Tx, id string, next model.JobStatus, fields repository.TransitionFields) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !j.Status.CanTransition(next) {
		return nil, domain.ErrInvalidTransition
	}
	j.Status = next
	if fields.LastError != nil {
		j.LastError = *fields.LastError
	}
	if fields.ResultRef != nil {
		j.ResultRef = *fields.ResultRef
	}
	if next.IsTerminal() && j.TerminalAt == nil {
		now := time.Now()
		j.TerminalAt = &now
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) SetExternalRef(ctx context.Context, tx repository.Tx, id, externalRef string) error {
	return nil
}

func (r *memJobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	return nil
}

func (r *memJobRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

// ---- in-memory message repository ----

type memMsgRepo struct {
	mu       sync.Mutex
	messages map[string]*model.Message
}

var _ repository.MessageRepository = (*memMsgRepo)(nil)

func newMemMsgRepo() *memMsgRepo { return &memMsgRepo{messages: make(map[string]*model.Message)} }

func (r *memMsgRepo) Create(ctx context.Context, tx repository.Tx, msg *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *msg
	r.messages[msg.ID] = &cp
	return nil
}

func (r *memMsgRepo) Get(ctx context.Context, tx repository.Tx, id string) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memMsgRepo) UpdateState(ctx context.Context, tx repository.Tx, id string, state model.MessageState, resultRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.State = state
	m.ResultRef = resultRef
	return nil
}

// ---- queue spy ----

type memQueue struct {
	mu  sync.Mutex
	ids []string

	EnqueueErr error
}

var _ repository.JobQueue = (*memQueue)(nil)

func (q *memQueue) Enqueue(ctx context.Context, id string) error {
	if q.EnqueueErr != nil {
		return q.EnqueueErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return nil
}

func (q *memQueue) Dequeue(ctx context.Context) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ids) == 0 {
		return "", domain.ErrQueueEmpty
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, nil
}

func (q *memQueue) queued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.ids))
	copy(out, q.ids)
	return out
}

// ---- accounting spy ----

type mockAccounting struct {
	mu      sync.Mutex
	Balance bool
	Debits  []string
	Refunds []string

	DebitErr error
}

func (a *mockAccounting) HasSufficientBalance(ctx context.Context, userID string, op model.OperationKind) (bool, error) {
	return a.Balance, nil
}

func (a *mockAccounting) Debit(ctx context.Context, userID string, op model.OperationKind, ref string) error {
	if a.DebitErr != nil {
		return a.DebitErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Debits = append(a.Debits, ref)
	return nil
}

func (a *mockAccounting) Refund(ctx context.Context, userID string, op model.OperationKind, ref string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Refunds = append(a.Refunds, ref)
	return nil
}

// ---- stub generation backend ----

type stubBackend struct {
	ValidateErr error
}

var _ adapter.GenerationAdapter = (*stubBackend)(nil)

func (s *stubBackend) ValidateParams(params json.RawMessage) error { return s.ValidateErr }

func (s *stubBackend) Submit(ctx context.Context, params json.RawMessage) (string, error) {
	return "ext-ref", nil
}

func (s *stubBackend) Poll(ctx context.Context, ref string) (adapter.PollResult, error) {
	return adapter.PollResult{State: adapter.PollSucceeded}, nil
}
