//go:build !integration

package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"companion-pipeline/internal/domain"
	"companion-pipeline/internal/domain/model"
	"companion-pipeline/internal/domain/ports/adapter"
	"companion-pipeline/internal/domain/ports/repository"
)

// ---- in-memory job repository with real CAS semantics ----

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

var _ repository.JobRepository = (*memJobRepo)(nil)

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*model.Job)}
}

func (r *memJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
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
	if fields.ExternalRef != nil {
		j.ExternalRef = *fields.ExternalRef
	}
	if fields.ResultRef != nil {
		j.ResultRef = *fields.ResultRef
	}
	if fields.LastError != nil {
		j.LastError = *fields.LastError
	}
	j.UpdatedAt = time.Now()
	if next.IsTerminal() && j.TerminalAt == nil {
		now := time.Now()
		j.TerminalAt = &now
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) SetExternalRef(ctx context.Context, tx repository.Tx, id, externalRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok && j.Status == model.JobStatusProcessing {
		j.ExternalRef = externalRef
	}
	return nil
}

func (r *memJobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	return nil
}

func (r *memJobRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, j := range r.jobs {
		if j.Status.IsTerminal() && j.TerminalAt != nil && j.TerminalAt.Before(cutoff) {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}

// ---- in-memory queue ----

type memQueue struct {
	mu  sync.Mutex
	ids []string
}

var _ repository.JobQueue = (*memQueue)(nil)

func (q *memQueue) Enqueue(ctx context.Context, id string) error {
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

// ---- in-memory message repository ----

type memMsgRepo struct {
	mu       sync.Mutex
	messages map[string]*model.Message
}

var _ repository.MessageRepository = (*memMsgRepo)(nil)

func newMemMsgRepo() *memMsgRepo {
	return &memMsgRepo{messages: make(map[string]*model.Message)}
}

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

// ---- accounting spy ----

type mockAccounting struct {
	mu      sync.Mutex
	Debits  []string
	Refunds []string
}

func (a *mockAccounting) HasSufficientBalance(ctx context.Context, userID string, op model.OperationKind) (bool, error) {
	return true, nil
}

func (a *mockAccounting) Debit(ctx context.Context, userID string, op model.OperationKind, ref string) error {
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

func (a *mockAccounting) refundCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Refunds)
}

// ---- scripted generation backend ----

type pollStep struct {
	res adapter.PollResult
	err error
}

type stubBackend struct {
	mu      sync.Mutex
	script  []pollStep
	submits int
	polls   int

	SubmitErr error
}

var _ adapter.GenerationAdapter = (*stubBackend)(nil)

func (s *stubBackend) ValidateParams(params json.RawMessage) error { return nil }

func (s *stubBackend) Submit(ctx context.Context, params json.RawMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SubmitErr != nil {
		return "", s.SubmitErr
	}
	s.submits++
	return "ext-ref", nil
}

func (s *stubBackend) Poll(ctx context.Context, ref string) (adapter.PollResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if len(s.script) == 0 {
		return adapter.PollResult{State: adapter.PollRunning}, nil
	}
	step := s.script[0]
	if len(s.script) > 1 {
		s.script = s.script[1:]
	} else {
		s.script = nil
	}
	return step.res, step.err
}

func (s *stubBackend) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// ---- artifact store spy ----

type memStore struct {
	mu     sync.Mutex
	Stored map[string][]byte
}

var _ adapter.ArtifactStore = (*memStore)(nil)

func newMemStore() *memStore { return &memStore{Stored: make(map[string][]byte)} }

func (s *memStore) Store(ctx context.Context, jobID string, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Stored[jobID] = payload
	return "mem://" + jobID, nil
}

// ---- event publisher spy ----

type capturePublisher struct {
	mu     sync.Mutex
	Events []model.Event
}

var _ adapter.EventPublisher = (*capturePublisher)(nil)

func (p *capturePublisher) Publish(conversationID string, ev model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, ev)
}

func (p *capturePublisher) published() []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Event, len(p.Events))
	copy(out, p.Events)
	return out
}
