//go:build !integration

package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"companion-pipeline/internal/domain"
	"companion-pipeline/internal/domain/model"
	"companion-pipeline/internal/domain/ports/adapter"
)

type ucFixture struct {
	jobs       *memJobRepo
	messages   *memMsgRepo
	queue      *memQueue
	accounting *mockAccounting
	backend    *stubBackend
	uc         GenerationUseCase
}

func newUCFixture(t *testing.T) *ucFixture {
	t.Helper()
	f := &ucFixture{
		jobs:       newMemJobRepo(),
		messages:   newMemMsgRepo(),
		queue:      &memQueue{},
		accounting: &mockAccounting{Balance: true},
		backend:    &stubBackend{},
	}
	backends := adapter.Registry{
		model.OpImageGeneration: f.backend,
		model.OpChatMessage:     f.backend,
	}
	tracker := NewContextTracker(time.Hour, zerolog.Nop())
	f.uc = NewGenerationUseCase(f.jobs, f.messages, f.queue, f.accounting, backends, tracker, noopTxManager{}, zerolog.Nop())
	return f
}

var testParams = json.RawMessage(`{"prompt":"a quiet harbor at dawn"}`)

func TestSubmitJob_HappyPath(t *testing.T) {
	t.Parallel()

	f := newUCFixture(t)
	job, msg, err := f.uc.SubmitJob(context.Background(), "user-1", "conv-1", model.OpImageGeneration, testParams)
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if job.Status != model.JobStatusPending {
		t.Fatalf("job status %s, want pending", job.Status)
	}
	if msg.State != model.MessageGenerating {
		t.Fatalf("placeholder state %s, want generating", msg.State)
	}
	if job.MessageID != msg.ID {
		t.Fatal("job must reference its placeholder")
	}

	if got := f.queue.queued(); len(got) != 1 || got[0] != job.ID {
		t.Fatalf("queue contents %v", got)
	}
	if len(f.accounting.Debits) != 1 || f.accounting.Debits[0] != job.ID {
		t.Fatalf("debits %v, want one for the job", f.accounting.Debits)
	}

	stored, err := f.jobs.Get(context.Background(), nil, job.ID)
	if err != nil || stored.Status != model.JobStatusPending {
		t.Fatalf("stored job %+v err %v", stored, err)
	}
}

func TestSubmitJob_InvalidParams(t *testing.T) {
	t.Parallel()

	f := newUCFixture(t)
	f.backend.ValidateErr = domain.ErrInvalidParams

	_, _, err := f.uc.SubmitJob(context.Background(), "user-1", "conv-1", model.OpImageGeneration, testParams)
	if !errors.Is(err, domain.ErrInvalidParams) {
		t.Fatalf("err %v, want ErrInvalidParams", err)
	}
	// Validation failure happens before any state exists.
	if len(f.queue.queued()) != 0 || len(f.jobs.jobs) != 0 || len(f.messages.messages) != 0 {
		t.Fatal("no job, message or queue entry may exist after a validation failure")
	}
}

func TestSubmitJob_UnknownOperation(t *testing.T) {
	t.Parallel()

	f := newUCFixture(t)
	_, _, err := f.uc.SubmitJob(context.Background(), "user-1", "conv-1", model.OperationKind("video"), testParams)
	if !errors.Is(err, domain.ErrInvalidParams) {
		t.Fatalf("err %v, want ErrInvalidParams for unregistered operation", err)
	}
}

func TestSubmitJob_InsufficientBalance(t *testing.T) {
	t.Parallel()

	f := newUCFixture(t)
	f.accounting.Balance = false

	_, _, err := f.uc.SubmitJob(context.Background(), "user-1", "conv-1", model.OpImageGeneration, testParams)
	if !errors.Is(err, domain.ErrPaymentRequired) {
		t.Fatalf("err %v, want ErrPaymentRequired", err)
	}
	if len(f.jobs.jobs) != 0 {
		t.Fatal("gated submission must not create a job")
	}
}

func TestSubmitJob_DebitFailureParksJob(t *testing.T) {
	t.Parallel()

	f := newUCFixture(t)
	f.accounting.DebitErr = domain.ErrPaymentRequired

	_, _, err := f.uc.SubmitJob(context.Background(), "user-1", "conv-1", model.OpImageGeneration, testParams)
	if !errors.Is(err, domain.ErrPaymentRequired) {
		t.Fatalf("err %v, want ErrPaymentRequired", err)
	}
	if len(f.queue.queued()) != 0 {
		t.Fatal("undebited job must never be enqueued")
	}
	// The created row is parked terminally so no worker can pick it up.
	for _, j := range f.jobs.jobs {
		if j.Status != model.JobStatusFailed {
			t.Fatalf("parked job status %s, want failed", j.Status)
		}
	}
}

func TestSubmitJob_EnqueueFailureRefunds(t *testing.T) {
	t.Parallel()

	f := newUCFixture(t)
	f.queue.EnqueueErr = errors.New("redis down")

	_, _, err := f.uc.SubmitJob(context.Background(), "user-1", "conv-1", model.OpImageGeneration, testParams)
	if err == nil {
		t.Fatal("expected error when the queue is unavailable")
	}
	if len(f.accounting.Refunds) != 1 {
		t.Fatalf("refunds %v, want exactly one", f.accounting.Refunds)
	}
	for _, j := range f.jobs.jobs {
		if j.Status != model.JobStatusFailed {
			t.Fatalf("unqueued job status %s, want failed", j.Status)
		}
	}
}

func TestGetJob_OnlyForRequester(t *testing.T) {
	t.Parallel()

	f := newUCFixture(t)
	job, _, err := f.uc.SubmitJob(context.Background(), "user-1", "conv-1", model.OpImageGeneration, testParams)
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}

	got, err := f.uc.GetJob(context.Background(), "user-1", job.ID)
	if err != nil || got.ID != job.ID {
		t.Fatalf("owner lookup failed: %v", err)
	}

	if _, err := f.uc.GetJob(context.Background(), "user-2", job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign lookup err %v, want ErrNotFound", err)
	}
	if _, err := f.uc.GetJob(context.Background(), "user-1", "no-such-job"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing lookup err %v, want ErrNotFound", err)
	}
}
