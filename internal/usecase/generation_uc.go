package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"companion-pipeline/internal/domain"
	"companion-pipeline/internal/domain/model"
	"companion-pipeline/internal/domain/ports/adapter"
	"companion-pipeline/internal/domain/ports/repository"
	"companion-pipeline/internal/domain/ports/usecase"
)

// Compile-time check
var _ GenerationUseCase = (*generationUC)(nil)

type GenerationUseCase interface {
	// SubmitJob persists a placeholder message and a pending job, charges the
	// requester, and enqueues the job id. The returned pair is handed straight
	// back to the client for optimistic rendering; the slow work happens later
	// on a worker.
	SubmitJob(ctx context.Context, requesterID, conversationID string, op model.OperationKind, params json.RawMessage) (*model.Job, *model.Message, error)

	// GetJob returns the job only to its requester.
	GetJob(ctx context.Context, requesterID, jobID string) (*model.Job, error)
}

type generationUC struct {
	jobs       repository.JobRepository
	messages   repository.MessageRepository
	queue      repository.JobQueue
	accounting usecase.Accounting
	backends   adapter.Registry
	tracker    ContextTracker
	tm         repository.TransactionManager
	log        zerolog.Logger
}

func NewGenerationUseCase(
	jobs repository.JobRepository,
	messages repository.MessageRepository,
	queue repository.JobQueue,
	accounting usecase.Accounting,
	backends adapter.Registry,
	tracker ContextTracker,
	tm repository.TransactionManager,
	log zerolog.Logger,
) *generationUC {
	return &generationUC{
		jobs:       jobs,
		messages:   messages,
		queue:      queue,
		accounting: accounting,
		backends:   backends,
		tracker:    tracker,
		tm:         tm,
		log:        log.With().Str("component", "generation-uc").Logger(),
	}
}

func (g *generationUC) SubmitJob(ctx context.Context, requesterID, conversationID string, op model.OperationKind, params json.RawMessage) (*model.Job, *model.Message, error) {
	backend, err := g.backends.For(op)
	if err != nil {
		return nil, nil, err
	}
	if err := backend.ValidateParams(params); err != nil {
		return nil, nil, err
	}

	ok, err := g.accounting.HasSufficientBalance(ctx, requesterID, op)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, domain.ErrPaymentRequired
	}

	msg, err := model.NewPlaceholderMessage(conversationID, requesterID, op, "")
	if err != nil {
		return nil, nil, err
	}
	job, err := model.NewJob(conversationID, requesterID, msg.ID, op, params)
	if err != nil {
		return nil, nil, err
	}

	// Message and job land together or not at all.
	err = g.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := g.messages.Create(ctx, tx, msg); err != nil {
			return err
		}
		return g.jobs.Create(ctx, tx, job)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("persist job: %w", err)
	}

	// Charge before the id becomes claimable. A racing balance drain between
	// the check above and here surfaces as ErrPaymentRequired; the orphaned
	// pending row is parked as failed so it never runs.
	if err := g.accounting.Debit(ctx, requesterID, op, job.ID); err != nil {
		g.park(ctx, job, "payment declined")
		return nil, nil, err
	}

	if err := g.queue.Enqueue(ctx, job.ID); err != nil {
		g.log.Error().Err(err).Str("job_id", job.ID).Msg("enqueue failed, refunding")
		if rerr := g.accounting.Refund(ctx, requesterID, op, job.ID); rerr != nil {
			g.log.Error().Err(rerr).Str("job_id", job.ID).Msg("refund after enqueue failure also failed")
		}
		g.park(ctx, job, "queue unavailable")
		return nil, nil, fmt.Errorf("enqueue job: %w", err)
	}

	// Conversational submissions also feed the rolling context.
	if op == model.OpChatMessage && g.tracker != nil {
		var p struct {
			Prompt string `json:"prompt"`
		}
		if json.Unmarshal(params, &p) == nil && p.Prompt != "" {
			g.tracker.Update(conversationID, p.Prompt)
		}
	}

	g.log.Info().
		Str("job_id", job.ID).
		Str("conversation_id", conversationID).
		Str("operation", string(op)).
		Msg("job accepted")
	return job, msg, nil
}

// park moves a never-enqueued job straight to failed so it cannot be picked
// up, and flips its placeholder with it. Best effort: the job never reached
// the queue, so nothing will race these writes.
func (g *generationUC) park(ctx context.Context, job *model.Job, reason string) {
	if _, err := g.jobs.Transition(ctx, nil, job.ID, model.JobStatusProcessing, repository.TransitionFields{}); err != nil {
		g.log.Error().Err(err).Str("job_id", job.ID).Msg("could not park job")
		return
	}
	if _, err := g.jobs.Transition(ctx, nil, job.ID, model.JobStatusFailed, repository.TransitionFields{LastError: &reason}); err != nil {
		g.log.Error().Err(err).Str("job_id", job.ID).Msg("could not park job")
		return
	}
	if err := g.messages.UpdateState(ctx, nil, job.MessageID, model.MessageFailed, ""); err != nil {
		g.log.Error().Err(err).Str("message_id", job.MessageID).Msg("could not fail placeholder")
	}
}

func (g *generationUC) GetJob(ctx context.Context, requesterID, jobID string) (*model.Job, error) {
	job, err := g.jobs.Get(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job.RequesterID != requesterID {
		// Existence of other users' jobs is not disclosed.
		return nil, domain.ErrNotFound
	}
	return job, nil
}
