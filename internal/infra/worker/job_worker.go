package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"companion-pipeline/internal/domain"
	"companion-pipeline/internal/domain/model"
	"companion-pipeline/internal/domain/ports/adapter"
	"companion-pipeline/internal/domain/ports/repository"
	"companion-pipeline/internal/domain/ports/usecase"
	"companion-pipeline/internal/infra/metrics"
	uc "companion-pipeline/internal/usecase"
)

// PollPolicy bounds the wait on a single backend job. The loop ends at
// whichever limit trips first: per-poll attempts or the aggregate budget.
type PollPolicy struct {
	Interval time.Duration
	Attempts int
	Budget   time.Duration
}

// JobWorker drains the queue and drives each job through its lifecycle:
// claim, submit, poll until terminal, materialize, notify. Every status
// move goes through the repository's compare-and-set Transition, so two
// workers holding the same id cannot both finish it.
type JobWorker struct {
	jobs       repository.JobRepository
	queue      repository.JobQueue
	messages   repository.MessageRepository
	accounting usecase.Accounting
	backends   adapter.Registry
	store      adapter.ArtifactStore
	publisher  adapter.EventPublisher
	tracker    uc.ContextTracker
	policy     PollPolicy
	idle       time.Duration
	log        zerolog.Logger
}

func NewJobWorker(
	jobs repository.JobRepository,
	queue repository.JobQueue,
	messages repository.MessageRepository,
	accounting usecase.Accounting,
	backends adapter.Registry,
	store adapter.ArtifactStore,
	publisher adapter.EventPublisher,
	tracker uc.ContextTracker,
	policy PollPolicy,
	idle time.Duration,
	log zerolog.Logger,
) *JobWorker {
	if policy.Interval <= 0 {
		policy.Interval = 3 * time.Second
	}
	if policy.Attempts <= 0 {
		policy.Attempts = 25
	}
	if policy.Budget <= 0 {
		policy.Budget = 2 * time.Minute
	}
	if idle <= 0 {
		idle = 500 * time.Millisecond
	}
	return &JobWorker{
		jobs:       jobs,
		queue:      queue,
		messages:   messages,
		accounting: accounting,
		backends:   backends,
		store:      store,
		publisher:  publisher,
		tracker:    tracker,
		policy:     policy,
		idle:       idle,
		log:        log.With().Str("component", "job-worker").Logger(),
	}
}

// Start feeds the pool with drain tasks until ctx is done.
// Run it in its own goroutine.
func (w *JobWorker) Start(ctx context.Context, pool *Pool) {
	w.log.Info().Msg("job worker started")
	ticker := time.NewTicker(w.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("job worker stopping")
			return
		case <-ticker.C:
			_ = pool.Submit(func(ctx context.Context) error {
				w.processOne(ctx)
				return nil
			})
		}
	}
}

func (w *JobWorker) processOne(ctx context.Context) {
	id, err := w.queue.Dequeue(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrQueueEmpty) {
			w.log.Error().Err(err).Msg("dequeue failed")
		}
		return
	}
	w.Process(ctx, id)
}

// Process runs one job to completion. Safe to call with an id that was
// already claimed or finished elsewhere: the claim CAS loses and the
// worker walks away without publishing anything.
func (w *JobWorker) Process(ctx context.Context, id string) {
	job, err := w.jobs.Transition(ctx, nil, id, model.JobStatusProcessing, repository.TransitionFields{})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
			w.log.Debug().Str("job_id", id).Msg("claim lost, abandoning")
			return
		}
		w.log.Error().Err(err).Str("job_id", id).Msg("claim failed")
		return
	}

	log := w.log.With().Str("job_id", job.ID).Str("conversation_id", job.ConversationID).Logger()
	log.Info().Str("operation", string(job.Operation)).Msg("processing job")
	start := time.Now()

	polls, err := w.run(ctx, job, log)
	if err != nil {
		w.finish(ctx, job, model.JobStatusFailed, repository.TransitionFields{LastError: strPtr(err.Error())}, log)
		metrics.ObserveJob(string(model.JobStatusFailed), time.Since(start).Seconds(), polls)
		return
	}
	metrics.ObserveJob(string(model.JobStatusCompleted), time.Since(start).Seconds(), polls)
}

// run carries the job from submit through materialization. It returns the
// number of poll attempts spent; a nil error means the job reached
// completed and its event was published.
func (w *JobWorker) run(ctx context.Context, job *model.Job, log zerolog.Logger) (int, error) {
	backend, err := w.backends.For(job.Operation)
	if err != nil {
		return 0, err
	}

	ref, err := backend.Submit(ctx, job.Params)
	if err != nil {
		return 0, fmt.Errorf("submit: %w", err)
	}
	if err := w.jobs.SetExternalRef(ctx, nil, job.ID, ref); err != nil {
		log.Warn().Err(err).Msg("could not record external ref")
	}

	payload, polls, err := w.poll(ctx, backend, ref, log)
	if err != nil {
		return polls, err
	}

	// Conversational output goes through the anti-repetition window: a
	// near-duplicate of something the conversation was recently shown earns
	// one regeneration attempt before being accepted as-is.
	if job.Operation == model.OpChatMessage && w.tracker != nil {
		if w.tracker.ShouldSuppress(job.ConversationID, string(payload)) {
			log.Info().Msg("output too close to a recent one, regenerating")
			if redo, more, rerr := w.regenerate(ctx, backend, job, log); rerr == nil {
				payload = redo
				polls += more
			} else {
				log.Warn().Err(rerr).Msg("regeneration failed, keeping first output")
			}
		}
		w.tracker.RecordOutput(job.ConversationID, string(payload))
	}

	resultRef, err := w.store.Store(ctx, job.ID, payload)
	if err != nil {
		return polls, fmt.Errorf("materialize: %w", err)
	}

	w.finish(ctx, job, model.JobStatusCompleted, repository.TransitionFields{ResultRef: &resultRef}, log)
	return polls, nil
}

func (w *JobWorker) regenerate(ctx context.Context, backend adapter.GenerationAdapter, job *model.Job, log zerolog.Logger) ([]byte, int, error) {
	ref, err := backend.Submit(ctx, job.Params)
	if err != nil {
		return nil, 0, err
	}
	return w.poll(ctx, backend, ref, log)
}

// poll waits on the backend until it reports a terminal state or the policy
// gives up. A transport error consumes an attempt and keeps going; an
// explicit failure from the backend ends the loop immediately.
func (w *JobWorker) poll(ctx context.Context, backend adapter.GenerationAdapter, ref string, log zerolog.Logger) ([]byte, int, error) {
	deadline := time.Now().Add(w.policy.Budget)
	pollCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for attempt := 1; attempt <= w.policy.Attempts; attempt++ {
		res, err := backend.Poll(pollCtx, ref)
		switch {
		case err == nil && res.State == adapter.PollSucceeded:
			return res.Payload, attempt, nil
		case err == nil && res.State == adapter.PollFailed:
			return nil, attempt, fmt.Errorf("%w: %s", domain.ErrGenerationFailed, res.Reason)
		case err != nil && errors.Is(err, domain.ErrAdapterUnavailable):
			log.Warn().Err(err).Int("attempt", attempt).Msg("backend unreachable, will retry")
		case err != nil:
			return nil, attempt, fmt.Errorf("poll: %w", err)
		}

		select {
		case <-pollCtx.Done():
			return nil, attempt, fmt.Errorf("%w: poll budget exhausted", domain.ErrGenerationFailed)
		case <-time.After(w.policy.Interval):
		}
	}
	return nil, w.policy.Attempts, fmt.Errorf("%w: poll attempts exhausted", domain.ErrGenerationFailed)
}

// finish performs the terminal transition and, only when this worker wins
// the CAS, the side effects that must happen exactly once: the placeholder
// update, the refund on failure, and the notification.
func (w *JobWorker) finish(ctx context.Context, job *model.Job, status model.JobStatus, fields repository.TransitionFields, log zerolog.Logger) {
	// Detach from the caller's context so a mid-flight shutdown or poll
	// timeout cannot strand the row in processing.
	ctx = context.WithoutCancel(ctx)

	final, err := w.jobs.Transition(ctx, nil, job.ID, status, fields)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
			log.Debug().Str("status", string(status)).Msg("terminal race lost, no event published")
			return
		}
		log.Error().Err(err).Str("status", string(status)).Msg("terminal transition failed")
		return
	}

	msgState := model.MessageReady
	if status == model.JobStatusFailed {
		msgState = model.MessageFailed
	}
	if err := w.messages.UpdateState(ctx, nil, final.MessageID, msgState, final.ResultRef); err != nil {
		log.Error().Err(err).Str("message_id", final.MessageID).Msg("placeholder update failed")
	}

	if status == model.JobStatusFailed {
		if err := w.accounting.Refund(ctx, final.RequesterID, final.Operation, final.ID); err != nil {
			log.Error().Err(err).Msg("refund failed")
		}
		log.Info().Str("reason", final.LastError).Msg("job failed")
	} else {
		log.Info().Str("result_ref", final.ResultRef).Msg("job completed")
	}

	w.publisher.Publish(final.ConversationID, model.NewTerminalEvent(final))
}

func strPtr(s string) *string { return &s }
