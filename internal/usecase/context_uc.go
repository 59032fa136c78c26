package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"companion-pipeline/internal/domain/model"
	"companion-pipeline/internal/infra/metrics"
)

// Compile-time check
var _ ContextTracker = (*contextTracker)(nil)

// ContextTracker keeps the rolling per-conversation state used to enrich
// generated content. State is in-memory only and evicted after idleTTL
// without updates; a cold start just means neutral mood and no history.
type ContextTracker interface {
	// Update folds one user message into the conversation's state, creating
	// it on first sight, and returns the snapshot after the fold.
	Update(conversationID, message string) *model.ConversationContext

	// Snapshot returns the current state without mutating it, or nil when
	// the conversation is cold.
	Snapshot(conversationID string) *model.ConversationContext

	// ShouldSuppress reports whether candidate is too close to an output the
	// conversation was recently shown.
	ShouldSuppress(conversationID, candidate string) bool

	// RecordOutput registers a produced output in the anti-repetition window.
	RecordOutput(conversationID, text string)
}

type contextTracker struct {
	mu      sync.Mutex
	states  map[string]*model.ConversationContext
	idleTTL time.Duration
	log     zerolog.Logger
}

func NewContextTracker(idleTTL time.Duration, log zerolog.Logger) *contextTracker {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &contextTracker{
		states:  make(map[string]*model.ConversationContext),
		idleTTL: idleTTL,
		log:     log.With().Str("component", "context-tracker").Logger(),
	}
}

func (t *contextTracker) Update(conversationID, message string) *model.ConversationContext {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[conversationID]
	if !ok {
		st = model.NewConversationContext(conversationID)
		t.states[conversationID] = st
		metrics.IncCacheRequest("conversation_context", "miss")
	} else {
		metrics.IncCacheRequest("conversation_context", "hit")
	}
	st.Fold(message)
	snap := *st
	return &snap
}

func (t *contextTracker) Snapshot(conversationID string) *model.ConversationContext {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[conversationID]
	if !ok {
		metrics.IncCacheRequest("conversation_context", "miss")
		return nil
	}
	metrics.IncCacheRequest("conversation_context", "hit")
	snap := *st
	return &snap
}

func (t *contextTracker) ShouldSuppress(conversationID, candidate string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[conversationID]
	if !ok {
		return false
	}
	return st.TooSimilar(candidate)
}

func (t *contextTracker) RecordOutput(conversationID, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[conversationID]
	if !ok {
		st = model.NewConversationContext(conversationID)
		t.states[conversationID] = st
	}
	st.RecordOutput(text)
}

// StartJanitor evicts conversations idle past the TTL. Run in a goroutine.
func (t *contextTracker) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.evictIdle()
		}
	}
}

func (t *contextTracker) evictIdle() {
	cutoff := time.Now().Add(-t.idleTTL)
	t.mu.Lock()
	evicted := 0
	for id, st := range t.states {
		if st.UpdatedAt.Before(cutoff) {
			delete(t.states, id)
			evicted++
		}
	}
	t.mu.Unlock()
	if evicted > 0 {
		t.log.Debug().Int("evicted", evicted).Msg("idle conversations evicted")
	}
}
