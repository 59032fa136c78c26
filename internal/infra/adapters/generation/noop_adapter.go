package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"companion-pipeline/internal/domain"
	"companion-pipeline/internal/domain/ports/adapter"
)

var _ adapter.GenerationAdapter = (*NoopAdapter)(nil)

// NoopAdapter implements adapter.GenerationAdapter for local/dev runs.
// Every submission reports running once, then succeeds with a canned payload.
type NoopAdapter struct{}

func NewNoopAdapter() *NoopAdapter {
	return &NoopAdapter{}
}

func (a *NoopAdapter) ValidateParams(params json.RawMessage) error {
	var p struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidParams, err)
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", domain.ErrInvalidParams)
	}
	return nil
}

func (a *NoopAdapter) Submit(ctx context.Context, params json.RawMessage) (string, error) {
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "noop-" + uuid.NewString(), nil
}

func (a *NoopAdapter) Poll(ctx context.Context, externalRef string) (adapter.PollResult, error) {
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return adapter.PollResult{}, ctx.Err()
	}
	return adapter.PollResult{
		State:   adapter.PollSucceeded,
		Payload: []byte("noop generation result for " + externalRef),
	}, nil
}
