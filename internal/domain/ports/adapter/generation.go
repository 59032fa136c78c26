package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"companion-pipeline/internal/domain"
	"companion-pipeline/internal/domain/model"
)

// PollState classifies a backend poll reply into exactly one bucket.
type PollState int

const (
	PollRunning PollState = iota
	PollSucceeded
	PollFailed
)

// PollResult carries the classified reply. Payload is set only for
// PollSucceeded; Reason only for PollFailed.
type PollResult struct {
	State   PollState
	Payload []byte
	Reason  string
}

// GenerationAdapter is the boundary to the slow external compute provider.
// Implementations classify transport failures as domain.ErrAdapterUnavailable
// and rejected inputs as domain.ErrInvalidParams so the worker can tell
// "retry within the loop" from "give up".
type GenerationAdapter interface {
	// ValidateParams is the shape check run before any job record exists.
	ValidateParams(params json.RawMessage) error

	// Submit hands params to the provider and returns its job handle.
	Submit(ctx context.Context, params json.RawMessage) (externalRef string, err error)

	// Poll asks the provider about a previously submitted job.
	Poll(ctx context.Context, externalRef string) (PollResult, error)
}

// Registry maps each operation kind to the adapter that serves it.
type Registry map[model.OperationKind]GenerationAdapter

// For returns the adapter for op, or ErrInvalidParams when the deployment
// has no backend for that operation.
func (r Registry) For(op model.OperationKind) (GenerationAdapter, error) {
	a, ok := r[op]
	if !ok {
		return nil, fmt.Errorf("%w: no backend for operation %q", domain.ErrInvalidParams, op)
	}
	return a, nil
}
