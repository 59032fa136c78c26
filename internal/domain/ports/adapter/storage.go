package adapter

import "context"

// ArtifactStore materializes a raw backend payload into a durably stored,
// referenceable artifact.
type ArtifactStore interface {
	// Store persists payload and returns a stable locator for it.
	Store(ctx context.Context, jobID string, payload []byte) (resultRef string, err error)
}
