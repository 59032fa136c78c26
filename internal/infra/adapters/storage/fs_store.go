package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"companion-pipeline/internal/domain/ports/adapter"
)

var _ adapter.ArtifactStore = (*FSStore)(nil)

// FSStore writes artifacts to a local directory. Dev convenience; production
// uses the S3 store.
type FSStore struct {
	dir string
}

func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) Store(ctx context.Context, jobID string, payload []byte) (string, error) {
	path := filepath.Join(s.dir, jobID)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}
