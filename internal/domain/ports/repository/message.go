package repository

import (
	"context"

	"companion-pipeline/internal/domain/model"
)

type MessageRepository interface {
	Create(ctx context.Context, tx Tx, msg *model.Message) error
	Get(ctx context.Context, tx Tx, id string) (*model.Message, error)

	// UpdateState flips the placeholder out of "generating". Only the worker
	// calls this after enqueue.
	UpdateState(ctx context.Context, tx Tx, id string, state model.MessageState, resultRef string) error
}
