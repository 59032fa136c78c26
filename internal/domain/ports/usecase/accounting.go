package usecase

import (
	"context"

	"companion-pipeline/internal/domain/model"
)

// Accounting is the gating hook consulted before a job is accepted.
//
// Debit policy: operations are debited at enqueue time and refunded only
// when the job reaches FAILED.
type Accounting interface {
	HasSufficientBalance(ctx context.Context, userID string, op model.OperationKind) (bool, error)

	// Debit charges the fixed cost of op; ref ties the ledger entry to a job
	// or message id for audit. domain.ErrPaymentRequired when the balance
	// does not cover it.
	Debit(ctx context.Context, userID string, op model.OperationKind, ref string) error

	// Refund returns the cost of op; used only for jobs that reached FAILED.
	Refund(ctx context.Context, userID string, op model.OperationKind, ref string) error
}
