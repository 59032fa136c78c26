package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"companion-pipeline/internal/domain"
	"companion-pipeline/internal/domain/model"
	"companion-pipeline/internal/domain/ports/repository"
	"companion-pipeline/internal/domain/ports/usecase"
)

var _ usecase.Accounting = (*creditRepo)(nil)

// creditRepo implements the accounting hook over a credit_accounts balance
// table plus an append-only credit_ledger for audit. Debit is a single
// balance-guarded UPDATE so two concurrent submissions cannot overdraw.
type creditRepo struct {
	pool  *pgxpool.Pool
	tm    repository.TransactionManager
	costs map[model.OperationKind]int64
}

func NewCreditRepo(pool *pgxpool.Pool, tm repository.TransactionManager, costs map[model.OperationKind]int64) *creditRepo {
	return &creditRepo{pool: pool, tm: tm, costs: costs}
}

func (r *creditRepo) cost(op model.OperationKind) int64 {
	if c, ok := r.costs[op]; ok {
		return c
	}
	return 1
}

func (r *creditRepo) HasSufficientBalance(ctx context.Context, userID string, op model.OperationKind) (bool, error) {
	const q = `SELECT balance FROM credit_accounts WHERE user_id = $1;`
	row, err := pickRow(ctx, r.pool, nil, q, userID)
	if err != nil {
		return false, err
	}
	var balance int64
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, domain.ErrReadDatabaseRow
	}
	return balance >= r.cost(op), nil
}

func (r *creditRepo) Debit(ctx context.Context, userID string, op model.OperationKind, ref string) error {
	return r.apply(ctx, userID, op, ref, -r.cost(op), "debit")
}

func (r *creditRepo) Refund(ctx context.Context, userID string, op model.OperationKind, ref string) error {
	return r.apply(ctx, userID, op, ref, r.cost(op), "refund")
}

func (r *creditRepo) apply(ctx context.Context, userID string, op model.OperationKind, ref string, delta int64, entry string) error {
	return r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const upd = `
UPDATE credit_accounts
SET balance = balance + $2, updated_at = now()
WHERE user_id = $1 AND balance + $2 >= 0;`

		tag, err := execSQL(ctx, r.pool, tx, upd, userID, delta)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrPaymentRequired
		}

		const ins = `
INSERT INTO credit_ledger (id, user_id, operation, entry, amount, ref, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now());`

		_, err = execSQL(ctx, r.pool, tx, ins,
			uuid.NewString(), userID, string(op), entry, delta, ref)
		return err
	})
}
