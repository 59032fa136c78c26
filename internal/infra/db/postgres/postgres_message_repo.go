package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"companion-pipeline/internal/domain"
	"companion-pipeline/internal/domain/model"
	"companion-pipeline/internal/domain/ports/repository"
)

var _ repository.MessageRepository = (*messageRepo)(nil)

type messageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *messageRepo {
	return &messageRepo{pool: pool}
}

func (r *messageRepo) Create(ctx context.Context, tx repository.Tx, msg *model.Message) error {
	const q = `
INSERT INTO conversation_messages
  (id, conversation_id, author_id, kind, state, body, result_ref, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`

	msg.UpdatedAt = time.Now()
	_, err := execSQL(ctx, r.pool, tx, q,
		msg.ID, msg.ConversationID, msg.AuthorID, string(msg.Kind), string(msg.State),
		msg.Body, msg.ResultRef, msg.CreatedAt, msg.UpdatedAt)
	return err
}

func (r *messageRepo) Get(ctx context.Context, tx repository.Tx, id string) (*model.Message, error) {
	const q = `
SELECT id, conversation_id, author_id, kind, state, body, result_ref, created_at, updated_at
FROM conversation_messages WHERE id = $1;`

	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var m model.Message
	var kind, state string
	err = row.Scan(&m.ID, &m.ConversationID, &m.AuthorID, &kind, &state,
		&m.Body, &m.ResultRef, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	m.Kind = model.OperationKind(kind)
	m.State = model.MessageState(state)
	return &m, nil
}

func (r *messageRepo) UpdateState(ctx context.Context, tx repository.Tx, id string, state model.MessageState, resultRef string) error {
	const q = `
UPDATE conversation_messages
SET state = $2, result_ref = $3, updated_at = now()
WHERE id = $1 AND state = 'generating';`

	tag, err := execSQL(ctx, r.pool, tx, q, id, string(state), resultRef)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
