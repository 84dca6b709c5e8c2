package postgres

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/recebi/internal/errs"
	"github.com/and161185/recebi/internal/model"
)

// OutboxRepo implements OutboxRepository using PostgreSQL.
type OutboxRepo struct{ q Querier }

// NewOutboxRepo constructs an outbox repository over a pool or transaction.
func NewOutboxRepo(q Querier) *OutboxRepo { return &OutboxRepo{q: q} }

// ClaimBatch locks pending messages, oldest first. Concurrent claimers skip locked rows.
func (r *OutboxRepo) ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]model.OutboxMessage, error) {
	const q = `
SELECT id, topic, msg_key, payload, attempts, last_error, created_at
FROM history_outbox
WHERE published_at IS NULL AND attempts < $1
ORDER BY created_at
LIMIT $2
FOR UPDATE SKIP LOCKED`
	rows, err := r.q.Query(ctx, q, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OutboxMessage
	for rows.Next() {
		var m model.OutboxMessage
		if err := rows.Scan(&m.ID, &m.Topic, &m.Key, &m.Payload, &m.Attempts, &m.LastError, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkPublished stamps a message as delivered.
func (r *OutboxRepo) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE history_outbox SET published_at=$2 WHERE id=$1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// MarkFailed bumps the attempt counter and records the last error.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, lastErr string) error {
	tag, err := r.q.Exec(ctx, `UPDATE history_outbox SET attempts=attempts+1, last_error=$2 WHERE id=$1`, id, lastErr)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
