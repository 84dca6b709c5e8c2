package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/recebi/internal/errs"
)

func TestOutboxRepo_ClaimBatch(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewOutboxRepo(db.Pool)
	id := uuid.Must(uuid.NewV4())
	at := time.Now().UTC()

	mock.ExpectQuery(`FROM history_outbox WHERE published_at IS NULL AND attempts < \$1 ORDER BY created_at LIMIT \$2 FOR UPDATE SKIP LOCKED`).
		WithArgs(5, 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "topic", "msg_key", "payload", "attempts", "last_error", "created_at"}).
			AddRow(id, "recebi.history", []byte("k"), []byte(`{}`), 1, strp("broker down"), at))
	msgs, err := r.ClaimBatch(context.Background(), 50, 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, id, msgs[0].ID)
	require.Equal(t, 1, msgs[0].Attempts)
	require.Equal(t, "broker down", *msgs[0].LastError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepo_MarkPublished_and_Failed(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewOutboxRepo(db.Pool)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE history_outbox SET published_at=\$2 WHERE id=\$1`).
		WithArgs(id, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.MarkPublished(ctx, id, at))

	mock.ExpectExec(`UPDATE history_outbox SET attempts=attempts\+1, last_error=\$2 WHERE id=\$1`).
		WithArgs(id, "timeout").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.MarkFailed(ctx, id, "timeout"), errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
