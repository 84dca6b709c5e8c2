package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/recebi/internal/repository"
)

// UnitOfWork runs repository calls inside one PostgreSQL transaction.
type UnitOfWork struct {
	db        *DB
	feedTopic string
}

// NewUnitOfWork constructs a unit of work. A non-empty feedTopic enables the history outbox.
func NewUnitOfWork(db *DB, feedTopic string) *UnitOfWork {
	return &UnitOfWork{db: db, feedTopic: feedTopic}
}

// Bind returns repositories bound to q, outside of any unit of work.
func Bind(q Querier, feedTopic string) repository.Repos {
	return repository.Repos{
		Actors:   NewActorRepo(q),
		Packages: NewPackageRepo(q),
		History:  NewHistoryRepo(q, feedTopic),
		Outbox:   NewOutboxRepo(q),
	}
}

// Do begins a transaction, runs fn and commits when fn succeeds.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) (err error) {
	tx, err := u.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	return fn(ctx, Bind(tx, u.feedTopic))
}
