package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/recebi/internal/errs"
	"github.com/and161185/recebi/internal/model"
)

const actorColumns = `id, name, email, secret_hash, secret_salt, role, phone, unit, status, created_at`

// ActorRepo implements ActorRepository using PostgreSQL.
type ActorRepo struct{ q Querier }

// NewActorRepo constructs an actor repository over a pool or transaction.
func NewActorRepo(q Querier) *ActorRepo { return &ActorRepo{q: q} }

func scanActor(row pgx.Row) (*model.Actor, error) {
	var a model.Actor
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.SecretHash, &a.SecretSalt, &a.Role, &a.Phone, &a.Unit, &a.Status, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Create inserts a new actor row.
func (r *ActorRepo) Create(ctx context.Context, a *model.Actor) error {
	const q = `
INSERT INTO actors (id, name, email, secret_hash, secret_salt, role, phone, unit, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at`
	err := r.q.QueryRow(ctx, q, a.ID, a.Name, a.Email, a.SecretHash, a.SecretSalt, a.Role, a.Phone, a.Unit, a.Status).
		Scan(&a.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("email %q already in use: %w", a.Email, errs.ErrConflict)
	}
	return err
}

// GetByID selects an actor by ID.
func (r *ActorRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Actor, error) {
	const q = `SELECT ` + actorColumns + ` FROM actors WHERE id=$1`
	return scanActor(r.q.QueryRow(ctx, q, id))
}

// GetByIDForUpdate selects an actor by ID and locks it.
func (r *ActorRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Actor, error) {
	const q = `SELECT ` + actorColumns + ` FROM actors WHERE id=$1 FOR UPDATE`
	return scanActor(r.q.QueryRow(ctx, q, id))
}

// GetByEmail selects an actor by email, ignoring case.
func (r *ActorRepo) GetByEmail(ctx context.Context, email string) (*model.Actor, error) {
	const q = `SELECT ` + actorColumns + ` FROM actors WHERE lower(email)=lower($1)`
	return scanActor(r.q.QueryRow(ctx, q, email))
}

// Update writes every mutable column of a.
func (r *ActorRepo) Update(ctx context.Context, a *model.Actor) error {
	const q = `
UPDATE actors
SET name=$2, email=$3, secret_hash=$4, secret_salt=$5, phone=$6, unit=$7, status=$8
WHERE id=$1`
	tag, err := r.q.Exec(ctx, q, a.ID, a.Name, a.Email, a.SecretHash, a.SecretSalt, a.Phone, a.Unit, a.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email %q already in use: %w", a.Email, errs.ErrConflict)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *ActorRepo) collect(ctx context.Context, q string, args ...any) ([]model.Actor, error) {
	rows, err := r.q.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Actor
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// List returns actors ordered by name, optionally filtered by a status pattern.
func (r *ActorRepo) List(ctx context.Context, statusPattern string) ([]model.Actor, error) {
	if statusPattern == "" {
		const q = `SELECT ` + actorColumns + ` FROM actors ORDER BY name`
		return r.collect(ctx, q)
	}
	const q = `SELECT ` + actorColumns + ` FROM actors WHERE status ILIKE $1 ORDER BY name`
	return r.collect(ctx, q, statusPattern)
}

// SearchResidents returns active residents whose name contains namePart, ignoring case.
func (r *ActorRepo) SearchResidents(ctx context.Context, namePart string, limit int) ([]model.Actor, error) {
	const q = `SELECT ` + actorColumns + ` FROM actors
WHERE role=$1 AND status=$2 AND name ILIKE '%' || $3 || '%'
ORDER BY name
LIMIT $4`
	return r.collect(ctx, q, model.RoleResident, model.StatusActive, namePart, limit)
}

// CountByRole counts actors holding role.
func (r *ActorRepo) CountByRole(ctx context.Context, role model.Role) (int, error) {
	const q = `SELECT count(*) FROM actors WHERE role=$1`
	var n int
	if err := r.q.QueryRow(ctx, q, role).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
