package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/recebi/internal/errs"
	"github.com/and161185/recebi/internal/model"
)

// PackageRepo implements PackageRepository using PostgreSQL.
type PackageRepo struct{ q Querier }

// NewPackageRepo constructs a package repository over a pool or transaction.
func NewPackageRepo(q Querier) *PackageRepo { return &PackageRepo{q: q} }

const packageViewSelect = `
SELECT p.id, p.unit, p.owner_id, p.description, p.tracking_code, p.status, p.entered_at, p.picked_up_at,
       COALESCE(a.name, '')
FROM packages p
LEFT JOIN actors a ON a.id = p.owner_id`

func scanPackageView(row pgx.Row) (*model.PackageView, error) {
	var v model.PackageView
	err := row.Scan(&v.ID, &v.Unit, &v.OwnerID, &v.Description, &v.TrackingCode, &v.Status,
		&v.EnteredAt, &v.PickedUpAt, &v.OwnerName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if v.OwnerName == "" {
		v.OwnerName = model.NotAvailable
	}
	return &v, nil
}

// Create inserts a package row.
func (r *PackageRepo) Create(ctx context.Context, p *model.Package) error {
	const q = `
INSERT INTO packages (id, unit, owner_id, description, tracking_code, status, entered_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.Exec(ctx, q, p.ID, p.Unit, p.OwnerID, p.Description, p.TrackingCode, p.Status, p.EnteredAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("owner %s: %w", p.OwnerID, errs.ErrNotFound)
	}
	return err
}

// GetByID selects one package with its owner name.
func (r *PackageRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.PackageView, error) {
	return scanPackageView(r.q.QueryRow(ctx, packageViewSelect+` WHERE p.id=$1`, id))
}

// GetByIDForUpdate selects one package and locks it.
func (r *PackageRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Package, error) {
	const q = `
SELECT id, unit, owner_id, description, tracking_code, status, entered_at, picked_up_at
FROM packages WHERE id=$1 FOR UPDATE`
	var p model.Package
	err := r.q.QueryRow(ctx, q, id).
		Scan(&p.ID, &p.Unit, &p.OwnerID, &p.Description, &p.TrackingCode, &p.Status, &p.EnteredAt, &p.PickedUpAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// MarkPickedUp sets status and pickup time together; only a pending row is touched.
func (r *PackageRepo) MarkPickedUp(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE packages SET status=$2, picked_up_at=$3 WHERE id=$1 AND status=$4`
	tag, err := r.q.Exec(ctx, q, id, model.PackagePickedUp, at, model.PackagePending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrBadState
	}
	return nil
}

// Delete removes a package. History references are nulled by the schema.
func (r *PackageRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM packages WHERE id=$1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("package %s still referenced by history: %w", id, errs.ErrConflict)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// List returns packages matching f, newest entry first.
func (r *PackageRepo) List(ctx context.Context, f model.PackageFilter) ([]model.PackageView, error) {
	var (
		where []string
		args  []any
	)
	if f.OwnerID != nil {
		args = append(args, *f.OwnerID)
		where = append(where, fmt.Sprintf("p.owner_id=$%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		op := "="
		if f.Pattern {
			op = "ILIKE"
		}
		where = append(where, fmt.Sprintf("p.status %s $%d", op, len(args)))
	}
	q := packageViewSelect
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, " AND ")
	}
	q += "\nORDER BY p.entered_at DESC"

	rows, err := r.q.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PackageView
	for rows.Next() {
		v, err := scanPackageView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}
