package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/recebi/internal/errs"
	"github.com/and161185/recebi/internal/model"
)

// HistoryRepo implements HistoryRepository using PostgreSQL.
// With a non-empty feed topic every appended entry is also queued in history_outbox.
type HistoryRepo struct {
	q         Querier
	feedTopic string
}

// NewHistoryRepo constructs a history repository over a pool or transaction.
func NewHistoryRepo(q Querier, feedTopic string) *HistoryRepo {
	return &HistoryRepo{q: q, feedTopic: feedTopic}
}

func nullable(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}

// Append inserts an entry and, when the feed is enabled, its outbox message.
func (r *HistoryRepo) Append(ctx context.Context, e *model.HistoryEntry) error {
	detail, err := model.EncodeDetail(e.Detail)
	if err != nil {
		return fmt.Errorf("encode detail: %w", err)
	}
	const ins = `
INSERT INTO history (id, actor_id, package_id, action, category, created_at, detail)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.q.Exec(ctx, ins, e.ID, e.ActorID, e.PackageID, e.Action, e.Category, e.CreatedAt, detail); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("duplicate %q entry: %w", e.Category, errs.ErrConflict)
		}
		return fmt.Errorf("append history: %w", err)
	}
	if r.feedTopic == "" {
		return nil
	}

	ev, err := model.NewHistoryEvent(e)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msgID, err := uuid.NewV4()
	if err != nil {
		return err
	}
	const out = `INSERT INTO history_outbox (id, topic, msg_key, payload) VALUES ($1, $2, $3, $4)`
	if _, err := r.q.Exec(ctx, out, msgID, r.feedTopic, []byte(e.ID.String()), payload); err != nil {
		return fmt.Errorf("enqueue history event: %w", err)
	}
	return nil
}

const historyViewSelect = `
SELECT h.id, h.actor_id, h.package_id, h.action, h.category, h.created_at, h.detail,
       a.name, p.description, p.unit
FROM history h
LEFT JOIN actors a ON a.id = h.actor_id
LEFT JOIN packages p ON p.id = h.package_id`

func scanHistoryView(row pgx.Row) (*model.HistoryView, error) {
	var (
		v                model.HistoryView
		actorID, pkgID   uuid.NullUUID
		detail           []byte
		actorName        *string
		pkgDesc, pkgUnit *string
	)
	err := row.Scan(&v.ID, &actorID, &pkgID, &v.Action, &v.Category, &v.CreatedAt, &detail,
		&actorName, &pkgDesc, &pkgUnit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	v.ActorID = nullable(actorID)
	v.PackageID = nullable(pkgID)
	if v.Detail, err = model.DecodeDetail(detail); err != nil {
		return nil, fmt.Errorf("history %s: %w", v.ID, err)
	}

	v.ActorName = model.RemovedActorName
	if actorName != nil {
		v.ActorName = *actorName
	}
	v.PackageDescription, v.PackageUnit = model.NoPackageRef, model.NoUnitRef
	if pkgDesc != nil {
		v.PackageDescription = *pkgDesc
	}
	if pkgUnit != nil {
		v.PackageUnit = *pkgUnit
	}
	return &v, nil
}

func (r *HistoryRepo) collect(ctx context.Context, q string, args ...any) ([]model.HistoryView, error) {
	rows, err := r.q.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.HistoryView
	for rows.Next() {
		v, err := scanHistoryView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// GetByID selects one entry with resolved names.
func (r *HistoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.HistoryView, error) {
	return scanHistoryView(r.q.QueryRow(ctx, historyViewSelect+` WHERE h.id=$1`, id))
}

// List returns every entry, newest first.
func (r *HistoryRepo) List(ctx context.Context) ([]model.HistoryView, error) {
	return r.collect(ctx, historyViewSelect+` ORDER BY h.created_at DESC`)
}

// ListByActor returns entries performed by actorID, newest first.
func (r *HistoryRepo) ListByActor(ctx context.Context, actorID uuid.UUID) ([]model.HistoryView, error) {
	return r.collect(ctx, historyViewSelect+` WHERE h.actor_id=$1 ORDER BY h.created_at DESC`, actorID)
}

// FindByPackageAndCategory returns the oldest entry for the pair.
func (r *HistoryRepo) FindByPackageAndCategory(ctx context.Context, packageID uuid.UUID, c model.Category) (*model.HistoryEntry, error) {
	const q = `
SELECT id, actor_id, package_id, action, category, created_at, detail
FROM history WHERE package_id=$1 AND category=$2
ORDER BY created_at
LIMIT 1`
	var (
		e              model.HistoryEntry
		actorID, pkgID uuid.NullUUID
		detail         []byte
	)
	err := r.q.QueryRow(ctx, q, packageID, c).
		Scan(&e.ID, &actorID, &pkgID, &e.Action, &e.Category, &e.CreatedAt, &detail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	e.ActorID = nullable(actorID)
	e.PackageID = nullable(pkgID)
	if e.Detail, err = model.DecodeDetail(detail); err != nil {
		return nil, err
	}
	return &e, nil
}

// RegistrarNames resolves the registering actor of each package in a single query.
func (r *HistoryRepo) RegistrarNames(ctx context.Context, packageIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(packageIDs))
	if len(packageIDs) == 0 {
		return out, nil
	}
	ids := make([]string, len(packageIDs))
	for i, id := range packageIDs {
		ids[i] = id.String()
	}
	const q = `
SELECT DISTINCT ON (h.package_id) h.package_id, a.name
FROM history h
JOIN actors a ON a.id = h.actor_id
WHERE h.category=$1 AND h.package_id = ANY($2::uuid[])
ORDER BY h.package_id, h.created_at`
	rows, err := r.q.Query(ctx, q, model.CategoryRegistration, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   uuid.UUID
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}
