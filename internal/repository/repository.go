// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/recebi/internal/model"
)

// ActorRepository provides access to actor records. Actors are never deleted.
type ActorRepository interface {
	// Create inserts a new actor; a taken email yields errs.ErrConflict.
	Create(ctx context.Context, a *model.Actor) error
	// GetByID loads an actor by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Actor, error)
	// GetByIDForUpdate loads an actor and locks the row until the unit of work ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Actor, error)
	// GetByEmail loads an actor by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*model.Actor, error)
	// Update overwrites mutable fields of an existing actor.
	Update(ctx context.Context, a *model.Actor) error
	// List returns actors ordered by name; statusPattern is matched with ILIKE, empty means all.
	List(ctx context.Context, statusPattern string) ([]model.Actor, error)
	// SearchResidents returns active residents whose name contains namePart.
	SearchResidents(ctx context.Context, namePart string, limit int) ([]model.Actor, error)
	// CountByRole counts actors with the given role.
	CountByRole(ctx context.Context, role model.Role) (int, error)
}

// PackageRepository provides access to package records.
type PackageRepository interface {
	// Create inserts a new package.
	Create(ctx context.Context, p *model.Package) error
	// GetByID loads a package with its owner name.
	GetByID(ctx context.Context, id uuid.UUID) (*model.PackageView, error)
	// GetByIDForUpdate loads a package and locks the row until the unit of work ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Package, error)
	// MarkPickedUp moves a pending package to picked up.
	MarkPickedUp(ctx context.Context, id uuid.UUID, at time.Time) error
	// Delete removes a package row.
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns packages with owner names, newest entry first.
	List(ctx context.Context, f model.PackageFilter) ([]model.PackageView, error)
}

// HistoryRepository is the append-only audit log. There is no update or delete.
type HistoryRepository interface {
	// Append inserts one entry. Must run inside the unit of work of the change it records.
	Append(ctx context.Context, e *model.HistoryEntry) error
	// GetByID loads one entry with resolved names.
	GetByID(ctx context.Context, id uuid.UUID) (*model.HistoryView, error)
	// List returns all entries, newest first, with resolved names.
	List(ctx context.Context) ([]model.HistoryView, error)
	// ListByActor returns entries performed by actorID, newest first.
	ListByActor(ctx context.Context, actorID uuid.UUID) ([]model.HistoryView, error)
	// FindByPackageAndCategory returns the first entry matching both keys.
	FindByPackageAndCategory(ctx context.Context, packageID uuid.UUID, c model.Category) (*model.HistoryEntry, error)
	// RegistrarNames maps package IDs to the name of the actor that registered them.
	// Packages without a resolvable registrar are absent from the map.
	RegistrarNames(ctx context.Context, packageIDs []uuid.UUID) (map[uuid.UUID]string, error)
}

// OutboxRepository stores history feed messages awaiting publication.
type OutboxRepository interface {
	// ClaimBatch locks up to limit unpublished messages with fewer than maxAttempts attempts.
	ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]model.OutboxMessage, error)
	// MarkPublished stamps a message as delivered.
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkFailed bumps the attempt counter and records the last error.
	MarkFailed(ctx context.Context, id uuid.UUID, lastErr string) error
}

// Repos bundles repositories bound to one unit of work.
type Repos struct {
	Actors   ActorRepository
	Packages PackageRepository
	History  HistoryRepository
	Outbox   OutboxRepository
}

// UnitOfWork runs fn atomically: every write made through r commits or rolls back together.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}
