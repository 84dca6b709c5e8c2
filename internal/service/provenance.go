package service

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/recebi/internal/model"
	"github.com/and161185/recebi/internal/repository"
)

// Resolver attaches the doorkeeper-of-record to packages.
type Resolver struct {
	history repository.HistoryRepository
}

// NewResolver constructs a Resolver over the history log.
func NewResolver(history repository.HistoryRepository) *Resolver {
	return &Resolver{history: history}
}

// Attach fills DoorkeeperName for every view with one lookup. Input order is preserved;
// packages without a resolvable registrar get "N/A".
func (r *Resolver) Attach(ctx context.Context, views []model.PackageView) ([]model.PackageView, error) {
	if len(views) == 0 {
		return views, nil
	}
	ids := make([]uuid.UUID, len(views))
	for i := range views {
		ids[i] = views[i].ID
	}
	names, err := r.history.RegistrarNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range views {
		name, ok := names[views[i].ID]
		if !ok || name == "" {
			name = model.NotAvailable
		}
		views[i].DoorkeeperName = name
	}
	return views, nil
}
