package service

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/recebi/internal/model"
	"github.com/and161185/recebi/internal/repository"
)

// HistoryService exposes the read side of the audit log. Entries are written only by other services.
type HistoryService interface {
	ListAll(ctx context.Context, caller model.Principal) ([]model.HistoryView, error)
	Get(ctx context.Context, caller model.Principal, id uuid.UUID) (*model.HistoryView, error)
	ListMine(ctx context.Context, caller model.Principal) ([]model.HistoryView, error)
}

type HistoryServiceImpl struct {
	history repository.HistoryRepository
}

func NewHistoryService(history repository.HistoryRepository) *HistoryServiceImpl {
	return &HistoryServiceImpl{history: history}
}

func (s *HistoryServiceImpl) ListAll(ctx context.Context, caller model.Principal) ([]model.HistoryView, error) {
	if err := requireRole(caller, model.RoleManager); err != nil {
		return nil, err
	}
	return s.history.List(ctx)
}

func (s *HistoryServiceImpl) Get(ctx context.Context, caller model.Principal, id uuid.UUID) (*model.HistoryView, error) {
	if err := requireRole(caller, model.RoleManager); err != nil {
		return nil, err
	}
	return s.history.GetByID(ctx, id)
}

// ListMine returns the entries the caller performed.
func (s *HistoryServiceImpl) ListMine(ctx context.Context, caller model.Principal) ([]model.HistoryView, error) {
	if err := requireRole(caller); err != nil {
		return nil, err
	}
	return s.history.ListByActor(ctx, caller.ID)
}
