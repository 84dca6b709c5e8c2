// Package service implements the reception core: actor directory, package ledger,
// history log, provenance and authentication.
package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/recebi/internal/errs"
	"github.com/and161185/recebi/internal/metrics"
	"github.com/and161185/recebi/internal/model"
)

// requireRole rejects inactive callers and callers whose role is not listed.
func requireRole(caller model.Principal, roles ...model.Role) error {
	if caller.Status != model.StatusActive {
		return fmt.Errorf("actor %s is inactive: %w", caller.ID, errs.ErrForbidden)
	}
	if len(roles) == 0 {
		return nil
	}
	for _, r := range roles {
		if caller.Role == r {
			return nil
		}
	}
	return fmt.Errorf("role %q not allowed: %w", caller.Role, errs.ErrForbidden)
}

// isAllFilter reports whether a status filter means "no filter".
func isAllFilter(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "todos", "todas":
		return true
	}
	return false
}

func newEntry(actor, pkg *uuid.UUID, action string, c model.Category, at time.Time, d model.Detail) (*model.HistoryEntry, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	return &model.HistoryEntry{
		ID:        id,
		ActorID:   actor,
		PackageID: pkg,
		Action:    action,
		Category:  c,
		CreatedAt: at,
		Detail:    d,
	}, nil
}

// committed bumps the history counter once the unit of work is durable.
func committed(c model.Category) {
	metrics.HistoryEntriesTotal.WithLabelValues(string(c)).Inc()
}

func failed(op string, err error) error {
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues(op).Inc()
	}
	return err
}

func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
