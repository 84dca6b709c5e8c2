package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/recebi/internal/errs"
	"github.com/and161185/recebi/internal/metrics"
	"github.com/and161185/recebi/internal/model"
	"github.com/and161185/recebi/internal/repository"
)

// LedgerService tracks packages from arrival to pickup.
type LedgerService interface {
	// Register records a package arriving for a resident.
	Register(ctx context.Context, caller model.Principal, cmd model.RegisterPackage) (*model.Package, error)
	// ConfirmPickup marks the caller's pending package as picked up.
	ConfirmPickup(ctx context.Context, caller model.Principal, id uuid.UUID) (*model.Package, error)
	// Delete removes a package, keeping its history.
	Delete(ctx context.Context, caller model.Principal, id uuid.UUID) error
	// List returns packages visible to the caller, newest first.
	List(ctx context.Context, caller model.Principal, status string) ([]model.PackageView, error)
	// Get returns one package visible to the caller.
	Get(ctx context.Context, caller model.Principal, id uuid.UUID) (*model.PackageView, error)
}

type LedgerServiceImpl struct {
	reads    repository.Repos
	uow      repository.UnitOfWork
	resolver *Resolver
	now      func() time.Time
}

// NewLedgerService constructs LedgerService. reads serves queries outside of any unit of work.
func NewLedgerService(reads repository.Repos, uow repository.UnitOfWork, resolver *Resolver) *LedgerServiceImpl {
	return &LedgerServiceImpl{reads: reads, uow: uow, resolver: resolver, now: time.Now}
}

// Register stores a pending package and its single registration entry in one unit of work.
func (s *LedgerServiceImpl) Register(ctx context.Context, caller model.Principal, cmd model.RegisterPackage) (*model.Package, error) {
	if err := requireRole(caller, model.RoleDoorkeeper); err != nil {
		return nil, err
	}
	desc := strings.TrimSpace(cmd.Description)
	if desc == "" {
		return nil, fmt.Errorf("%w: description is required", errs.ErrValidation)
	}
	if cmd.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner is required", errs.ErrValidation)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	var p *model.Package
	err = s.uow.Do(ctx, func(ctx context.Context, r repository.Repos) error {
		owner, err := r.Actors.GetByID(ctx, cmd.OwnerID)
		if err != nil {
			return err
		}
		if owner.Role != model.RoleResident {
			return fmt.Errorf("resident %s: %w", cmd.OwnerID, errs.ErrNotFound)
		}
		if !owner.Active() {
			return fmt.Errorf("morador inativo: %w", errs.ErrBadState)
		}
		unit := strings.TrimSpace(cmd.Unit)
		if unit == "" && owner.Unit != nil {
			unit = *owner.Unit
		}
		if unit == "" {
			return fmt.Errorf("%w: unit is required", errs.ErrValidation)
		}

		p = &model.Package{
			ID:           id,
			Unit:         unit,
			OwnerID:      owner.ID,
			Description:  desc,
			TrackingCode: optional(cmd.TrackingCode),
			Status:       model.PackagePending,
			EnteredAt:    s.now(),
		}
		if err := r.Packages.Create(ctx, p); err != nil {
			return err
		}
		e, err := newEntry(&caller.ID, &p.ID,
			fmt.Sprintf("Porteiro registrou: %s p/ Apt %s", p.Description, p.Unit),
			model.CategoryRegistration, p.EnteredAt, model.RegistrationSnapshot{
				PackageID:    p.ID,
				OwnerID:      owner.ID,
				OwnerName:    owner.Name,
				Unit:         p.Unit,
				Description:  p.Description,
				TrackingCode: p.TrackingCode,
			})
		if err != nil {
			return err
		}
		return r.History.Append(ctx, e)
	})
	if err != nil {
		return nil, failed("register_package", err)
	}
	metrics.PackagesRegisteredTotal.Inc()
	committed(model.CategoryRegistration)
	return p, nil
}

// ConfirmPickup checks ownership before state, so a foreign package is Forbidden in any state.
func (s *LedgerServiceImpl) ConfirmPickup(ctx context.Context, caller model.Principal, id uuid.UUID) (*model.Package, error) {
	if err := requireRole(caller, model.RoleResident); err != nil {
		return nil, err
	}

	var p *model.Package
	err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		if p, err = r.Packages.GetByIDForUpdate(ctx, id); err != nil {
			return err
		}
		if p.OwnerID != caller.ID {
			return fmt.Errorf("package %s belongs to another resident: %w", id, errs.ErrForbidden)
		}
		if p.Status != model.PackagePending {
			return fmt.Errorf("package %s already picked up: %w", id, errs.ErrBadState)
		}
		prev := p.Status
		at := s.now()
		if err := r.Packages.MarkPickedUp(ctx, id, at); err != nil {
			return err
		}
		p.Status, p.PickedUpAt = model.PackagePickedUp, &at

		e, err := newEntry(&caller.ID, &p.ID,
			fmt.Sprintf("Morador confirmou recebimento: %s", p.Description),
			model.CategoryPickup, at, model.PickupSnapshot{
				PackageID:      p.ID,
				Description:    p.Description,
				PreviousStatus: prev,
			})
		if err != nil {
			return err
		}
		return r.History.Append(ctx, e)
	})
	if err != nil {
		return nil, failed("confirm_pickup", err)
	}
	metrics.PickupsConfirmedTotal.Inc()
	committed(model.CategoryPickup)
	return p, nil
}

// Delete appends the removal entry, then removes the package. Earlier entries keep a nulled reference.
func (s *LedgerServiceImpl) Delete(ctx context.Context, caller model.Principal, id uuid.UUID) error {
	if err := requireRole(caller, model.RoleManager); err != nil {
		return err
	}
	err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos) error {
		p, err := r.Packages.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		e, err := newEntry(&caller.ID, &p.ID,
			fmt.Sprintf("Encomenda '%s' (ID: %s) foi removida.", p.Description, p.ID),
			model.CategoryRemoval, s.now(), model.RemovalSnapshot{
				PackageID:   p.ID,
				Description: p.Description,
				Unit:        p.Unit,
				OwnerID:     p.OwnerID,
			})
		if err != nil {
			return err
		}
		if err := r.History.Append(ctx, e); err != nil {
			return err
		}
		return r.Packages.Delete(ctx, id)
	})
	if err != nil {
		return failed("delete_package", err)
	}
	metrics.PackagesDeletedTotal.Inc()
	committed(model.CategoryRemoval)
	return nil
}

// List scopes residents to their own packages with a pattern status filter.
// Doorkeepers and managers see every package with an exact status filter.
func (s *LedgerServiceImpl) List(ctx context.Context, caller model.Principal, status string) ([]model.PackageView, error) {
	if err := requireRole(caller); err != nil {
		return nil, err
	}
	f := model.PackageFilter{}
	if !isAllFilter(status) {
		f.Status = strings.TrimSpace(status)
	}
	if caller.Role == model.RoleResident {
		owner := caller.ID
		f.OwnerID, f.Pattern = &owner, true
	}
	views, err := s.reads.Packages.List(ctx, f)
	if err != nil {
		return nil, failed("list_packages", err)
	}
	return s.resolver.Attach(ctx, views)
}

// Get returns a package; residents may only read their own.
func (s *LedgerServiceImpl) Get(ctx context.Context, caller model.Principal, id uuid.UUID) (*model.PackageView, error) {
	if err := requireRole(caller); err != nil {
		return nil, err
	}
	v, err := s.reads.Packages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.Role == model.RoleResident && v.OwnerID != caller.ID {
		return nil, fmt.Errorf("package %s belongs to another resident: %w", id, errs.ErrForbidden)
	}
	out, err := s.resolver.Attach(ctx, []model.PackageView{*v})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}
