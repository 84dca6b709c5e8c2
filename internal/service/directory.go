package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/and161185/recebi/internal/crypto"
	"github.com/and161185/recebi/internal/errs"
	"github.com/and161185/recebi/internal/model"
	"github.com/and161185/recebi/internal/repository"
)

const (
	searchLimit     = 10
	searchMinLength = 2
	secretChanged   = "Senha alterada"
)

// DirectoryService manages building actors. Every mutation is recorded in the history log.
type DirectoryService interface {
	// Create adds a new active actor.
	Create(ctx context.Context, caller model.Principal, d model.ActorDraft) (*model.Actor, error)
	// Update applies a partial change; changed is false when the patch matched the stored actor.
	Update(ctx context.Context, caller model.Principal, id uuid.UUID, p model.ActorPatch) (a *model.Actor, changed bool, err error)
	// Get loads one actor.
	Get(ctx context.Context, caller model.Principal, id uuid.UUID) (*model.Actor, error)
	// List returns actors, optionally filtered by a status pattern.
	List(ctx context.Context, caller model.Principal, status string) ([]model.Actor, error)
	// Search finds active residents by name fragment.
	Search(ctx context.Context, caller model.Principal, pattern string) ([]model.Actor, error)
	// Authenticate checks credentials and returns the active actor.
	Authenticate(ctx context.Context, email, secret string) (*model.Actor, error)
	// Bootstrap creates the first manager when none exists.
	Bootstrap(ctx context.Context, d model.ActorDraft) (bool, error)
}

type DirectoryServiceImpl struct {
	reads repository.Repos
	uow   repository.UnitOfWork
	now   func() time.Time
}

// NewDirectoryService constructs DirectoryService. reads serves queries outside of any unit of work.
func NewDirectoryService(reads repository.Repos, uow repository.UnitOfWork) *DirectoryServiceImpl {
	return &DirectoryServiceImpl{reads: reads, uow: uow, now: time.Now}
}

func validateDraft(d *model.ActorDraft) error {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.TrimSpace(d.Email)
	d.Phone = optional(d.Phone)
	d.Unit = optional(d.Unit)
	switch {
	case d.Name == "":
		return fmt.Errorf("%w: name is required", errs.ErrValidation)
	case d.Email == "" || !strings.Contains(d.Email, "@"):
		return fmt.Errorf("%w: valid email is required", errs.ErrValidation)
	case d.Secret == "":
		return fmt.Errorf("%w: secret is required", errs.ErrValidation)
	case !d.Role.Valid():
		return fmt.Errorf("%w: unknown role %q", errs.ErrValidation, d.Role)
	case d.Role == model.RoleResident && d.Unit == nil:
		return fmt.Errorf("%w: unit is required for residents", errs.ErrValidation)
	}
	return nil
}

func newActor(d model.ActorDraft) (*model.Actor, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	hash, salt, err := pkgcrypto.NewSecret(d.Secret)
	if err != nil {
		return nil, err
	}
	return &model.Actor{
		ID:         id,
		Name:       d.Name,
		Email:      d.Email,
		SecretHash: hash,
		SecretSalt: salt,
		Role:       d.Role,
		Phone:      d.Phone,
		Unit:       d.Unit,
		Status:     model.StatusActive,
	}, nil
}

func creationEntry(actor *uuid.UUID, a *model.Actor, at time.Time) (*model.HistoryEntry, error) {
	action := fmt.Sprintf("Síndico criou: %s (%s)", a.Name, a.Role)
	if actor == nil {
		action = fmt.Sprintf("Sistema criou: %s (%s)", a.Name, a.Role)
	}
	return newEntry(actor, nil, action, model.CategoryActorCreated, at, model.CreationSnapshot{
		ActorID: a.ID,
		Name:    a.Name,
		Email:   a.Email,
		Role:    a.Role,
		Unit:    a.Unit,
		Phone:   a.Phone,
	})
}

// Create validates the draft, stores the actor as active and appends a creation entry.
func (s *DirectoryServiceImpl) Create(ctx context.Context, caller model.Principal, d model.ActorDraft) (*model.Actor, error) {
	if err := requireRole(caller, model.RoleManager); err != nil {
		return nil, err
	}
	if err := validateDraft(&d); err != nil {
		return nil, err
	}
	a, err := newActor(d)
	if err != nil {
		return nil, err
	}
	e, err := creationEntry(&caller.ID, a, s.now())
	if err != nil {
		return nil, err
	}

	err = s.uow.Do(ctx, func(ctx context.Context, r repository.Repos) error {
		if err := r.Actors.Create(ctx, a); err != nil {
			return err
		}
		return r.History.Append(ctx, e)
	})
	if err != nil {
		return nil, failed("create_actor", err)
	}
	committed(e.Category)
	return a, nil
}

type diffBuilder struct{ diff model.FieldDiff }

func (b *diffBuilder) str(field string, cur *string, next string) {
	if *cur == next {
		return
	}
	old := *cur
	b.diff[field] = model.FieldChange{Old: &old, New: &next}
	*cur = next
}

func (b *diffBuilder) opt(field string, cur **string, next *string) {
	switch {
	case *cur == nil && next == nil:
		return
	case *cur != nil && next != nil && **cur == *next:
		return
	}
	b.diff[field] = model.FieldChange{Old: *cur, New: next}
	*cur = next
}

// applyPatch mutates a and returns the per-field diff.
func applyPatch(a *model.Actor, p model.ActorPatch) (model.FieldDiff, error) {
	b := diffBuilder{diff: model.FieldDiff{}}

	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be blank", errs.ErrValidation)
		}
		b.str("Nome", &a.Name, name)
	}
	if p.Email != nil {
		email := strings.TrimSpace(*p.Email)
		if email == "" || !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: valid email is required", errs.ErrValidation)
		}
		b.str("Email", &a.Email, email)
	}
	if p.Secret != nil && *p.Secret != "" && !pkgcrypto.VerifySecret([]byte(*p.Secret), a.SecretSalt, a.SecretHash) {
		hash, salt, err := pkgcrypto.NewSecret(*p.Secret)
		if err != nil {
			return nil, err
		}
		a.SecretHash, a.SecretSalt = hash, salt
		b.diff["Senha"] = model.FieldChange{Info: secretChanged}
	}
	if p.Phone != nil {
		b.opt("Telefone", &a.Phone, optional(p.Phone))
	}
	if p.Unit != nil {
		unit := optional(p.Unit)
		if unit == nil && a.Role == model.RoleResident {
			return nil, fmt.Errorf("%w: unit is required for residents", errs.ErrValidation)
		}
		b.opt("Apartamento", &a.Unit, unit)
	}
	if p.Status != nil {
		// Values outside Ativo/Inativo are ignored.
		if st := model.ActorStatus(strings.TrimSpace(*p.Status)); st.Valid() && st != a.Status {
			old, next := string(a.Status), string(st)
			b.diff["Status"] = model.FieldChange{Old: &old, New: &next}
			a.Status = st
		}
	}
	return b.diff, nil
}

// Update applies only the present fields of p. Nothing is written when no field changed.
func (s *DirectoryServiceImpl) Update(ctx context.Context, caller model.Principal, id uuid.UUID, p model.ActorPatch) (*model.Actor, bool, error) {
	if err := requireRole(caller, model.RoleManager); err != nil {
		return nil, false, err
	}
	if id == caller.ID && p.Status != nil && model.ActorStatus(strings.TrimSpace(*p.Status)) == model.StatusInactive {
		return nil, false, fmt.Errorf("self-deactivation: %w", errs.ErrForbidden)
	}

	var (
		out     *model.Actor
		changed bool
		cat     model.Category
	)
	err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos) error {
		a, err := r.Actors.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		diff, err := applyPatch(a, p)
		if err != nil {
			return err
		}
		out = a
		if len(diff) == 0 {
			return nil
		}
		if err := r.Actors.Update(ctx, a); err != nil {
			return err
		}
		e, err := newEntry(&caller.ID, nil, fmt.Sprintf("Síndico atualizou o usuário %s", a.Name),
			model.CategoryActorUpdated, s.now(), diff)
		if err != nil {
			return err
		}
		changed, cat = true, e.Category
		return r.History.Append(ctx, e)
	})
	if err != nil {
		return nil, false, failed("update_actor", err)
	}
	if changed {
		committed(cat)
	}
	return out, changed, nil
}

// Get loads one actor by ID.
func (s *DirectoryServiceImpl) Get(ctx context.Context, caller model.Principal, id uuid.UUID) (*model.Actor, error) {
	if err := requireRole(caller, model.RoleManager); err != nil {
		return nil, err
	}
	return s.reads.Actors.GetByID(ctx, id)
}

// List returns actors ordered by name. status is a case-insensitive pattern.
func (s *DirectoryServiceImpl) List(ctx context.Context, caller model.Principal, status string) ([]model.Actor, error) {
	if err := requireRole(caller, model.RoleManager); err != nil {
		return nil, err
	}
	if isAllFilter(status) {
		status = ""
	}
	return s.reads.Actors.List(ctx, strings.TrimSpace(status))
}

// Search returns at most ten active residents whose name contains pattern.
func (s *DirectoryServiceImpl) Search(ctx context.Context, caller model.Principal, pattern string) ([]model.Actor, error) {
	if err := requireRole(caller, model.RoleManager, model.RoleDoorkeeper); err != nil {
		return nil, err
	}
	pattern = strings.TrimSpace(pattern)
	if utf8.RuneCountInString(pattern) < searchMinLength {
		return []model.Actor{}, nil
	}
	return s.reads.Actors.SearchResidents(ctx, pattern, searchLimit)
}

// Authenticate fails closed: unknown email, wrong secret and inactive actor all yield ErrUnauthorized.
func (s *DirectoryServiceImpl) Authenticate(ctx context.Context, email, secret string) (*model.Actor, error) {
	email = strings.TrimSpace(email)
	if email == "" || secret == "" {
		return nil, errs.ErrUnauthorized
	}
	a, err := s.reads.Actors.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrUnauthorized
		}
		return nil, err
	}
	if !pkgcrypto.VerifySecret([]byte(secret), a.SecretSalt, a.SecretHash) || !a.Active() {
		return nil, errs.ErrUnauthorized
	}
	return a, nil
}

// Bootstrap creates a manager from d unless one already exists.
func (s *DirectoryServiceImpl) Bootstrap(ctx context.Context, d model.ActorDraft) (bool, error) {
	d.Role = model.RoleManager
	if err := validateDraft(&d); err != nil {
		return false, err
	}
	created := false
	err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos) error {
		n, err := r.Actors.CountByRole(ctx, model.RoleManager)
		if err != nil || n > 0 {
			return err
		}
		a, err := newActor(d)
		if err != nil {
			return err
		}
		e, err := creationEntry(nil, a, s.now())
		if err != nil {
			return err
		}
		if err := r.Actors.Create(ctx, a); err != nil {
			return err
		}
		created = true
		return r.History.Append(ctx, e)
	})
	if err != nil {
		return false, err
	}
	if created {
		committed(model.CategoryActorCreated)
	}
	return created, nil
}
