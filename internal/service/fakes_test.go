package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/and161185/recebi/internal/crypto"
	"github.com/and161185/recebi/internal/errs"
	"github.com/and161185/recebi/internal/model"
	"github.com/and161185/recebi/internal/repository"
)

// memStore backs every fake repository. Not safe for concurrent use.
type memStore struct {
	actors   map[uuid.UUID]model.Actor
	packages map[uuid.UUID]model.Package
	history  []model.HistoryEntry

	appendErr error
	uowCalls  int
}

func newMemStore() *memStore {
	return &memStore{
		actors:   map[uuid.UUID]model.Actor{},
		packages: map[uuid.UUID]model.Package{},
	}
}

func (s *memStore) repos() repository.Repos {
	return repository.Repos{
		Actors:   memActors{s},
		Packages: memPackages{s},
		History:  memHistory{s},
		Outbox:   memOutbox{},
	}
}

func (s *memStore) snapshot() *memStore {
	cp := newMemStore()
	for k, v := range s.actors {
		cp.actors[k] = v
	}
	for k, v := range s.packages {
		cp.packages[k] = v
	}
	cp.history = append([]model.HistoryEntry(nil), s.history...)
	return cp
}

// Do emulates a transaction: state is restored when fn fails.
func (s *memStore) Do(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) error {
	s.uowCalls++
	snap := s.snapshot()
	if err := fn(ctx, s.repos()); err != nil {
		s.actors, s.packages, s.history = snap.actors, snap.packages, snap.history
		return err
	}
	return nil
}

var _ repository.UnitOfWork = (*memStore)(nil)

// seed stores an actor directly, bypassing services and history.
func (s *memStore) seed(name string, role model.Role, unit string) model.Principal {
	hash, salt, err := pkgcrypto.NewSecret("pw-" + name)
	if err != nil {
		panic(err)
	}
	a := model.Actor{
		ID:         uuid.Must(uuid.NewV4()),
		Name:       name,
		Email:      strings.ToLower(name) + "@predio.com",
		SecretHash: hash,
		SecretSalt: salt,
		Role:       role,
		Status:     model.StatusActive,
		CreatedAt:  time.Now(),
	}
	if unit != "" {
		a.Unit = &unit
	}
	s.actors[a.ID] = a
	return model.Principal{ID: a.ID, Name: a.Name, Role: a.Role, Status: a.Status}
}

func (s *memStore) count(c model.Category) int {
	n := 0
	for _, e := range s.history {
		if e.Category == c {
			n++
		}
	}
	return n
}

type memActors struct{ s *memStore }

var _ repository.ActorRepository = memActors{}

func (r memActors) emailTaken(email string, except uuid.UUID) bool {
	for id, a := range r.s.actors {
		if id != except && strings.EqualFold(a.Email, email) {
			return true
		}
	}
	return false
}

func (r memActors) Create(_ context.Context, a *model.Actor) error {
	if r.emailTaken(a.Email, uuid.Nil) {
		return errs.ErrConflict
	}
	a.CreatedAt = time.Now()
	r.s.actors[a.ID] = *a
	return nil
}

func (r memActors) GetByID(_ context.Context, id uuid.UUID) (*model.Actor, error) {
	a, ok := r.s.actors[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &a, nil
}

func (r memActors) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Actor, error) {
	return r.GetByID(ctx, id)
}

func (r memActors) GetByEmail(_ context.Context, email string) (*model.Actor, error) {
	for _, a := range r.s.actors {
		if strings.EqualFold(a.Email, email) {
			return &a, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r memActors) Update(_ context.Context, a *model.Actor) error {
	if _, ok := r.s.actors[a.ID]; !ok {
		return errs.ErrNotFound
	}
	if r.emailTaken(a.Email, a.ID) {
		return errs.ErrConflict
	}
	r.s.actors[a.ID] = *a
	return nil
}

func sortedActors(m map[uuid.UUID]model.Actor, keep func(model.Actor) bool) []model.Actor {
	var out []model.Actor
	for _, a := range m {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// List approximates ILIKE by ignoring '%' wildcards.
func (r memActors) List(_ context.Context, statusPattern string) ([]model.Actor, error) {
	want := strings.Trim(statusPattern, "%")
	return sortedActors(r.s.actors, func(a model.Actor) bool {
		return want == "" || strings.EqualFold(string(a.Status), want)
	}), nil
}

func (r memActors) SearchResidents(_ context.Context, namePart string, limit int) ([]model.Actor, error) {
	out := sortedActors(r.s.actors, func(a model.Actor) bool {
		return a.Role == model.RoleResident && a.Active() &&
			strings.Contains(strings.ToLower(a.Name), strings.ToLower(namePart))
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memActors) CountByRole(_ context.Context, role model.Role) (int, error) {
	n := 0
	for _, a := range r.s.actors {
		if a.Role == role {
			n++
		}
	}
	return n, nil
}

type memPackages struct{ s *memStore }

var _ repository.PackageRepository = memPackages{}

func (r memPackages) view(p model.Package) model.PackageView {
	v := model.PackageView{Package: p, OwnerName: model.NotAvailable}
	if a, ok := r.s.actors[p.OwnerID]; ok {
		v.OwnerName = a.Name
	}
	return v
}

func (r memPackages) Create(_ context.Context, p *model.Package) error {
	if _, ok := r.s.actors[p.OwnerID]; !ok {
		return errs.ErrNotFound
	}
	r.s.packages[p.ID] = *p
	return nil
}

func (r memPackages) GetByID(_ context.Context, id uuid.UUID) (*model.PackageView, error) {
	p, ok := r.s.packages[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	v := r.view(p)
	return &v, nil
}

func (r memPackages) GetByIDForUpdate(_ context.Context, id uuid.UUID) (*model.Package, error) {
	p, ok := r.s.packages[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &p, nil
}

func (r memPackages) MarkPickedUp(_ context.Context, id uuid.UUID, at time.Time) error {
	p, ok := r.s.packages[id]
	if !ok || p.Status != model.PackagePending {
		return errs.ErrBadState
	}
	p.Status, p.PickedUpAt = model.PackagePickedUp, &at
	r.s.packages[id] = p
	return nil
}

// Delete nulls history references like the ON DELETE SET NULL foreign key.
func (r memPackages) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.s.packages[id]; !ok {
		return errs.ErrNotFound
	}
	delete(r.s.packages, id)
	for i := range r.s.history {
		if p := r.s.history[i].PackageID; p != nil && *p == id {
			r.s.history[i].PackageID = nil
		}
	}
	return nil
}

func (r memPackages) List(_ context.Context, f model.PackageFilter) ([]model.PackageView, error) {
	var out []model.PackageView
	for _, p := range r.s.packages {
		if f.OwnerID != nil && p.OwnerID != *f.OwnerID {
			continue
		}
		if f.Status != "" {
			if f.Pattern && !strings.EqualFold(string(p.Status), strings.Trim(f.Status, "%")) {
				continue
			}
			if !f.Pattern && string(p.Status) != f.Status {
				continue
			}
		}
		out = append(out, r.view(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnteredAt.After(out[j].EnteredAt) })
	return out, nil
}

type memHistory struct{ s *memStore }

var _ repository.HistoryRepository = memHistory{}

func (r memHistory) Append(_ context.Context, e *model.HistoryEntry) error {
	if r.s.appendErr != nil {
		return r.s.appendErr
	}
	if e.Category == model.CategoryRegistration {
		for _, h := range r.s.history {
			if h.Category == e.Category && h.PackageID != nil && *h.PackageID == *e.PackageID {
				return errs.ErrConflict
			}
		}
	}
	r.s.history = append(r.s.history, *e)
	return nil
}

func (r memHistory) view(e model.HistoryEntry) model.HistoryView {
	v := model.HistoryView{
		HistoryEntry:       e,
		ActorName:          model.RemovedActorName,
		PackageDescription: model.NoPackageRef,
		PackageUnit:        model.NoUnitRef,
	}
	if e.ActorID != nil {
		if a, ok := r.s.actors[*e.ActorID]; ok {
			v.ActorName = a.Name
		}
	}
	if e.PackageID != nil {
		if p, ok := r.s.packages[*e.PackageID]; ok {
			v.PackageDescription, v.PackageUnit = p.Description, p.Unit
		}
	}
	return v
}

func (r memHistory) GetByID(_ context.Context, id uuid.UUID) (*model.HistoryView, error) {
	for _, e := range r.s.history {
		if e.ID == id {
			v := r.view(e)
			return &v, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r memHistory) newestFirst(keep func(model.HistoryEntry) bool) []model.HistoryView {
	var out []model.HistoryView
	for i := len(r.s.history) - 1; i >= 0; i-- {
		if keep(r.s.history[i]) {
			out = append(out, r.view(r.s.history[i]))
		}
	}
	return out
}

func (r memHistory) List(context.Context) ([]model.HistoryView, error) {
	return r.newestFirst(func(model.HistoryEntry) bool { return true }), nil
}

func (r memHistory) ListByActor(_ context.Context, actorID uuid.UUID) ([]model.HistoryView, error) {
	return r.newestFirst(func(e model.HistoryEntry) bool { return e.ActorID != nil && *e.ActorID == actorID }), nil
}

func (r memHistory) FindByPackageAndCategory(_ context.Context, packageID uuid.UUID, c model.Category) (*model.HistoryEntry, error) {
	for _, e := range r.s.history {
		if e.Category == c && e.PackageID != nil && *e.PackageID == packageID {
			return &e, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r memHistory) RegistrarNames(_ context.Context, packageIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	out := map[uuid.UUID]string{}
	for _, id := range packageIDs {
		e, err := r.FindByPackageAndCategory(context.Background(), id, model.CategoryRegistration)
		if err != nil || e.ActorID == nil {
			continue
		}
		if a, ok := r.s.actors[*e.ActorID]; ok {
			out[id] = a.Name
		}
	}
	return out, nil
}

type memOutbox struct{}

func (memOutbox) ClaimBatch(context.Context, int, int) ([]model.OutboxMessage, error) {
	return nil, nil
}
func (memOutbox) MarkPublished(context.Context, uuid.UUID, time.Time) error { return nil }
func (memOutbox) MarkFailed(context.Context, uuid.UUID, string) error       { return nil }
