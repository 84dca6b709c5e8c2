package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	pkgcrypto "github.com/and161185/recebi/internal/crypto"
	"github.com/and161185/recebi/internal/errs"
	"github.com/and161185/recebi/internal/model"
)

func strp(s string) *string { return &s }

func newDirectory(st *memStore) *DirectoryServiceImpl {
	return NewDirectoryService(st.repos(), st)
}

func anaDraft() model.ActorDraft {
	return model.ActorDraft{
		Name:   "Ana",
		Email:  "ana@predio.com",
		Secret: "segredo",
		Role:   model.RoleResident,
		Unit:   strp("5A"),
	}
}

func TestDirectory_Create_AppendsCreationEntry(t *testing.T) {
	st := newMemStore()
	mgr := st.seed("Sandra", model.RoleManager, "")
	dir := newDirectory(st)

	a, err := dir.Create(context.Background(), mgr, anaDraft())
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, a.Status)
	require.True(t, pkgcrypto.VerifySecret([]byte("segredo"), a.SecretSalt, a.SecretHash))

	require.Len(t, st.history, 1)
	e := st.history[0]
	require.Equal(t, model.CategoryActorCreated, e.Category)
	require.Equal(t, mgr.ID, *e.ActorID)
	require.Nil(t, e.PackageID)
	snap, ok := e.Detail.(model.CreationSnapshot)
	require.True(t, ok)
	require.Equal(t, a.ID, snap.ActorID)
	require.Equal(t, "5A", *snap.Unit)
}

func TestDirectory_Create_Rejections(t *testing.T) {
	st := newMemStore()
	mgr := st.seed("Sandra", model.RoleManager, "")
	door := st.seed("Carlos", model.RoleDoorkeeper, "")
	dir := newDirectory(st)
	ctx := context.Background()

	_, err := dir.Create(ctx, door, anaDraft())
	require.ErrorIs(t, err, errs.ErrForbidden)

	inactive := mgr
	inactive.Status = model.StatusInactive
	_, err = dir.Create(ctx, inactive, anaDraft())
	require.ErrorIs(t, err, errs.ErrForbidden)

	noUnit := anaDraft()
	noUnit.Unit = strp("  ")
	_, err = dir.Create(ctx, mgr, noUnit)
	require.ErrorIs(t, err, errs.ErrValidation)

	badRole := anaDraft()
	badRole.Role = "Zelador"
	_, err = dir.Create(ctx, mgr, badRole)
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = dir.Create(ctx, mgr, anaDraft())
	require.NoError(t, err)
	dup := anaDraft()
	dup.Email = "ANA@predio.com"
	_, err = dir.Create(ctx, mgr, dup)
	require.ErrorIs(t, err, errs.ErrConflict)
	require.Len(t, st.history, 1, "failed create must not leave history behind")
}

func TestDirectory_Update_DiffAndNoop(t *testing.T) {
	st := newMemStore()
	mgr := st.seed("Sandra", model.RoleManager, "")
	dir := newDirectory(st)
	ctx := context.Background()
	a, err := dir.Create(ctx, mgr, anaDraft())
	require.NoError(t, err)

	got, changed, err := dir.Update(ctx, mgr, a.ID, model.ActorPatch{
		Name:   strp("Ana Maria"),
		Secret: strp("novo-segredo"),
		Phone:  strp("1199999"),
		Status: strp("Suspenso"),
	})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "Ana Maria", got.Name)
	require.Equal(t, model.StatusActive, got.Status, "unknown status is ignored")
	require.Len(t, st.history, 2)

	diff, ok := st.history[1].Detail.(model.FieldDiff)
	require.True(t, ok)
	require.Equal(t, model.CategoryActorUpdated, st.history[1].Category)
	require.Equal(t, "Ana", *diff["Nome"].Old)
	require.Equal(t, "Ana Maria", *diff["Nome"].New)
	require.Equal(t, model.FieldChange{Info: "Senha alterada"}, diff["Senha"])
	require.Nil(t, diff["Telefone"].Old)
	require.NotContains(t, diff, "Status")

	_, changed, err = dir.Update(ctx, mgr, a.ID, model.ActorPatch{
		Name:   strp("Ana Maria"),
		Secret: strp("novo-segredo"),
		Unit:   strp("5A"),
	})
	require.NoError(t, err)
	require.False(t, changed)
	require.Len(t, st.history, 2, "no change means no entry")

	_, changed, err = dir.Update(ctx, mgr, a.ID, model.ActorPatch{Status: strp("Inativo")})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, model.StatusInactive, st.actors[a.ID].Status)
}

func TestDirectory_Update_SelfDeactivationForbidden(t *testing.T) {
	st := newMemStore()
	mgr := st.seed("Sandra", model.RoleManager, "")
	dir := newDirectory(st)

	_, _, err := dir.Update(context.Background(), mgr, mgr.ID, model.ActorPatch{Status: strp("Inativo")})
	require.ErrorIs(t, err, errs.ErrForbidden)
	require.Empty(t, st.history)
	require.Equal(t, model.StatusActive, st.actors[mgr.ID].Status)
	require.Zero(t, st.uowCalls)
}

func TestDirectory_Update_Errors(t *testing.T) {
	st := newMemStore()
	mgr := st.seed("Sandra", model.RoleManager, "")
	ana := st.seed("Ana", model.RoleResident, "5A")
	st.seed("Bia", model.RoleResident, "6B")
	dir := newDirectory(st)
	ctx := context.Background()

	_, _, err := dir.Update(ctx, mgr, uuid.Must(uuid.NewV4()), model.ActorPatch{Name: strp("X")})
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, _, err = dir.Update(ctx, mgr, ana.ID, model.ActorPatch{Email: strp("bia@predio.com")})
	require.ErrorIs(t, err, errs.ErrConflict)

	_, _, err = dir.Update(ctx, mgr, ana.ID, model.ActorPatch{Unit: strp("")})
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Empty(t, st.history)
}

func TestDirectory_Search(t *testing.T) {
	st := newMemStore()
	mgr := st.seed("Sandra", model.RoleManager, "")
	door := st.seed("Carlos", model.RoleDoorkeeper, "")
	ana := st.seed("Ana", model.RoleResident, "5A")
	for i := 0; i < 12; i++ {
		st.seed(fmt.Sprintf("Mariana %02d", i), model.RoleResident, "1A")
	}
	gone := st.actors[ana.ID]
	gone.Status = model.StatusInactive
	st.actors[ana.ID] = gone
	dir := newDirectory(st)
	ctx := context.Background()

	res, err := dir.Search(ctx, door, " a ")
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Empty(t, res)

	res, err = dir.Search(ctx, mgr, "AN")
	require.NoError(t, err)
	require.Len(t, res, 10)
	require.Equal(t, "Mariana 00", res[0].Name)
	for _, a := range res {
		require.NotEqual(t, ana.ID, a.ID, "inactive residents are not searchable")
	}

	_, err = dir.Search(ctx, ana, "Mariana")
	require.ErrorIs(t, err, errs.ErrForbidden)
}

func TestDirectory_List_And_Get(t *testing.T) {
	st := newMemStore()
	mgr := st.seed("Sandra", model.RoleManager, "")
	ana := st.seed("Ana", model.RoleResident, "5A")
	dir := newDirectory(st)
	ctx := context.Background()

	all, err := dir.List(ctx, mgr, "todos")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "Ana", all[0].Name)

	inactive, err := dir.List(ctx, mgr, "inativo")
	require.NoError(t, err)
	require.Empty(t, inactive)

	got, err := dir.Get(ctx, mgr, ana.ID)
	require.NoError(t, err)
	require.Equal(t, "Ana", got.Name)

	_, err = dir.Get(ctx, ana, ana.ID)
	require.ErrorIs(t, err, errs.ErrForbidden)
}

func TestDirectory_Authenticate(t *testing.T) {
	st := newMemStore()
	ana := st.seed("Ana", model.RoleResident, "5A")
	dir := newDirectory(st)
	ctx := context.Background()

	a, err := dir.Authenticate(ctx, "ana@predio.com", "pw-Ana")
	require.NoError(t, err)
	require.Equal(t, ana.ID, a.ID)

	_, err = dir.Authenticate(ctx, "ana@predio.com", "wrong")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = dir.Authenticate(ctx, "nobody@predio.com", "pw-Ana")
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	off := st.actors[ana.ID]
	off.Status = model.StatusInactive
	st.actors[ana.ID] = off
	_, err = dir.Authenticate(ctx, "ana@predio.com", "pw-Ana")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestDirectory_Bootstrap_Once(t *testing.T) {
	st := newMemStore()
	dir := newDirectory(st)
	ctx := context.Background()
	d := model.ActorDraft{Name: "Admin", Email: "admin@predio.com", Secret: "root"}

	created, err := dir.Bootstrap(ctx, d)
	require.NoError(t, err)
	require.True(t, created)
	require.Len(t, st.history, 1)
	require.Nil(t, st.history[0].ActorID)

	created, err = dir.Bootstrap(ctx, d)
	require.NoError(t, err)
	require.False(t, created)
	require.Len(t, st.actors, 1)
}
