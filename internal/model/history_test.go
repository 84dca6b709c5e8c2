package model

import (
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/recebi/internal/errs"
)

func strp(s string) *string { return &s }

func TestDetail_RoundTrip_EveryKind(t *testing.T) {
	pkgID := uuid.Must(uuid.NewV4())
	ownerID := uuid.Must(uuid.NewV4())

	cases := []Detail{
		CreationSnapshot{ActorID: ownerID, Name: "Ana", Email: "ana@x", Role: RoleResident, Unit: strp("5A")},
		RegistrationSnapshot{PackageID: pkgID, OwnerID: ownerID, OwnerName: "Ana", Unit: "5A", Description: "Pacote X", TrackingCode: strp("T1")},
		PickupSnapshot{PackageID: pkgID, Description: "Pacote X", PreviousStatus: PackagePending},
		RemovalSnapshot{PackageID: pkgID, Description: "Pacote X", Unit: "5A", OwnerID: ownerID},
		FieldDiff{
			"Nome":  {Old: strp("Ana"), New: strp("Ana Maria")},
			"Senha": {Info: "Senha alterada"},
		},
	}
	for _, in := range cases {
		b, err := EncodeDetail(in)
		require.NoError(t, err)
		out, err := DecodeDetail(b)
		require.NoError(t, err)
		require.Equal(t, in, out, "kind %s", in.Kind())
	}
}

func TestDetail_NilAndUnknown(t *testing.T) {
	b, err := EncodeDetail(nil)
	require.NoError(t, err)
	require.Nil(t, b)

	d, err := DecodeDetail(nil)
	require.NoError(t, err)
	require.Nil(t, d)

	_, err = DecodeDetail([]byte(`{"kind":"mystery","data":{}}`))
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = DecodeDetail([]byte(`not json`))
	require.Error(t, err)
}

func TestRoleAndStatusValid(t *testing.T) {
	require.True(t, RoleResident.Valid())
	require.True(t, RoleManager.Valid())
	require.False(t, Role("Zelador").Valid())
	require.True(t, StatusInactive.Valid())
	require.False(t, ActorStatus("Suspenso").Valid())
}
