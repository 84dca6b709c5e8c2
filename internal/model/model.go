// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is the actor discriminator stored in actors.role.
type Role string

const (
	RoleResident   Role = "Morador"
	RoleDoorkeeper Role = "Porteiro"
	RoleManager    Role = "Sindico"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleResident, RoleDoorkeeper, RoleManager:
		return true
	}
	return false
}

// ActorStatus gates every role-restricted command.
type ActorStatus string

const (
	StatusActive   ActorStatus = "Ativo"
	StatusInactive ActorStatus = "Inativo"
)

// Valid reports whether s is Active or Inactive.
func (s ActorStatus) Valid() bool { return s == StatusActive || s == StatusInactive }

// PackageStatus is the package lifecycle state. Pending -> PickedUp is the only transition.
type PackageStatus string

const (
	PackagePending  PackageStatus = "Pendente"
	PackagePickedUp PackageStatus = "Retirada"
)

// Tokens collects an issued access token.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// Actor is any user of the building: resident, doorkeeper or manager.
type Actor struct {
	ID         uuid.UUID // PK
	Name       string
	Email      string // unique
	SecretHash []byte // Argon2id(secret, SecretSalt)
	SecretSalt []byte
	Role       Role
	Phone      *string
	Unit       *string // required for residents
	Status     ActorStatus
	CreatedAt  time.Time
}

// Active reports whether the actor may issue commands.
func (a *Actor) Active() bool { return a.Status == StatusActive }

// ActorDraft is the input of actor creation.
type ActorDraft struct {
	Name   string
	Email  string
	Secret string
	Role   Role
	Phone  *string
	Unit   *string
}

// ActorPatch carries only the fields a manager wants to change; nil means untouched.
type ActorPatch struct {
	Name   *string
	Email  *string
	Secret *string
	Phone  *string
	Unit   *string
	Status *string // kept as raw text: unknown values are ignored, not rejected
}

// Principal is the authenticated caller passed explicitly into every core operation.
type Principal struct {
	ID     uuid.UUID
	Name   string
	Role   Role
	Status ActorStatus
}

// Package is a parcel held at the reception for a resident.
type Package struct {
	ID           uuid.UUID
	Unit         string
	OwnerID      uuid.UUID // FK -> actors.id
	Description  string
	TrackingCode *string
	Status       PackageStatus
	EnteredAt    time.Time
	PickedUpAt   *time.Time
}

// PackageView is a package with resolved owner and doorkeeper-of-record names.
type PackageView struct {
	Package
	OwnerName      string
	DoorkeeperName string
}

// RegisterPackage is the doorkeeper's registration command.
type RegisterPackage struct {
	OwnerID      uuid.UUID
	Description  string
	Unit         string
	TrackingCode *string
}

// PackageFilter narrows package listings. Empty Status means all.
type PackageFilter struct {
	Status  string
	OwnerID *uuid.UUID
	// Pattern switches Status from exact match to case-insensitive pattern match.
	Pattern bool
}
