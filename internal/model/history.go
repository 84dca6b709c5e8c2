package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/recebi/internal/errs"
)

// Category tags a history entry. Values are persisted verbatim.
type Category string

const (
	CategoryRegistration Category = "Registro de Encomenda"
	CategoryPickup       Category = "Confirmação de retirada"
	CategoryActorCreated Category = "Criação de usuário"
	CategoryActorUpdated Category = "Atualização de usuário"
	CategoryRemoval      Category = "Remoção de encomenda"
)

// Placeholders substituted for references that can no longer be resolved.
const (
	RemovedActorName = "Usuário removido"
	NoPackageRef     = "Sem referência"
	NoUnitRef        = "Sem apartamento"
	NotAvailable     = "N/A"
)

// HistoryEntry is an immutable audit record. Exactly one is appended per state change.
type HistoryEntry struct {
	ID        uuid.UUID
	ActorID   *uuid.UUID // nil when the acting actor is gone or the action was a system bootstrap
	PackageID *uuid.UUID // nil for actor management or after the package was removed
	Action    string
	Category  Category
	CreatedAt time.Time
	Detail    Detail // optional
}

// HistoryView is a history entry with resolved actor and package names.
type HistoryView struct {
	HistoryEntry
	ActorName          string
	PackageDescription string
	PackageUnit        string
}

// DetailKind discriminates Detail payloads on the wire and in storage.
type DetailKind string

const (
	KindCreation     DetailKind = "creation"
	KindRegistration DetailKind = "registration"
	KindPickup       DetailKind = "pickup"
	KindRemoval      DetailKind = "removal"
	KindFieldDiff    DetailKind = "field_diff"
)

// Detail is the structured payload of a history entry.
type Detail interface {
	Kind() DetailKind
}

// CreationSnapshot records a freshly created actor.
type CreationSnapshot struct {
	ActorID uuid.UUID `json:"actorId"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Role    Role      `json:"role"`
	Unit    *string   `json:"unit,omitempty"`
	Phone   *string   `json:"phone,omitempty"`
}

func (CreationSnapshot) Kind() DetailKind { return KindCreation }

// RegistrationSnapshot records a package as it was registered.
type RegistrationSnapshot struct {
	PackageID    uuid.UUID `json:"packageId"`
	OwnerID      uuid.UUID `json:"ownerId"`
	OwnerName    string    `json:"ownerName"`
	Unit         string    `json:"unit"`
	Description  string    `json:"description"`
	TrackingCode *string   `json:"trackingCode,omitempty"`
}

func (RegistrationSnapshot) Kind() DetailKind { return KindRegistration }

// PickupSnapshot records the package state before pickup.
type PickupSnapshot struct {
	PackageID      uuid.UUID     `json:"packageId"`
	Description    string        `json:"description"`
	PreviousStatus PackageStatus `json:"previousStatus"`
}

func (PickupSnapshot) Kind() DetailKind { return KindPickup }

// RemovalSnapshot keeps what is left of a deleted package.
type RemovalSnapshot struct {
	PackageID   uuid.UUID `json:"packageId"`
	Description string    `json:"description"`
	Unit        string    `json:"unit"`
	OwnerID     uuid.UUID `json:"ownerId"`
}

func (RemovalSnapshot) Kind() DetailKind { return KindRemoval }

// FieldChange is one entry of a FieldDiff. Info replaces Old/New for secrets.
type FieldChange struct {
	Old  *string `json:"old,omitempty"`
	New  *string `json:"new,omitempty"`
	Info string  `json:"info,omitempty"`
}

// FieldDiff maps field names to their change.
type FieldDiff map[string]FieldChange

func (FieldDiff) Kind() DetailKind { return KindFieldDiff }

type detailEnvelope struct {
	Kind DetailKind      `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodeDetail serializes d into its tagged JSON form. A nil detail encodes to nil.
func EncodeDetail(d Detail) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return json.Marshal(detailEnvelope{Kind: d.Kind(), Data: data})
}

// DecodeDetail parses the tagged JSON form produced by EncodeDetail.
func DecodeDetail(b []byte) (Detail, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var env detailEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("detail envelope: %w", err)
	}
	var d Detail
	switch env.Kind {
	case KindCreation:
		var v CreationSnapshot
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		d = v
	case KindRegistration:
		var v RegistrationSnapshot
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		d = v
	case KindPickup:
		var v PickupSnapshot
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		d = v
	case KindRemoval:
		var v RemovalSnapshot
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		d = v
	case KindFieldDiff:
		v := FieldDiff{}
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		d = v
	default:
		return nil, fmt.Errorf("%w: unknown detail kind %q", errs.ErrValidation, env.Kind)
	}
	return d, nil
}
