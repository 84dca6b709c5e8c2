package model

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

// OutboxMessage is a history entry queued for the external feed.
type OutboxMessage struct {
	ID          uuid.UUID
	Topic       string
	Key         []byte
	Payload     []byte
	Attempts    int
	LastError   *string
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// HistoryEvent is the wire form of a history entry on the external feed.
type HistoryEvent struct {
	ID        uuid.UUID       `json:"id"`
	ActorID   *uuid.UUID      `json:"actorId,omitempty"`
	PackageID *uuid.UUID      `json:"packageId,omitempty"`
	Action    string          `json:"action"`
	Category  Category        `json:"category"`
	CreatedAt time.Time       `json:"createdAt"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// NewHistoryEvent converts an entry into its feed form.
func NewHistoryEvent(e *HistoryEntry) (HistoryEvent, error) {
	detail, err := EncodeDetail(e.Detail)
	if err != nil {
		return HistoryEvent{}, err
	}
	return HistoryEvent{
		ID:        e.ID,
		ActorID:   e.ActorID,
		PackageID: e.PackageID,
		Action:    e.Action,
		Category:  e.Category,
		CreatedAt: e.CreatedAt,
		Detail:    detail,
	}, nil
}
