package httpserver

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/recebi/internal/model"
)

type loginRequest struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Actor     actorJSON `json:"actor"`
}

type actorJSON struct {
	ID        uuid.UUID         `json:"id"`
	Name      string            `json:"name"`
	Email     string            `json:"email"`
	Role      model.Role        `json:"role"`
	Phone     *string           `json:"phone,omitempty"`
	Unit      *string           `json:"unit,omitempty"`
	Status    model.ActorStatus `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
}

func toActorJSON(a *model.Actor) actorJSON {
	return actorJSON{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		Role:      a.Role,
		Phone:     a.Phone,
		Unit:      a.Unit,
		Status:    a.Status,
		CreatedAt: a.CreatedAt,
	}
}

func toActorsJSON(as []model.Actor) []actorJSON {
	out := make([]actorJSON, len(as))
	for i := range as {
		out[i] = toActorJSON(&as[i])
	}
	return out
}

type createActorRequest struct {
	Name   string     `json:"name"`
	Email  string     `json:"email"`
	Secret string     `json:"secret"`
	Role   model.Role `json:"role"`
	Phone  *string    `json:"phone"`
	Unit   *string    `json:"unit"`
}

type updateActorRequest struct {
	Name   *string `json:"name"`
	Email  *string `json:"email"`
	Secret *string `json:"secret"`
	Phone  *string `json:"phone"`
	Unit   *string `json:"unit"`
	Status *string `json:"status"`
}

type updateActorResponse struct {
	Message string    `json:"message"`
	Changed bool      `json:"changed"`
	Actor   actorJSON `json:"actor"`
}

type registerPackageRequest struct {
	OwnerID      uuid.UUID `json:"ownerId"`
	Description  string    `json:"description"`
	Unit         string    `json:"unit"`
	TrackingCode *string   `json:"trackingCode"`
}

type packageJSON struct {
	ID             uuid.UUID           `json:"id"`
	Unit           string              `json:"unit"`
	OwnerID        uuid.UUID           `json:"ownerId"`
	OwnerName      string              `json:"ownerName,omitempty"`
	DoorkeeperName string              `json:"doorkeeperName,omitempty"`
	Description    string              `json:"description"`
	TrackingCode   *string             `json:"trackingCode,omitempty"`
	Status         model.PackageStatus `json:"status"`
	EnteredAt      time.Time           `json:"enteredAt"`
	PickedUpAt     *time.Time          `json:"pickedUpAt,omitempty"`
}

func toPackageJSON(p *model.Package) packageJSON {
	return packageJSON{
		ID:           p.ID,
		Unit:         p.Unit,
		OwnerID:      p.OwnerID,
		Description:  p.Description,
		TrackingCode: p.TrackingCode,
		Status:       p.Status,
		EnteredAt:    p.EnteredAt,
		PickedUpAt:   p.PickedUpAt,
	}
}

func toPackageViewJSON(v *model.PackageView) packageJSON {
	out := toPackageJSON(&v.Package)
	out.OwnerName, out.DoorkeeperName = v.OwnerName, v.DoorkeeperName
	return out
}

func toPackageViewsJSON(vs []model.PackageView) []packageJSON {
	out := make([]packageJSON, len(vs))
	for i := range vs {
		out[i] = toPackageViewJSON(&vs[i])
	}
	return out
}

type historyJSON struct {
	ID                 uuid.UUID       `json:"id"`
	ActorID            *uuid.UUID      `json:"actorId,omitempty"`
	ActorName          string          `json:"actorName"`
	PackageID          *uuid.UUID      `json:"packageId,omitempty"`
	PackageDescription string          `json:"packageDescription"`
	PackageUnit        string          `json:"packageUnit"`
	Action             string          `json:"action"`
	Category           model.Category  `json:"category"`
	CreatedAt          time.Time       `json:"createdAt"`
	Detail             json.RawMessage `json:"detail,omitempty"`
}

func toHistoryJSON(v *model.HistoryView) (historyJSON, error) {
	detail, err := model.EncodeDetail(v.Detail)
	if err != nil {
		return historyJSON{}, err
	}
	return historyJSON{
		ID:                 v.ID,
		ActorID:            v.ActorID,
		ActorName:          v.ActorName,
		PackageID:          v.PackageID,
		PackageDescription: v.PackageDescription,
		PackageUnit:        v.PackageUnit,
		Action:             v.Action,
		Category:           v.Category,
		CreatedAt:          v.CreatedAt,
		Detail:             detail,
	}, nil
}

func toHistoriesJSON(vs []model.HistoryView) ([]historyJSON, error) {
	out := make([]historyJSON, len(vs))
	for i := range vs {
		h, err := toHistoryJSON(&vs[i])
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}
