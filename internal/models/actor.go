package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Actor statuses
const (
	ActorStatusActive    = "active"
	ActorStatusSuspended = "suspended"
	ActorStatusBanned    = "banned"
)

// Actor is a device-bound identity. DeviceFingerprint holds a keyed digest, never the raw value.
type Actor struct {
	ID                uuid.UUID `db:"id" json:"id"`
	DeviceFingerprint string    `db:"device_fingerprint" json:"-"`
	TrustScore        float64   `db:"trust_score" json:"trust_score"`
	Status            string    `db:"status" json:"status"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// NewActor creates an active actor with the default trust score.
func NewActor(fingerprintDigest string, now time.Time) *Actor {
	return &Actor{
		ID:                uuid.New(),
		DeviceFingerprint: fingerprintDigest,
		TrustScore:        TrustScoreDefault,
		Status:            ActorStatusActive,
		CreatedAt:         now,
	}
}

func (a *Actor) IsActive() bool {
	return a.Status == ActorStatusActive
}

// CanCreate reports whether the trust and status gates allow content creation.
func (a *Actor) CanCreate() bool {
	return a.IsActive() && a.TrustScore >= TrustScoreCreateMin
}

// Mask is a rotating pseudonym bound to one actor within one lane.
type Mask struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	ActorID   uuid.UUID  `db:"actor_id" json:"-"`
	Lane      string     `db:"lane" json:"lane"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	RotatesAt *time.Time `db:"rotates_at" json:"rotates_at,omitempty"`
}

// NewMask creates a mask that rotates MaskRotation after now.
func NewMask(actorID uuid.UUID, lane string, now time.Time) *Mask {
	rotatesAt := now.Add(MaskRotation)
	return &Mask{
		ID:        uuid.New(),
		ActorID:   actorID,
		Lane:      lane,
		CreatedAt: now,
		RotatesAt: &rotatesAt,
	}
}

// CurrentAt reports whether the mask is still assignable at t.
func (m *Mask) CurrentAt(t time.Time) bool {
	return m.RotatesAt == nil || t.Before(*m.RotatesAt)
}

// Claims defines the structure of the device token claims.
type Claims struct {
	ActorID string `json:"actor_id"`
	jwt.RegisteredClaims
}
