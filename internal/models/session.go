package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is the actor's current intent. Last write wins.
type Session struct {
	ActorID   uuid.UUID `db:"actor_id" json:"-"`
	Lane      string    `db:"lane" json:"lane"`
	Energy    string    `db:"energy" json:"energy"`
	Mood      string    `db:"mood" json:"mood,omitempty"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// UpdateSessionInput is the payload for PUT /session.
type UpdateSessionInput struct {
	Lane   string `json:"lane" binding:"required,lane"`
	Energy string `json:"energy" binding:"required,energy"`
	Mood   string `json:"mood" binding:"omitempty,mood"`
}
