package models

import (
	"time"

	"github.com/google/uuid"
)

// Interaction types
const (
	InteractionSwipeLeft  = "swipe_left"
	InteractionSwipeRight = "swipe_right"
	InteractionSkip       = "skip"
	InteractionTwist      = "twist"
)

// Interaction is an append-only event. It is the only input to fork counters.
type Interaction struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ActorID   uuid.UUID `db:"actor_id" json:"actor_id"`
	ForkID    uuid.UUID `db:"fork_id" json:"fork_id"`
	Type      string    `db:"interaction_type" json:"type"`
	DwellMs   *int      `db:"dwell_ms" json:"dwell_ms,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// InteractionInput is the write-surface payload for a swipe, skip or twist.
// ID is optional; clients that retry should resend the same ID.
type InteractionInput struct {
	ID      *uuid.UUID `json:"id"`
	ForkID  uuid.UUID  `json:"-"`
	Type    string     `json:"type" binding:"required,oneof=swipe_left swipe_right skip twist"`
	DwellMs *int       `json:"dwell_ms" binding:"omitempty,min=0"`
}

func ValidInteractionType(t string) bool {
	switch t {
	case InteractionSwipeLeft, InteractionSwipeRight, InteractionSkip, InteractionTwist:
		return true
	default:
		return false
	}
}

// CounterColumn maps an interaction type to the fork counter it increments.
func CounterColumn(t string) (string, bool) {
	switch t {
	case InteractionSwipeLeft:
		return "left_count", true
	case InteractionSwipeRight:
		return "right_count", true
	case InteractionSkip:
		return "skip_count", true
	case InteractionTwist:
		return "twist_count", true
	}
	return "", false
}
