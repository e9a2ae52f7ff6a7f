// Package identity issues per-lane rotating masks and keeps the actor's
// current session intent.
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/metrics"
	"github.com/k1tz03/Forkfall/internal/models"
	"github.com/k1tz03/Forkfall/internal/repository"
)

// maxSwapAttempts bounds the read/compare-and-swap loop. Each lost race means
// another caller installed a mask, so the next read almost always settles.
const maxSwapAttempts = 5

type Manager struct {
	masks    repository.MaskRepository
	sessions repository.SessionRepository
	logger   *zap.Logger
}

func NewManager(masks repository.MaskRepository, sessions repository.SessionRepository, logger *zap.Logger) *Manager {
	return &Manager{masks: masks, sessions: sessions, logger: logger}
}

// ResolveMask returns the actor's current mask in lane, issuing a new one on
// first use or once the current one has reached its rotation time.
func (m *Manager) ResolveMask(ctx context.Context, actorID uuid.UUID, lane string, now time.Time) (*models.Mask, error) {
	if !models.IsLane(lane) {
		return nil, models.NewValidationError("lane", "unknown lane")
	}

	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		current, err := m.masks.GetCurrent(ctx, actorID, lane)
		if err != nil {
			return nil, fmt.Errorf("get current mask: %w", err)
		}
		if current != nil && current.CurrentAt(now) {
			return current, nil
		}

		prevID, rotation := uuid.Nil, "first"
		if current != nil {
			prevID, rotation = current.ID, "expired"
		}
		next := models.NewMask(actorID, lane, now)
		swapped, err := m.masks.CompareAndSwap(ctx, prevID, next)
		if err != nil {
			return nil, fmt.Errorf("swap mask: %w", err)
		}
		if swapped {
			metrics.MaskRotations.WithLabelValues(rotation).Inc()
			m.logger.Debug("Mask issued",
				zap.String("actor_id", actorID.String()),
				zap.String("lane", lane),
				zap.String("mask_id", next.ID.String()),
				zap.String("rotation", rotation))
			return next, nil
		}
	}
	return nil, fmt.Errorf("mask for lane %s did not settle after %d attempts", lane, maxSwapAttempts)
}

// MaskHistory lists every mask the actor has held in lane, oldest first.
func (m *Manager) MaskHistory(ctx context.Context, actorID uuid.UUID, lane string) ([]*models.Mask, error) {
	return m.masks.ListByActorLane(ctx, actorID, lane)
}

// GetSession returns the actor's stored intent, or nil when there is none or it
// is older than models.SessionExpiry.
func (m *Manager) GetSession(ctx context.Context, actorID uuid.UUID, now time.Time) (*models.Session, error) {
	session, err := m.sessions.Get(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil || now.Sub(session.UpdatedAt) > models.SessionExpiry {
		return nil, nil
	}
	return session, nil
}

// PutSession replaces the actor's intent. Last write wins.
func (m *Manager) PutSession(ctx context.Context, actorID uuid.UUID, in models.UpdateSessionInput, now time.Time) (*models.Session, error) {
	if !models.IsLane(in.Lane) {
		return nil, models.NewValidationError("lane", "unknown lane")
	}
	if !models.IsEnergy(in.Energy) {
		return nil, models.NewValidationError("energy", "unknown energy")
	}
	if in.Mood != "" && !models.IsMood(in.Mood) {
		return nil, models.NewValidationError("mood", "unknown mood")
	}
	session := &models.Session{
		ActorID:   actorID,
		Lane:      in.Lane,
		Energy:    in.Energy,
		Mood:      in.Mood,
		UpdatedAt: now,
	}
	if err := m.sessions.Put(ctx, session); err != nil {
		return nil, fmt.Errorf("put session: %w", err)
	}
	return session, nil
}
