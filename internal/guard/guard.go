// Package guard admits or denies writes based on actor standing and rolling
// per-actor rate windows.
package guard

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

// Kind is the class of write being admitted.
type Kind string

const (
	KindCreate   Kind = "create"
	KindInteract Kind = "interact"
)

func (k Kind) window() (models.RateWindow, bool) {
	switch k {
	case KindCreate:
		return models.CreateWindow, true
	case KindInteract:
		return models.InteractionWindow, true
	}
	return models.RateWindow{}, false
}

type Guard struct {
	actors  repository.ActorRepository
	counter repository.RateCounter
	logger  *zap.Logger
}

func New(actors repository.ActorRepository, counter repository.RateCounter, logger *zap.Logger) *Guard {
	return &Guard{actors: actors, counter: counter, logger: logger}
}

// CheckActive loads the actor and rejects suspended or banned ones.
func (g *Guard) CheckActive(ctx context.Context, actorID uuid.UUID) (*models.Actor, error) {
	actor, err := g.actors.GetByID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("load actor: %w", err)
	}
	if !actor.IsActive() {
		return nil, &models.TrustError{Reason: "actor is " + actor.Status}
	}
	return actor, nil
}

// CheckWrite returns nil when the write may proceed. Standing is checked
// before the window, so a denied actor never consumes budget.
func (g *Guard) CheckWrite(ctx context.Context, actorID uuid.UUID, kind Kind, now time.Time) error {
	window, ok := kind.window()
	if !ok {
		return fmt.Errorf("unknown write kind %q", kind)
	}

	actor, err := g.CheckActive(ctx, actorID)
	if err != nil {
		g.deny(kind, "status", actorID, err)
		return err
	}
	if kind == KindCreate && actor.TrustScore < models.TrustScoreCreateMin {
		err := &models.TrustError{Reason: "trust score below creation floor"}
		g.deny(kind, "trust", actorID, err)
		return err
	}

	key := actorID.String() + ":" + string(kind) + ":" + window.Name
	count, allowed, err := g.counter.IncrementAndCheck(ctx, key, window, now)
	if err != nil {
		g.logger.Error("Rate counter failed", zap.String("actor_id", actorID.String()), zap.String("kind", string(kind)), zap.Error(err))
		return fmt.Errorf("rate counter: %w", err)
	}
	if !allowed {
		err := &models.RateLimitError{Window: window.Name, Limit: window.Limit}
		g.deny(kind, "rate", actorID, err, zap.Int("count", count))
		return err
	}
	return nil
}

func (g *Guard) deny(kind Kind, reason string, actorID uuid.UUID, err error, fields ...zap.Field) {
	metrics.GuardDenials.WithLabelValues(string(kind), reason).Inc()
	g.logger.Info("Write denied",
		append(fields,
			zap.String("actor_id", actorID.String()),
			zap.String("kind", string(kind)),
			zap.String("reason", reason),
			zap.Error(err))...)
}
