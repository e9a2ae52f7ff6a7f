package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/k1tz03/Forkfall/internal/models"
)

// ForkRepository is the content store. Getters return models.ErrNotFound for
// missing rows.
type ForkRepository interface {
	Create(ctx context.Context, fork *models.Fork) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Fork, error)
	GetCandidates(ctx context.Context, filter models.CandidateFilter) ([]*models.Fork, error)
	GetByParent(ctx context.Context, parentID uuid.UUID) ([]*models.Fork, error)
	IncrementCounter(ctx context.Context, forkID uuid.UUID, interactionType string) error
	// RecordInteraction appends the interaction and bumps the matching counter in
	// one step. A repeated interaction id is ignored and reported as not applied.
	RecordInteraction(ctx context.Context, interaction *models.Interaction) (bool, error)
}

type InteractionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Interaction, error)
	SkippedForkIDs(ctx context.Context, actorID uuid.UUID, forkIDs []uuid.UUID) (map[uuid.UUID]struct{}, error)
	ListByActor(ctx context.Context, actorID uuid.UUID, limit int) ([]*models.Interaction, error)
}

type ActorRepository interface {
	Create(ctx context.Context, actor *models.Actor) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Actor, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*models.Actor, error)
	// AdjustTrustScore adds delta atomically and clamps the result at floor.
	AdjustTrustScore(ctx context.Context, id uuid.UUID, delta, floor float64) (float64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

// ReportRepository is the append-only report log.
type ReportRepository interface {
	Append(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error)
	ListByFork(ctx context.Context, forkID uuid.UUID) ([]*models.Report, error)
	ListByForks(ctx context.Context, forkIDs []uuid.UUID) (map[uuid.UUID][]*models.Report, error)
	// UpdateState moves a report from one state to another. It fails with
	// models.ErrInvalidTransition when the stored state is no longer from.
	UpdateState(ctx context.Context, id uuid.UUID, from, to string, at time.Time) error
}

type MaskRepository interface {
	// GetCurrent returns the mask the (actor, lane) pointer refers to, or nil.
	GetCurrent(ctx context.Context, actorID uuid.UUID, lane string) (*models.Mask, error)
	// CompareAndSwap stores next and points (actor, lane) at it, but only when the
	// pointer still refers to prevID (uuid.Nil for no mask yet).
	CompareAndSwap(ctx context.Context, prevID uuid.UUID, next *models.Mask) (bool, error)
	ListByActorLane(ctx context.Context, actorID uuid.UUID, lane string) ([]*models.Mask, error)
}

type SessionRepository interface {
	Get(ctx context.Context, actorID uuid.UUID) (*models.Session, error)
	Put(ctx context.Context, session *models.Session) error
}

// RateCounter is a keyed bucketed counter with an atomic compare-and-increment.
type RateCounter interface {
	// IncrementAndCheck counts the current window for key. When the count is below
	// the window limit it increments and returns (count+1, true); otherwise it
	// returns (count, false) without incrementing.
	IncrementAndCheck(ctx context.Context, key string, window models.RateWindow, now time.Time) (int, bool, error)
}
