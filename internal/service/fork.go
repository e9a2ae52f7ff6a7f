package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/guard"
	"github.com/k1tz03/Forkfall/internal/identity"
	"github.com/k1tz03/Forkfall/internal/models"
	"github.com/k1tz03/Forkfall/internal/moderation"
	"github.com/k1tz03/Forkfall/internal/repository"
)

// maxLineageDepth bounds the parent walk so a corrupted chain cannot loop forever.
const maxLineageDepth = 1000

// InteractResult reports whether the interaction was new and under which mask it was made.
type InteractResult struct {
	Interaction *models.Interaction `json:"interaction"`
	Applied     bool                `json:"applied"`
	Mask        *models.Mask        `json:"mask,omitempty"`
}

type ForkService interface {
	CreateFork(ctx context.Context, actorID uuid.UUID, in models.CreateForkInput) (*models.Fork, error)
	// GetFork resolves a fork by id whether or not it is hidden from feeds.
	GetFork(ctx context.Context, id uuid.UUID) (*models.Fork, error)
	GetChildren(ctx context.Context, id uuid.UUID) ([]*models.Fork, error)
	// Lineage returns the chain from the root ancestor down to the fork itself.
	Lineage(ctx context.Context, id uuid.UUID) ([]*models.Fork, error)
	Interact(ctx context.Context, actorID uuid.UUID, in models.InteractionInput) (*InteractResult, error)
	Report(ctx context.Context, actorID, forkID uuid.UUID, in models.CreateReportInput) (*models.Report, error)
	TransitionReport(ctx context.Context, reportID uuid.UUID, in models.TransitionReportInput) (*models.Report, error)
}

type forkService struct {
	forks        repository.ForkRepository
	interactions repository.InteractionRepository
	guard        *guard.Guard
	identity     *identity.Manager
	gate         *moderation.Gate
	logger       *zap.Logger
	now          func() time.Time
}

func NewForkService(forks repository.ForkRepository, interactions repository.InteractionRepository, g *guard.Guard, id *identity.Manager, gate *moderation.Gate, logger *zap.Logger) ForkService {
	return &forkService{
		forks:        forks,
		interactions: interactions,
		guard:        g,
		identity:     id,
		gate:         gate,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *forkService) CreateFork(ctx context.Context, actorID uuid.UUID, in models.CreateForkInput) (*models.Fork, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.ParentForkID != nil {
		if _, err := s.forks.GetByID(ctx, *in.ParentForkID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, models.NewValidationError("parent_fork_id", "parent fork does not exist")
			}
			return nil, fmt.Errorf("get parent fork: %w", err)
		}
	}

	now := s.now()
	if err := s.guard.CheckWrite(ctx, actorID, guard.KindCreate, now); err != nil {
		return nil, err
	}
	mask, err := s.identity.ResolveMask(ctx, actorID, in.Lane, now)
	if err != nil {
		return nil, err
	}

	fork := &models.Fork{
		ID:                uuid.New(),
		Prompt:            in.Prompt,
		LeftLabel:         in.LeftLabel,
		RightLabel:        in.RightLabel,
		Lane:              in.Lane,
		Mood:              in.Mood,
		Energy:            in.Energy,
		CognitiveLoad:     in.CognitiveLoad,
		ParentForkID:      in.ParentForkID,
		MutationType:      models.CanonicalMutation(in.MutationType),
		SafetyAgeGate:     models.AgeGateAll,
		SafetySensitivity: models.SensitivityNormal,
		SafetyFlags:       pq.StringArray{},
		CreatedByActorID:  actorID,
		CreatedByMaskID:   &mask.ID,
		CreatedAt:         now,
	}
	if err := s.forks.Create(ctx, fork); err != nil {
		return nil, fmt.Errorf("create fork: %w", err)
	}

	s.logger.Info("Fork created",
		zap.String("fork_id", fork.ID.String()),
		zap.String("lane", fork.Lane),
		zap.String("mask_id", mask.ID.String()))
	return fork, nil
}

func (s *forkService) GetFork(ctx context.Context, id uuid.UUID) (*models.Fork, error) {
	return s.forks.GetByID(ctx, id)
}

func (s *forkService) GetChildren(ctx context.Context, id uuid.UUID) ([]*models.Fork, error) {
	if _, err := s.forks.GetByID(ctx, id); err != nil {
		return nil, err
	}
	children, err := s.forks.GetByParent(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.gate.FilterVisible(ctx, children)
}

func (s *forkService) Lineage(ctx context.Context, id uuid.UUID) ([]*models.Fork, error) {
	var chain []*models.Fork
	visited := make(map[uuid.UUID]struct{})
	next := &id
	for next != nil {
		if _, seen := visited[*next]; seen || len(chain) >= maxLineageDepth {
			s.logger.Error("Fork lineage does not terminate", zap.String("fork_id", id.String()), zap.Int("depth", len(chain)))
			return nil, models.ErrLineageCycle
		}
		visited[*next] = struct{}{}

		fork, err := s.forks.GetByID(ctx, *next)
		if err != nil {
			if len(chain) > 0 && errors.Is(err, models.ErrNotFound) {
				return nil, fmt.Errorf("dangling parent %s: %w", *next, models.ErrLineageCycle)
			}
			return nil, err
		}
		chain = append(chain, fork)
		next = fork.ParentForkID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (s *forkService) Interact(ctx context.Context, actorID uuid.UUID, in models.InteractionInput) (*InteractResult, error) {
	if !models.ValidInteractionType(in.Type) {
		return nil, models.NewValidationError("type", "unknown interaction type")
	}
	if in.DwellMs != nil && *in.DwellMs < 0 {
		return nil, models.NewValidationError("dwell_ms", "dwell time cannot be negative")
	}
	// A retried interaction is answered before the rate guard so it does not
	// spend budget twice.
	if in.ID != nil {
		prior, err := s.interactions.GetByID(ctx, *in.ID)
		switch {
		case err == nil && prior.ActorID == actorID:
			return &InteractResult{Interaction: prior, Applied: false}, nil
		case err == nil:
			return nil, models.NewValidationError("id", "interaction id already in use")
		case !errors.Is(err, models.ErrNotFound):
			return nil, fmt.Errorf("get interaction: %w", err)
		}
	}
	fork, err := s.forks.GetByID(ctx, in.ForkID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.guard.CheckWrite(ctx, actorID, guard.KindInteract, now); err != nil {
		return nil, err
	}
	mask, err := s.identity.ResolveMask(ctx, actorID, fork.Lane, now)
	if err != nil {
		return nil, err
	}

	interaction := &models.Interaction{
		ID:        uuid.New(),
		ActorID:   actorID,
		ForkID:    in.ForkID,
		Type:      in.Type,
		DwellMs:   in.DwellMs,
		CreatedAt: now,
	}
	if in.ID != nil {
		interaction.ID = *in.ID
	}

	applied, err := s.forks.RecordInteraction(ctx, interaction)
	if err != nil {
		return nil, fmt.Errorf("record interaction: %w", err)
	}
	return &InteractResult{Interaction: interaction, Applied: applied, Mask: mask}, nil
}

func (s *forkService) Report(ctx context.Context, actorID, forkID uuid.UUID, in models.CreateReportInput) (*models.Report, error) {
	if _, err := s.guard.CheckActive(ctx, actorID); err != nil {
		return nil, err
	}
	return s.gate.Report(ctx, actorID, forkID, in.Reason, s.now())
}

func (s *forkService) TransitionReport(ctx context.Context, reportID uuid.UUID, in models.TransitionReportInput) (*models.Report, error) {
	return s.gate.Transition(ctx, reportID, in.State, s.now())
}
