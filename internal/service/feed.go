package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/k1tz03/Forkfall/internal/guard"
	"github.com/k1tz03/Forkfall/internal/identity"
	"github.com/k1tz03/Forkfall/internal/metrics"
	"github.com/k1tz03/Forkfall/internal/models"
	"github.com/k1tz03/Forkfall/internal/moderation"
	"github.com/k1tz03/Forkfall/internal/ranking"
	"github.com/k1tz03/Forkfall/internal/repository"
)

// FeedRequest asks for one page. Empty Lane and Energy fall back to the stored session.
type FeedRequest struct {
	ActorID  uuid.UUID
	Lane     string
	Energy   string
	Cursor   string
	PageSize int
}

type FeedItem struct {
	*models.Fork
	Score float64 `json:"score"`
}

type FeedResponse struct {
	Forks      []FeedItem `json:"forks"`
	NextCursor string     `json:"next_cursor,omitempty"`
	HasMore    bool       `json:"has_more"`
	Lane       string     `json:"lane,omitempty"`
	Energy     string     `json:"energy,omitempty"`
}

type FeedService interface {
	GetFeed(ctx context.Context, req FeedRequest) (*FeedResponse, error)
}

type feedService struct {
	forks          repository.ForkRepository
	interactions   repository.InteractionRepository
	guard          *guard.Guard
	identity       *identity.Manager
	gate           *moderation.Gate
	candidateLimit int
	logger         *zap.Logger
	now            func() time.Time
}

func NewFeedService(forks repository.ForkRepository, interactions repository.InteractionRepository, g *guard.Guard,
	id *identity.Manager, gate *moderation.Gate, candidateLimit int, logger *zap.Logger) FeedService {
	return &feedService{
		forks:          forks,
		interactions:   interactions,
		guard:          g,
		identity:       id,
		gate:           gate,
		candidateLimit: candidateLimit,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *feedService) GetFeed(ctx context.Context, req FeedRequest) (*FeedResponse, error) {
	now := s.now()
	if _, err := s.guard.CheckActive(ctx, req.ActorID); err != nil {
		return nil, err
	}

	lane, energy, err := s.resolveIntent(ctx, req, now)
	if err != nil {
		return nil, err
	}

	st, ok := ranking.DecodeCursor(req.Cursor, req.ActorID, now)
	if req.Cursor != "" && !ok {
		metrics.CursorResets.Inc()
		s.logger.Debug("Ignoring unusable cursor", zap.String("actor_id", req.ActorID.String()))
	}

	candidates, err := s.forks.GetCandidates(ctx, models.CandidateFilter{Limit: s.candidateLimit})
	if err != nil {
		return nil, fmt.Errorf("get candidates: %w", err)
	}
	visible, err := s.gate.FilterVisible(ctx, candidates)
	if err != nil {
		return nil, err
	}
	metrics.FeedCandidates.Observe(float64(len(visible)))

	ids := make([]uuid.UUID, len(visible))
	for i, f := range visible {
		ids[i] = f.ID
	}

	var skipped, actioned map[uuid.UUID]struct{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		skipped, err = s.interactions.SkippedForkIDs(gctx, req.ActorID, ids)
		return err
	})
	g.Go(func() error {
		var err error
		actioned, err = s.gate.ActionedForks(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("Failed to load scoring inputs", zap.String("actor_id", req.ActorID.String()), zap.Error(err))
		return nil, fmt.Errorf("load scoring inputs: %w", err)
	}

	scoring := &ranking.Context{Lane: lane, Energy: energy, Skipped: skipped, Actioned: actioned}
	scored := ranking.ScoreAll(visible, scoring, st.AsOf)
	page := ranking.Compose(scored, req.ActorID, req.PageSize, st)

	resp := &FeedResponse{
		Forks:  make([]FeedItem, len(page.Forks)),
		Lane:   lane,
		Energy: energy,
	}
	for i, sc := range page.Forks {
		resp.Forks[i] = FeedItem{Fork: sc.Fork, Score: sc.Score.Total}
	}
	if page.Next != nil {
		resp.NextCursor = page.Next.Encode()
		resp.HasMore = true
	}

	metrics.FeedPages.WithLabelValues(strconv.FormatBool(!resp.HasMore)).Inc()
	metrics.FeedPageSize.Observe(float64(len(resp.Forks)))
	metrics.DiversitySwaps.Add(float64(page.Swaps))
	s.logger.Debug("Feed page composed",
		zap.String("actor_id", req.ActorID.String()),
		zap.Int("page", st.Page),
		zap.Int("forks", len(resp.Forks)),
		zap.Int("exploration", page.Exploration),
		zap.Int("swaps", page.Swaps))
	return resp, nil
}

// resolveIntent merges explicit feed parameters over the stored session and
// refreshes the session when the caller stated a complete intent.
func (s *feedService) resolveIntent(ctx context.Context, req FeedRequest, now time.Time) (string, string, error) {
	if req.Lane != "" && !models.IsLane(req.Lane) {
		return "", "", models.NewValidationError("lane", "unknown lane")
	}
	if req.Energy != "" && !models.IsEnergy(req.Energy) {
		return "", "", models.NewValidationError("energy", "unknown energy")
	}

	session, err := s.identity.GetSession(ctx, req.ActorID, now)
	if err != nil {
		// A missing session only weakens personalization.
		s.logger.Warn("Failed to load session", zap.String("actor_id", req.ActorID.String()), zap.Error(err))
	}

	lane, energy, mood := req.Lane, req.Energy, ""
	if session != nil {
		if lane == "" {
			lane = session.Lane
		}
		if energy == "" {
			energy = session.Energy
		}
		mood = session.Mood
	}

	explicit := req.Lane != "" || req.Energy != ""
	if explicit && lane != "" && energy != "" {
		in := models.UpdateSessionInput{Lane: lane, Energy: energy, Mood: mood}
		if _, err := s.identity.PutSession(ctx, req.ActorID, in, now); err != nil {
			s.logger.Warn("Failed to refresh session", zap.String("actor_id", req.ActorID.String()), zap.Error(err))
		}
	}
	return lane, energy, nil
}
