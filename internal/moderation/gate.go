// Package moderation derives fork visibility from the report log and applies
// report review transitions.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/metrics"
	"github.com/k1tz03/Forkfall/internal/models"
	"github.com/k1tz03/Forkfall/internal/repository"
)

// TrustStep is subtracted from a creator's trust score for each actioned report.
const TrustStep = 0.1

// Notifier is told when a fork crosses the auto-hide threshold.
type Notifier interface {
	NotifyHidden(ctx context.Context, fork *models.Fork, reports []*models.Report) error
}

type Gate struct {
	reports  repository.ReportRepository
	forks    repository.ForkRepository
	actors   repository.ActorRepository
	notifier Notifier
	hidden   *expirable.LRU[uuid.UUID, bool]
	logger   *zap.Logger
}

// NewGate builds a gate. notifier may be nil. Visibility verdicts are cached for
// cacheTTL and dropped on every report write made through the gate.
func NewGate(reports repository.ReportRepository, forks repository.ForkRepository, actors repository.ActorRepository,
	notifier Notifier, cacheSize int, cacheTTL time.Duration, logger *zap.Logger) *Gate {
	return &Gate{
		reports:  reports,
		forks:    forks,
		actors:   actors,
		notifier: notifier,
		hidden:   expirable.NewLRU[uuid.UUID, bool](cacheSize, nil, cacheTTL),
		logger:   logger,
	}
}

// Hidden reports whether enough distinct actors hold a pending or actioned
// report against the fork.
func Hidden(reports []*models.Report) bool {
	reporters := make(map[uuid.UUID]struct{}, len(reports))
	for _, r := range reports {
		if r.CountsTowardHide() {
			reporters[r.ActorID] = struct{}{}
		}
	}
	return len(reporters) >= models.AutoHideReportCount
}

// IsHidden evaluates a single fork.
func (g *Gate) IsHidden(ctx context.Context, forkID uuid.UUID) (bool, error) {
	if hidden, ok := g.hidden.Get(forkID); ok {
		return hidden, nil
	}
	reports, err := g.reports.ListByFork(ctx, forkID)
	if err != nil {
		return false, fmt.Errorf("list reports: %w", err)
	}
	hidden := Hidden(reports)
	g.hidden.Add(forkID, hidden)
	return hidden, nil
}

// FilterVisible drops hidden forks, keeping the input order.
func (g *Gate) FilterVisible(ctx context.Context, forks []*models.Fork) ([]*models.Fork, error) {
	verdict := make(map[uuid.UUID]bool, len(forks))
	var missing []uuid.UUID
	for _, f := range forks {
		if hidden, ok := g.hidden.Get(f.ID); ok {
			verdict[f.ID] = hidden
			continue
		}
		missing = append(missing, f.ID)
	}

	if len(missing) > 0 {
		byFork, err := g.reports.ListByForks(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("list reports: %w", err)
		}
		for _, id := range missing {
			hidden := Hidden(byFork[id])
			verdict[id] = hidden
			g.hidden.Add(id, hidden)
		}
	}

	visible := make([]*models.Fork, 0, len(forks))
	for _, f := range forks {
		if !verdict[f.ID] {
			visible = append(visible, f)
		}
	}
	return visible, nil
}

// ActionedForks returns the subset of forkIDs with at least one actioned report.
func (g *Gate) ActionedForks(ctx context.Context, forkIDs []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	byFork, err := g.reports.ListByForks(ctx, forkIDs)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	actioned := make(map[uuid.UUID]struct{})
	for id, reports := range byFork {
		for _, r := range reports {
			if r.State == models.ReportStateActioned {
				actioned[id] = struct{}{}
				break
			}
		}
	}
	return actioned, nil
}

// Report appends a pending report. Crossing the hide threshold notifies
// moderators; notification failures are logged, not returned.
func (g *Gate) Report(ctx context.Context, reporterID, forkID uuid.UUID, reason string, now time.Time) (*models.Report, error) {
	if !models.ValidReportReason(reason) {
		return nil, models.NewValidationError("reason", "unknown report reason")
	}
	fork, err := g.forks.GetByID(ctx, forkID)
	if err != nil {
		return nil, fmt.Errorf("get fork: %w", err)
	}

	before, err := g.reports.ListByFork(ctx, forkID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	wasHidden := Hidden(before)

	report := &models.Report{
		ID:        uuid.New(),
		ActorID:   reporterID,
		ForkID:    forkID,
		Reason:    reason,
		State:     models.ReportStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.reports.Append(ctx, report); err != nil {
		return nil, fmt.Errorf("append report: %w", err)
	}
	g.hidden.Remove(forkID)

	after, err := g.reports.ListByFork(ctx, forkID)
	if err != nil {
		g.logger.Error("Failed to re-read reports after append", zap.String("fork_id", forkID.String()), zap.Error(err))
		return report, nil
	}
	if !wasHidden && Hidden(after) {
		metrics.ForksHidden.Inc()
		g.logger.Info("Fork hidden by reports", zap.String("fork_id", forkID.String()), zap.Int("reports", len(after)))
		if g.notifier != nil {
			if err := g.notifier.NotifyHidden(ctx, fork, after); err != nil {
				g.logger.Error("Failed to notify moderators", zap.String("fork_id", forkID.String()), zap.Error(err))
			}
		}
	}
	return report, nil
}

// Transition moves a report along pending -> reviewed -> dismissed | actioned.
// Entering actioned lowers the fork creator's trust score by TrustStep.
func (g *Gate) Transition(ctx context.Context, reportID uuid.UUID, to string, now time.Time) (*models.Report, error) {
	report, err := g.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	if !models.CanTransition(report.State, to) {
		return nil, fmt.Errorf("%s -> %s: %w", report.State, to, models.ErrInvalidTransition)
	}
	if err := g.reports.UpdateState(ctx, reportID, report.State, to, now); err != nil {
		return nil, fmt.Errorf("update report state: %w", err)
	}
	g.hidden.Remove(report.ForkID)

	if to == models.ReportStateActioned {
		fork, err := g.forks.GetByID(ctx, report.ForkID)
		if err != nil {
			return nil, fmt.Errorf("get reported fork: %w", err)
		}
		score, err := g.actors.AdjustTrustScore(ctx, fork.CreatedByActorID, -TrustStep, 0)
		if err != nil {
			return nil, fmt.Errorf("adjust trust score: %w", err)
		}
		metrics.TrustDecrements.Inc()
		g.logger.Info("Creator trust lowered",
			zap.String("actor_id", fork.CreatedByActorID.String()),
			zap.String("report_id", reportID.String()),
			zap.Float64("trust_score", score))
	}

	report.State = to
	report.UpdatedAt = now
	return report, nil
}

// ResolveFork walks every open report on the fork to the terminal state, which
// must be dismissed or actioned. It returns how many reports were resolved.
func (g *Gate) ResolveFork(ctx context.Context, forkID uuid.UUID, terminal string, now time.Time) (int, error) {
	if terminal != models.ReportStateDismissed && terminal != models.ReportStateActioned {
		return 0, models.NewValidationError("state", "terminal state must be dismissed or actioned")
	}
	reports, err := g.reports.ListByFork(ctx, forkID)
	if err != nil {
		return 0, fmt.Errorf("list reports: %w", err)
	}

	resolved := 0
	for _, r := range reports {
		steps := resolutionSteps(r.State, terminal)
		if steps == nil {
			continue
		}
		if err := g.advance(ctx, r.ID, steps, now); err != nil {
			// Someone else moved it first.
			if errors.Is(err, models.ErrInvalidTransition) {
				continue
			}
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}

func (g *Gate) advance(ctx context.Context, reportID uuid.UUID, steps []string, now time.Time) error {
	for _, state := range steps {
		if _, err := g.Transition(ctx, reportID, state, now); err != nil {
			return err
		}
	}
	return nil
}

func resolutionSteps(from, terminal string) []string {
	switch from {
	case models.ReportStatePending:
		return []string{models.ReportStateReviewed, terminal}
	case models.ReportStateReviewed:
		return []string{terminal}
	}
	return nil
}
