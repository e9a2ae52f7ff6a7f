package moderation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/models"
	"github.com/k1tz03/Forkfall/internal/repository/memory"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu    sync.Mutex
	forks []uuid.UUID
}

func (n *recordingNotifier) NotifyHidden(_ context.Context, fork *models.Fork, _ []*models.Report) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.forks = append(n.forks, fork.ID)
	return nil
}

type fixture struct {
	gate     *Gate
	store    *memory.Store
	notifier *recordingNotifier
	creator  *models.Actor
	fork     *models.Fork
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	creator := models.NewActor("creator", t0)
	require.NoError(t, store.Actors().Create(ctx, creator))

	fork := &models.Fork{
		ID:               uuid.New(),
		Prompt:           "Cats or dogs?",
		LeftLabel:        "Cats",
		RightLabel:       "Dogs",
		Lane:             models.LaneVibe,
		CreatedByActorID: creator.ID,
		CreatedAt:        t0,
	}
	require.NoError(t, store.Forks().Create(ctx, fork))

	notifier := &recordingNotifier{}
	gate := NewGate(store.Reports(), store.Forks(), store.Actors(), notifier, 100, time.Minute, zap.NewNop())
	return &fixture{gate: gate, store: store, notifier: notifier, creator: creator, fork: fork}
}

func (f *fixture) visible(t *testing.T) bool {
	t.Helper()
	out, err := f.gate.FilterVisible(context.Background(), []*models.Fork{f.fork})
	require.NoError(t, err)
	return len(out) == 1
}

func TestReport_HiddenAtThreeDistinctReporters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.gate.Report(ctx, uuid.New(), f.fork.ID, models.ReportReasonSpam, t0)
		require.NoError(t, err)
	}
	assert.True(t, f.visible(t))
	assert.Empty(t, f.notifier.forks)

	_, err := f.gate.Report(ctx, uuid.New(), f.fork.ID, models.ReportReasonSpam, t0)
	require.NoError(t, err)
	assert.False(t, f.visible(t))
	assert.Equal(t, []uuid.UUID{f.fork.ID}, f.notifier.forks)

	// A fourth report does not notify again.
	_, err = f.gate.Report(ctx, uuid.New(), f.fork.ID, models.ReportReasonOther, t0)
	require.NoError(t, err)
	assert.Len(t, f.notifier.forks, 1)
}

func TestReport_SameReporterCountsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reporter := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := f.gate.Report(ctx, reporter, f.fork.ID, models.ReportReasonHarassment, t0)
		require.NoError(t, err)
	}
	assert.True(t, f.visible(t))

	hidden, err := f.gate.IsHidden(ctx, f.fork.ID)
	require.NoError(t, err)
	assert.False(t, hidden)
}

func TestReport_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.Report(ctx, uuid.New(), f.fork.ID, "boring", t0)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.gate.Report(ctx, uuid.New(), uuid.New(), models.ReportReasonSpam, t0)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTransition_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.gate.Report(ctx, uuid.New(), f.fork.ID, models.ReportReasonSpam, t0)
	require.NoError(t, err)

	_, err = f.gate.Transition(ctx, report.ID, models.ReportStateActioned, t0)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	got, err := f.gate.Transition(ctx, report.ID, models.ReportStateReviewed, t0)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStateReviewed, got.State)

	_, err = f.gate.Transition(ctx, report.ID, models.ReportStatePending, t0)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.gate.Transition(ctx, report.ID, models.ReportStateDismissed, t0)
	require.NoError(t, err)

	_, err = f.gate.Transition(ctx, report.ID, models.ReportStateActioned, t0)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	actor, err := f.store.Actors().GetByID(ctx, f.creator.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TrustScoreDefault, actor.TrustScore)

	_, err = f.gate.Transition(ctx, uuid.New(), models.ReportStateReviewed, t0)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTransition_ActionedLowersTrustWithFloor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		report, err := f.gate.Report(ctx, uuid.New(), f.fork.ID, models.ReportReasonHateSpeech, t0)
		require.NoError(t, err)
		_, err = f.gate.Transition(ctx, report.ID, models.ReportStateReviewed, t0)
		require.NoError(t, err)
		_, err = f.gate.Transition(ctx, report.ID, models.ReportStateActioned, t0)
		require.NoError(t, err)

		actor, err := f.store.Actors().GetByID(ctx, f.creator.ID)
		require.NoError(t, err)
		assert.InDelta(t, max(0, models.TrustScoreDefault-TrustStep*float64(i+1)), actor.TrustScore, 1e-9)
		assert.GreaterOrEqual(t, actor.TrustScore, 0.0)
	}

	actioned, err := f.gate.ActionedForks(ctx, []uuid.UUID{f.fork.ID, uuid.New()})
	require.NoError(t, err)
	assert.Contains(t, actioned, f.fork.ID)
	assert.Len(t, actioned, 1)
}

func TestResolveFork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.gate.Report(ctx, uuid.New(), f.fork.ID, models.ReportReasonSpam, t0)
		require.NoError(t, err)
	}
	require.False(t, f.visible(t))

	n, err := f.gate.ResolveFork(ctx, f.fork.ID, models.ReportStateDismissed, t0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, f.visible(t))

	n, err = f.gate.ResolveFork(ctx, f.fork.ID, models.ReportStateActioned, t0)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.gate.ResolveFork(ctx, f.fork.ID, models.ReportStateReviewed, t0)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestHidden_IgnoresReviewedAndDismissed(t *testing.T) {
	reports := []*models.Report{
		{ActorID: uuid.New(), State: models.ReportStatePending},
		{ActorID: uuid.New(), State: models.ReportStateActioned},
		{ActorID: uuid.New(), State: models.ReportStateDismissed},
		{ActorID: uuid.New(), State: models.ReportStateReviewed},
	}
	assert.False(t, Hidden(reports))

	reports = append(reports, &models.Report{ActorID: uuid.New(), State: models.ReportStatePending})
	assert.True(t, Hidden(reports))
}
