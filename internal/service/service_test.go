package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/guard"
	"github.com/k1tz03/Forkfall/internal/identity"
	"github.com/k1tz03/Forkfall/internal/models"
	"github.com/k1tz03/Forkfall/internal/moderation"
	"github.com/k1tz03/Forkfall/internal/repository/memory"
)

type env struct {
	store *memory.Store
	auth  AuthService
	feed  FeedService
	forks ForkService
	gate  *moderation.Gate
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()
	g := guard.New(store.Actors(), memory.NewRateCounter(), logger)
	id := identity.NewManager(store.Masks(), store.Sessions(), logger)
	gate := moderation.NewGate(store.Reports(), store.Forks(), store.Actors(), nil, 100, time.Minute, logger)
	return &env{
		store: store,
		auth:  NewAuthService(store.Actors(), "test-secret", "test-key", logger),
		feed:  NewFeedService(store.Forks(), store.Interactions(), g, id, gate, 500, logger),
		forks: NewForkService(store.Forks(), store.Interactions(), g, id, gate, logger),
		gate:  gate,
	}
}

func (e *env) actor(t *testing.T) uuid.UUID {
	t.Helper()
	_, _, actor, err := e.auth.AuthenticateDevice(context.Background(), "device-"+uuid.NewString())
	require.NoError(t, err)
	return actor.ID
}

func validInput() models.CreateForkInput {
	return models.CreateForkInput{
		Prompt:     "Mountains or beaches?",
		LeftLabel:  "Mountains",
		RightLabel: "Beaches",
		Lane:       models.LaneVibe,
		Energy:     models.EnergyChill,
	}
}

// seed inserts forks straight into the store, bypassing the creation window.
func (e *env) seed(t *testing.T, creator uuid.UUID, n int) []*models.Fork {
	t.Helper()
	lanes := []string{models.LaneDiscover, models.LaneDebate, models.LaneVibe, models.LaneReflect, models.LaneDecide}
	mutations := []string{"", models.MutationFlip, models.MutationReframe, models.MutationEscalate}
	base := time.Now().Add(-time.Hour)
	out := make([]*models.Fork, n)
	for i := 0; i < n; i++ {
		f := &models.Fork{
			ID:               uuid.New(),
			Prompt:           fmt.Sprintf("Question %d?", i),
			LeftLabel:        "A",
			RightLabel:       "B",
			Lane:             lanes[i%len(lanes)],
			Energy:           models.EnergyBalanced,
			MutationType:     mutations[i%len(mutations)],
			CreatedByActorID: creator,
			CreatedAt:        base.Add(-time.Duration(i) * time.Minute),
		}
		require.NoError(t, e.store.Forks().Create(context.Background(), f))
		out[i] = f
	}
	return out
}

func TestAuthenticateDevice_StableActorAndToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	token, exp, first, err := e.auth.AuthenticateDevice(ctx, "device-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(models.TokenExpiry), exp, time.Minute)
	assert.NotEqual(t, "device-1", first.DeviceFingerprint)

	_, _, again, err := e.auth.AuthenticateDevice(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	actorID, err := e.auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, first.ID, actorID)

	_, err = e.auth.ParseToken(token + "x")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, _, _, err = e.auth.AuthenticateDevice(ctx, "   ")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAuthenticateDevice_RejectsSuspended(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, _, actor, err := e.auth.AuthenticateDevice(ctx, "device-2")
	require.NoError(t, err)
	require.NoError(t, e.store.Actors().UpdateStatus(ctx, actor.ID, models.ActorStatusSuspended))

	_, _, _, err = e.auth.AuthenticateDevice(ctx, "device-2")
	assert.ErrorIs(t, err, models.ErrTrustDenied)
}

func TestCreateFork_ContentLimitsCountCodePoints(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	actorID := e.actor(t)

	in := validInput()
	in.Prompt = strings.Repeat("🍕", models.PromptMaxLength)
	in.LeftLabel = strings.Repeat("é", models.LabelMaxLength)
	fork, err := e.forks.CreateFork(ctx, actorID, in)
	require.NoError(t, err)
	require.NotNil(t, fork.CreatedByMaskID)

	in.Prompt += "🍕"
	_, err = e.forks.CreateFork(ctx, actorID, in)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "prompt", verr.Field)

	in = validInput()
	in.RightLabel = strings.Repeat("x", models.LabelMaxLength+1)
	_, err = e.forks.CreateFork(ctx, actorID, in)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCreateFork_ParentRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	actorID := e.actor(t)

	missing := uuid.New()
	in := validInput()
	in.ParentForkID = &missing
	in.MutationType = models.MutationFlip
	_, err := e.forks.CreateFork(ctx, actorID, in)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "parent_fork_id", verr.Field)

	root, err := e.forks.CreateFork(ctx, actorID, validInput())
	require.NoError(t, err)

	in = validInput()
	in.ParentForkID = &root.ID
	_, err = e.forks.CreateFork(ctx, actorID, in)
	assert.ErrorIs(t, err, models.ErrValidation)

	in.MutationType = models.MutationEscalate
	child, err := e.forks.CreateFork(ctx, actorID, in)
	require.NoError(t, err)

	in.ParentForkID = &child.ID
	in.MutationType = models.MutationOpposite
	grandchild, err := e.forks.CreateFork(ctx, actorID, in)
	require.NoError(t, err)

	chain, err := e.forks.Lineage(ctx, grandchild.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, root.ID, chain[0].ID)
	assert.Equal(t, child.ID, chain[1].ID)
	assert.Equal(t, grandchild.ID, chain[2].ID)

	children, err := e.forks.GetChildren(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)
}

func TestLineage_DetectsCycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	actorID := e.actor(t)

	a, b := uuid.New(), uuid.New()
	require.NoError(t, e.store.Forks().Create(ctx, &models.Fork{ID: a, ParentForkID: &b, Lane: models.LaneVibe, CreatedByActorID: actorID}))
	require.NoError(t, e.store.Forks().Create(ctx, &models.Fork{ID: b, ParentForkID: &a, Lane: models.LaneVibe, CreatedByActorID: actorID}))

	_, err := e.forks.Lineage(ctx, a)
	assert.ErrorIs(t, err, models.ErrLineageCycle)
}

func TestCreateFork_EleventhInAnHourIsRateLimited(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	actorID := e.actor(t)

	for i := 0; i < models.CreatesPerHour; i++ {
		_, err := e.forks.CreateFork(ctx, actorID, validInput())
		require.NoError(t, err)
	}
	_, err := e.forks.CreateFork(ctx, actorID, validInput())
	assert.ErrorIs(t, err, models.ErrRateLimited)
}

func TestInteract_DuplicateIDCountsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	actorID := e.actor(t)
	fork := e.seed(t, actorID, 1)[0]

	id := uuid.New()
	in := models.InteractionInput{ID: &id, ForkID: fork.ID, Type: models.InteractionSwipeRight}

	first, err := e.forks.Interact(ctx, actorID, in)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	require.NotNil(t, first.Mask)

	second, err := e.forks.Interact(ctx, actorID, in)
	require.NoError(t, err)
	assert.False(t, second.Applied)

	got, err := e.forks.GetFork(ctx, fork.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.RightCount)

	_, err = e.forks.Interact(ctx, actorID, models.InteractionInput{ForkID: fork.ID, Type: "superlike"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = e.forks.Interact(ctx, actorID, models.InteractionInput{ForkID: uuid.New(), Type: models.InteractionSkip})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestInteract_RetriesDoNotSpendBudget(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	actorID := e.actor(t)
	fork := e.seed(t, actorID, 1)[0]

	ids := make([]uuid.UUID, models.InteractionsPerMin)
	for i := range ids {
		ids[i] = uuid.New()
		res, err := e.forks.Interact(ctx, actorID, models.InteractionInput{ID: &ids[i], ForkID: fork.ID, Type: models.InteractionSkip})
		require.NoError(t, err)
		require.True(t, res.Applied)

		retry, err := e.forks.Interact(ctx, actorID, models.InteractionInput{ID: &ids[i], ForkID: fork.ID, Type: models.InteractionSkip})
		require.NoError(t, err, "retry %d", i)
		assert.False(t, retry.Applied)
		assert.Equal(t, ids[i], retry.Interaction.ID)
		assert.Nil(t, retry.Mask)
	}

	_, err := e.forks.Interact(ctx, actorID, models.InteractionInput{ForkID: fork.ID, Type: models.InteractionSkip})
	assert.ErrorIs(t, err, models.ErrRateLimited)

	// Someone else's interaction id cannot be replayed.
	_, err = e.forks.Interact(ctx, e.actor(t), models.InteractionInput{ID: &ids[0], ForkID: fork.ID, Type: models.InteractionSkip})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "id", verr.Field)
}

func TestCreateFork_NarrowIsStoredAsSpecific(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	actorID := e.actor(t)

	root, err := e.forks.CreateFork(ctx, actorID, validInput())
	require.NoError(t, err)

	in := validInput()
	in.ParentForkID = &root.ID
	in.MutationType = models.MutationNarrow
	twist, err := e.forks.CreateFork(ctx, actorID, in)
	require.NoError(t, err)
	assert.Equal(t, models.MutationSpecific, twist.MutationType)

	got, err := e.forks.GetFork(ctx, twist.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MutationSpecific, got.MutationType)
}

func TestHiddenForkResolvesByIDButLeavesFeed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	actorID := e.actor(t)
	fork := e.seed(t, actorID, 1)[0]

	for i := 0; i < models.AutoHideReportCount; i++ {
		_, err := e.forks.Report(ctx, e.actor(t), fork.ID, models.CreateReportInput{Reason: models.ReportReasonSpam})
		require.NoError(t, err)
	}

	got, err := e.forks.GetFork(ctx, fork.ID)
	require.NoError(t, err)
	assert.Equal(t, fork.ID, got.ID)

	resp, err := e.feed.GetFeed(ctx, FeedRequest{ActorID: actorID})
	require.NoError(t, err)
	assert.Empty(t, resp.Forks)
	assert.False(t, resp.HasMore)
}

func TestGetFeed_PagesDoNotRepeatAndTerminate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	actorID := e.actor(t)
	e.seed(t, actorID, 45)

	seen := make(map[uuid.UUID]struct{})
	cursor := ""
	var sizes []int
	for {
		resp, err := e.feed.GetFeed(ctx, FeedRequest{ActorID: actorID, Lane: models.LaneDebate, Energy: models.EnergyBalanced, Cursor: cursor})
		require.NoError(t, err)
		sizes = append(sizes, len(resp.Forks))
		for _, item := range resp.Forks {
			_, dup := seen[item.ID]
			require.False(t, dup, "fork %s shown twice", item.ID)
			seen[item.ID] = struct{}{}
		}
		if !resp.HasMore {
			assert.Empty(t, resp.NextCursor)
			break
		}
		cursor = resp.NextCursor
	}
	assert.Equal(t, []int{20, 20, 5}, sizes)
	assert.Len(t, seen, 45)
}

func TestGetFeed_SameCursorSamePage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	actorID := e.actor(t)
	e.seed(t, actorID, 60)

	first, err := e.feed.GetFeed(ctx, FeedRequest{ActorID: actorID})
	require.NoError(t, err)
	require.True(t, first.HasMore)

	a, err := e.feed.GetFeed(ctx, FeedRequest{ActorID: actorID, Cursor: first.NextCursor})
	require.NoError(t, err)
	b, err := e.feed.GetFeed(ctx, FeedRequest{ActorID: actorID, Cursor: first.NextCursor})
	require.NoError(t, err)

	require.Equal(t, len(a.Forks), len(b.Forks))
	for i := range a.Forks {
		assert.Equal(t, a.Forks[i].ID, b.Forks[i].ID)
	}
	assert.Equal(t, a.NextCursor, b.NextCursor)
}

func TestGetFeed_CorruptCursorStartsOver(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	actorID := e.actor(t)
	e.seed(t, actorID, 30)

	fresh, err := e.feed.GetFeed(ctx, FeedRequest{ActorID: actorID, Lane: models.LaneVibe, Energy: models.EnergyChill})
	require.NoError(t, err)

	for _, bad := range []string{"%%%", "bm90IGpzb24", fresh.NextCursor[:len(fresh.NextCursor)-2]} {
		resp, err := e.feed.GetFeed(ctx, FeedRequest{ActorID: actorID, Lane: models.LaneVibe, Energy: models.EnergyChill, Cursor: bad})
		require.NoError(t, err)
		assert.Len(t, resp.Forks, len(fresh.Forks))
		assert.True(t, resp.HasMore)
	}

	// A cursor issued to someone else is ignored as well.
	other, err := e.feed.GetFeed(ctx, FeedRequest{ActorID: e.actor(t), Cursor: fresh.NextCursor})
	require.NoError(t, err)
	assert.Len(t, other.Forks, models.FeedPageSize)
}

func TestGetFeed_FallsBackToSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	actorID := e.actor(t)
	e.seed(t, actorID, 5)

	resp, err := e.feed.GetFeed(ctx, FeedRequest{ActorID: actorID, Lane: models.LaneReflect, Energy: models.EnergyIntense})
	require.NoError(t, err)
	assert.Equal(t, models.LaneReflect, resp.Lane)

	resp, err = e.feed.GetFeed(ctx, FeedRequest{ActorID: actorID})
	require.NoError(t, err)
	assert.Equal(t, models.LaneReflect, resp.Lane)
	assert.Equal(t, models.EnergyIntense, resp.Energy)

	_, err = e.feed.GetFeed(ctx, FeedRequest{ActorID: actorID, Lane: "upside-down"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestGetFeed_SuspendedActorDenied(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	actorID := e.actor(t)
	require.NoError(t, e.store.Actors().UpdateStatus(ctx, actorID, models.ActorStatusSuspended))

	_, err := e.feed.GetFeed(ctx, FeedRequest{ActorID: actorID})
	assert.ErrorIs(t, err, models.ErrTrustDenied)
}

func TestTransitionReport_ActionedLowersCreatorTrust(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	creator := e.actor(t)
	fork := e.seed(t, creator, 1)[0]

	report, err := e.forks.Report(ctx, e.actor(t), fork.ID, models.CreateReportInput{Reason: models.ReportReasonHarassment})
	require.NoError(t, err)

	_, err = e.forks.TransitionReport(ctx, report.ID, models.TransitionReportInput{State: models.ReportStateReviewed})
	require.NoError(t, err)
	_, err = e.forks.TransitionReport(ctx, report.ID, models.TransitionReportInput{State: models.ReportStateActioned})
	require.NoError(t, err)

	actor, err := e.store.Actors().GetByID(ctx, creator)
	require.NoError(t, err)
	assert.InDelta(t, models.TrustScoreDefault-moderation.TrustStep, actor.TrustScore, 1e-9)
}
