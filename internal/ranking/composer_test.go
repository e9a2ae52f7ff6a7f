package ranking

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k1tz03/Forkfall/internal/models"
)

var mutations = []string{"", models.MutationFlip, models.MutationReframe, models.MutationEscalate, models.MutationSpecific}
var lanes = []string{models.LaneVibe, models.LaneDebate, models.LaneDiscover}

// mixedPool returns n fresh forks spread across lanes and mutation types.
func mixedPool(n int, c *Context) []Scored {
	forks := make([]*models.Fork, n)
	for i := range forks {
		forks[i] = newFork(lanes[i%len(lanes)], mutations[i%len(mutations)], time.Duration(i)*time.Minute)
	}
	return ScoreAll(forks, c, now)
}

func ids(page Page) []uuid.UUID {
	out := make([]uuid.UUID, len(page.Forks))
	for i, s := range page.Forks {
		out[i] = s.Fork.ID
	}
	return out
}

func TestCompose_Empty(t *testing.T) {
	actor := uuid.New()
	page := Compose(nil, actor, 20, FirstPage(actor, now))
	assert.Empty(t, page.Forks)
	assert.Nil(t, page.Next)
}

func TestCompose_TerminalPage(t *testing.T) {
	actor := uuid.New()
	page := Compose(mixedPool(5, &Context{}), actor, 20, FirstPage(actor, now))
	assert.Len(t, page.Forks, 5)
	assert.Nil(t, page.Next)
}

func TestCompose_PagesDoNotRepeat(t *testing.T) {
	actor := uuid.New()
	pool := mixedPool(45, &Context{Lane: models.LaneVibe})

	seen := map[uuid.UUID]bool{}
	var sizes []int
	st := FirstPage(actor, now)
	for st != nil {
		page := Compose(pool, actor, 20, st)
		sizes = append(sizes, len(page.Forks))
		for _, id := range ids(page) {
			require.False(t, seen[id], "fork %s shown twice", id)
			seen[id] = true
		}
		st = page.Next
	}

	assert.Equal(t, []int{20, 20, 5}, sizes)
	assert.Len(t, seen, 45)
}

func TestCompose_Deterministic(t *testing.T) {
	actor := uuid.New()
	pool := mixedPool(60, &Context{Lane: models.LaneDebate})
	st := FirstPage(actor, now)

	first := Compose(pool, actor, 20, st)
	again := Compose(pool, actor, 20, st)
	assert.Equal(t, ids(first), ids(again))

	decoded, ok := DecodeCursor(first.Next.Encode(), actor, now)
	require.True(t, ok)
	assert.Equal(t, ids(Compose(pool, actor, 20, first.Next)), ids(Compose(pool, actor, 20, decoded)))
}

func TestCompose_ExplorationQuota(t *testing.T) {
	actor := uuid.New()
	page := Compose(mixedPool(60, &Context{}), actor, 20, FirstPage(actor, now))
	assert.Len(t, page.Forks, 20)
	assert.Equal(t, 4, page.Exploration)
}

func TestCompose_ExplorationNeedsQuality(t *testing.T) {
	forks := make([]*models.Fork, 40)
	for i := range forks {
		forks[i] = newFork(lanes[i%len(lanes)], mutations[i%len(mutations)], 48*time.Hour+time.Duration(i)*time.Minute)
	}
	actor := uuid.New()
	page := Compose(ScoreAll(forks, &Context{}, now), actor, 20, FirstPage(actor, now))
	assert.Len(t, page.Forks, 20)
	assert.Zero(t, page.Exploration)
}

func TestCompose_DiversityRepair(t *testing.T) {
	var forks []*models.Fork
	for i := 0; i < 25; i++ {
		forks = append(forks, newFork(models.LaneVibe, "", time.Duration(i)*time.Minute))
	}
	for _, m := range []string{models.MutationFlip, models.MutationReframe, models.MutationEscalate} {
		forks = append(forks, newFork(models.LaneDebate, m, 20*time.Hour))
	}
	actor := uuid.New()
	pool := ScoreAll(forks, &Context{Lane: models.LaneVibe}, now)

	page := Compose(pool, actor, 20, FirstPage(actor, now))
	require.Len(t, page.Forks, 20)

	laneSet, mutSet := map[string]bool{}, map[string]bool{}
	for _, s := range page.Forks {
		laneSet[s.Fork.Lane] = true
		mutSet[s.Fork.MutationCategory()] = true
	}
	assert.GreaterOrEqual(t, len(laneSet), MinLanes)
	assert.GreaterOrEqual(t, len(mutSet), MinMutationTypes)
}

// Pools dominated by one lane and by root forks tend to spend their rare
// categories early on the page; the trailing window must still get them.
func TestCompose_TrailingWindowDiversity(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	others := []string{models.LaneDebate, models.LaneDiscover, models.LaneReflect, models.LaneDecide}

	checked := 0
	for trial := 0; trial < 1500; trial++ {
		size := 20 + rng.IntN(31)
		n := size + 1 + rng.IntN(30)

		forks := make([]*models.Fork, n)
		poolLanes, poolMuts := map[string]bool{}, map[string]bool{}
		for i := range forks {
			lane := models.LaneVibe
			if rng.IntN(100) < 8 {
				lane = others[rng.IntN(len(others))]
			}
			mutation := ""
			if rng.IntN(100) < 10 {
				mutation = mutations[1+rng.IntN(len(mutations)-1)]
			}
			forks[i] = newFork(lane, mutation, time.Duration(rng.IntN(30*60))*time.Minute)
			forks[i].TwistCount = int64(rng.IntN(4))
			poolLanes[forks[i].Lane] = true
			poolMuts[forks[i].MutationCategory()] = true
		}
		if len(poolLanes) < MinLanes || len(poolMuts) < MinMutationTypes {
			continue
		}
		checked++

		actor := uuid.New()
		page := Compose(ScoreAll(forks, &Context{Lane: models.LaneVibe}, now), actor, size, FirstPage(actor, now))
		require.Len(t, page.Forks, size)
		require.NotNil(t, page.Next)

		members := map[uuid.UUID]bool{}
		for _, s := range page.Forks {
			require.False(t, members[s.Fork.ID], "trial %d: fork placed twice", trial)
			members[s.Fork.ID] = true
		}

		windowLanes, windowMuts := map[string]bool{}, map[string]bool{}
		for _, s := range page.Forks[size-DiversityWindow:] {
			windowLanes[s.Fork.Lane] = true
			windowMuts[s.Fork.MutationCategory()] = true
		}
		require.GreaterOrEqual(t, len(windowLanes), MinLanes, "trial %d: n=%d size=%d", trial, n, size)
		require.GreaterOrEqual(t, len(windowMuts), MinMutationTypes, "trial %d: n=%d size=%d", trial, n, size)
	}
	assert.Greater(t, checked, 500)
}

// A rare lane spent at the top of the page is moved into the trailing window
// rather than leaving the window single-lane.
func TestCompose_TrailingWindowTakesFromPage(t *testing.T) {
	var forks []*models.Fork
	for i := 0; i < 60; i++ {
		forks = append(forks, newFork(models.LaneVibe, mutations[i%3], time.Duration(i)*time.Minute))
	}
	rare := newFork(models.LaneDebate, "", 0)
	rare.TwistCount = 5
	forks = append(forks, rare)

	actor := uuid.New()
	page := Compose(ScoreAll(forks, &Context{Lane: models.LaneVibe}, now), actor, 40, FirstPage(actor, now))
	require.Len(t, page.Forks, 40)

	var pos []int
	for i, s := range page.Forks {
		if s.Fork.ID == rare.ID {
			pos = append(pos, i)
		}
	}
	require.Len(t, pos, 1)
	assert.GreaterOrEqual(t, pos[0], 40-DiversityWindow)
}

func TestCompose_UnsatisfiableDiversityKeepsPage(t *testing.T) {
	var forks []*models.Fork
	for i := 0; i < 30; i++ {
		forks = append(forks, newFork(models.LaneVibe, "", time.Duration(i)*time.Minute))
	}
	actor := uuid.New()
	page := Compose(ScoreAll(forks, &Context{}, now), actor, 20, FirstPage(actor, now))
	assert.Len(t, page.Forks, 20)
	assert.Zero(t, page.Swaps)
}

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, models.FeedPageSize, ClampPageSize(0))
	assert.Equal(t, models.FeedPageSize, ClampPageSize(-3))
	assert.Equal(t, 7, ClampPageSize(7))
	assert.Equal(t, models.MaxFeedPageSize, ClampPageSize(500))
}
