package ranking

import (
	"bytes"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/k1tz03/Forkfall/internal/models"
)

// Ranking weights.
const (
	LaneMatchWeight       = 40.0
	EnergyMatchWeight     = 20.0
	FreshnessMax          = 15.0
	FreshnessDecay        = 24 * time.Hour
	SkipPenalty           = 10.0
	EngagementBonus       = 5.0
	DiversityBonus        = 10.0
	TwistBonusPer         = 5.0
	TwistBonusMax         = 25.0
	ReportPenalty         = 20.0
	PopularityFloor       = 10
	ExplorationQualityMin = 5.0
)

// Context is everything about the requesting actor and the moderation state that
// a score depends on. It is read-only during scoring.
type Context struct {
	Lane     string
	Energy   string
	Skipped  map[uuid.UUID]struct{}
	Actioned map[uuid.UUID]struct{}
}

// Breakdown is a fork's score. Quality is the part of Total that does not depend
// on the actor's lane or energy.
type Breakdown struct {
	Total   float64
	Quality float64
}

// Score is pure: identical inputs always give an identical result.
func Score(f *models.Fork, c *Context, now time.Time) Breakdown {
	intent := 0.0
	if c.Lane != "" && f.Lane == c.Lane {
		intent += LaneMatchWeight
	}
	if c.Energy != "" && f.Energy == c.Energy {
		intent += EnergyMatchWeight
	}

	quality := Freshness(f.CreatedAt, now)

	if _, ok := c.Skipped[f.ID]; ok {
		quality -= SkipPenalty
	}
	if f.Votes() > PopularityFloor {
		quality += EngagementBonus
	}
	quality += math.Min(TwistBonusPer*float64(f.TwistCount), TwistBonusMax)
	if _, ok := c.Actioned[f.ID]; ok {
		quality -= ReportPenalty
	}

	return Breakdown{Total: intent + quality, Quality: quality}
}

// Freshness decays linearly from FreshnessMax at age 0 to 0 at FreshnessDecay.
func Freshness(createdAt, now time.Time) float64 {
	age := now.Sub(createdAt)
	if age < 0 {
		age = 0
	}
	return FreshnessMax * math.Max(0, 1-age.Hours()/FreshnessDecay.Hours())
}

// Scored pairs a fork with its score.
type Scored struct {
	Fork  *models.Fork
	Score Breakdown
}

// Less orders by score desc, then newest first, then id for a total order.
func Less(a, b Scored) bool {
	if a.Score.Total != b.Score.Total {
		return a.Score.Total > b.Score.Total
	}
	if !a.Fork.CreatedAt.Equal(b.Fork.CreatedAt) {
		return a.Fork.CreatedAt.After(b.Fork.CreatedAt)
	}
	return bytes.Compare(a.Fork.ID[:], b.Fork.ID[:]) < 0
}

// ScoreAll scores every fork.
func ScoreAll(forks []*models.Fork, c *Context, now time.Time) []Scored {
	out := make([]Scored, len(forks))
	for i, f := range forks {
		out[i] = Scored{Fork: f, Score: Score(f, c, now)}
	}
	return out
}
