package models

import "time"

// Content limits. These are enforced server-side regardless of client validation.
const (
	PromptMaxLength     = 90
	LabelMaxLength      = 24
	CreatesPerHour      = 10
	InteractionsPerMin  = 100
	FeedPageSize        = 20
	MaxFeedPageSize     = 50
	AutoHideReportCount = 3
	TrustScoreCreateMin = 0.5
	TrustScoreDefault   = 1.0
	MaskRotation        = 24 * time.Hour
	SessionExpiry       = 24 * time.Hour
	TokenExpiry         = 30 * 24 * time.Hour
)

// Intent lanes
const (
	LaneDiscover = "discover"
	LaneDebate   = "debate"
	LaneVibe     = "vibe"
	LaneReflect  = "reflect"
	LaneDecide   = "decide"
)

// Energies
const (
	EnergyChill    = "chill"
	EnergyBalanced = "balanced"
	EnergyIntense  = "intense"
)

// Moods
const (
	MoodPlayful   = "playful"
	MoodSerious   = "serious"
	MoodSpicy     = "spicy"
	MoodWholesome = "wholesome"
	MoodChaotic   = "chaotic"
)

// Mutation types. MutationNone is not stored; it names root forks in diversity checks.
const (
	MutationFlip     = "flip"     // swap left/right labels
	MutationReframe  = "reframe"  // change prompt, keep labels
	MutationEscalate = "escalate" // make it more extreme
	MutationSpecific = "specific" // narrow it down
	MutationOpposite = "opposite" // opposite scenario
	MutationNone     = "none"

	// MutationNarrow is accepted from clients and stored as MutationSpecific.
	MutationNarrow = "narrow"
)

// Safety classification defaults for new forks.
const (
	AgeGateAll           = "all"
	SensitivityNormal    = "normal"
	SensitivitySensitive = "sensitive"
	SensitivityExplicit  = "explicit"
)

// IntentOption is one selectable lane, energy or mood.
type IntentOption struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

var Lanes = []IntentOption{
	{ID: LaneDiscover, Label: "Discover", Description: "Explore new ideas and perspectives"},
	{ID: LaneDebate, Label: "Debate", Description: "Engage in friendly arguments"},
	{ID: LaneVibe, Label: "Vibe", Description: "Light-hearted fun and entertainment"},
	{ID: LaneReflect, Label: "Reflect", Description: "Deep thoughts and introspection"},
	{ID: LaneDecide, Label: "Decide", Description: "Help making real choices"},
}

var Energies = []IntentOption{
	{ID: EnergyChill, Label: "Chill", Description: "Relaxed, low-stakes choices"},
	{ID: EnergyBalanced, Label: "Balanced", Description: "Mix of easy and engaging"},
	{ID: EnergyIntense, Label: "Intense", Description: "High-stakes, thought-provoking"},
}

var Moods = []IntentOption{
	{ID: MoodPlayful, Label: "Playful"},
	{ID: MoodSerious, Label: "Serious"},
	{ID: MoodSpicy, Label: "Spicy"},
	{ID: MoodWholesome, Label: "Wholesome"},
	{ID: MoodChaotic, Label: "Chaotic"},
}

func contains(opts []IntentOption, id string) bool {
	for _, o := range opts {
		if o.ID == id {
			return true
		}
	}
	return false
}

func IsLane(s string) bool   { return contains(Lanes, s) }
func IsEnergy(s string) bool { return contains(Energies, s) }
func IsMood(s string) bool   { return contains(Moods, s) }

func IsMutationType(s string) bool {
	switch s {
	case MutationFlip, MutationReframe, MutationEscalate, MutationSpecific, MutationOpposite, MutationNarrow:
		return true
	}
	return false
}

// CanonicalMutation maps client aliases to the stored mutation type.
func CanonicalMutation(s string) string {
	if s == MutationNarrow {
		return MutationSpecific
	}
	return s
}

// RateWindow is a sliding window made of fixed-width buckets.
type RateWindow struct {
	Name   string
	Span   time.Duration
	Bucket time.Duration
	Limit  int
}

var (
	CreateWindow      = RateWindow{Name: "hour", Span: time.Hour, Bucket: time.Minute, Limit: CreatesPerHour}
	InteractionWindow = RateWindow{Name: "minute", Span: time.Minute, Bucket: time.Second, Limit: InteractionsPerMin}
)

// Index is the bucket that t falls in.
func (w RateWindow) Index(t time.Time) int64 {
	return t.UnixNano() / int64(w.Bucket)
}

// Oldest is the first bucket still counted at t. The window keeps one extra
// bucket so it can over-count by at most one bucket but never under-counts.
func (w RateWindow) Oldest(t time.Time) int64 {
	return w.Index(t) - int64(w.Span/w.Bucket)
}
