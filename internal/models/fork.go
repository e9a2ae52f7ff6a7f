package models

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Fork is a binary-choice prompt. Counters are only ever incremented by the
// interaction path.
type Fork struct {
	ID                uuid.UUID      `db:"id" json:"id"`
	Prompt            string         `db:"prompt" json:"prompt"`
	LeftLabel         string         `db:"left_label" json:"left_label"`
	RightLabel        string         `db:"right_label" json:"right_label"`
	Lane              string         `db:"intent_lane" json:"intent_lane"`
	Mood              string         `db:"mood" json:"mood,omitempty"`
	Energy            string         `db:"energy" json:"energy,omitempty"`
	CognitiveLoad     string         `db:"cognitive_load" json:"cognitive_load,omitempty"`
	ParentForkID      *uuid.UUID     `db:"parent_fork_id" json:"parent_fork_id,omitempty"`
	MutationType      string         `db:"mutation_type" json:"mutation_type,omitempty"`
	SafetyAgeGate     string         `db:"safety_age_gate" json:"safety_age_gate"`
	SafetySensitivity string         `db:"safety_sensitivity" json:"safety_sensitivity"`
	SafetyFlags       pq.StringArray `db:"safety_flags" json:"safety_flags"`
	CreatedByActorID  uuid.UUID      `db:"created_by_actor_id" json:"-"`
	CreatedByMaskID   *uuid.UUID     `db:"created_by_mask_id" json:"created_by_mask_id,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`

	LeftCount  int64 `db:"left_count" json:"left_count"`
	RightCount int64 `db:"right_count" json:"right_count"`
	SkipCount  int64 `db:"skip_count" json:"skip_count"`
	TwistCount int64 `db:"twist_count" json:"twist_count"`
}

// Votes is the number of left and right swipes.
func (f *Fork) Votes() int64 {
	return f.LeftCount + f.RightCount
}

// MutationCategory returns the mutation type, or MutationNone for root forks.
func (f *Fork) MutationCategory() string {
	if f.MutationType == "" {
		return MutationNone
	}
	return f.MutationType
}

// CreateForkInput is the write-surface payload for a new fork.
type CreateForkInput struct {
	Prompt        string     `json:"prompt" binding:"required,max=90"`
	LeftLabel     string     `json:"left_label" binding:"required,max=24"`
	RightLabel    string     `json:"right_label" binding:"required,max=24"`
	Lane          string     `json:"intent_lane" binding:"required,lane"`
	Mood          string     `json:"mood" binding:"omitempty,mood"`
	Energy        string     `json:"energy" binding:"omitempty,energy"`
	CognitiveLoad string     `json:"cognitive_load" binding:"omitempty,oneof=low medium high"`
	ParentForkID  *uuid.UUID `json:"parent_fork_id"`
	MutationType  string     `json:"mutation_type" binding:"omitempty,mutation"`
}

// Validate enforces the content limits server-side. Lengths are counted in code points.
func (in *CreateForkInput) Validate() error {
	if in.Prompt == "" {
		return NewValidationError("prompt", "prompt is required")
	}
	if in.LeftLabel == "" || in.RightLabel == "" {
		return NewValidationError("label", "both labels are required")
	}
	if utf8.RuneCountInString(in.Prompt) > PromptMaxLength {
		return NewValidationError("prompt", "prompt must be 90 characters or less")
	}
	if utf8.RuneCountInString(in.LeftLabel) > LabelMaxLength {
		return NewValidationError("left_label", "label must be 24 characters or less")
	}
	if utf8.RuneCountInString(in.RightLabel) > LabelMaxLength {
		return NewValidationError("right_label", "label must be 24 characters or less")
	}
	if !IsLane(in.Lane) {
		return NewValidationError("intent_lane", "unknown lane")
	}
	if in.Energy != "" && !IsEnergy(in.Energy) {
		return NewValidationError("energy", "unknown energy")
	}
	if in.Mood != "" && !IsMood(in.Mood) {
		return NewValidationError("mood", "unknown mood")
	}
	switch in.CognitiveLoad {
	case "", "low", "medium", "high":
	default:
		return NewValidationError("cognitive_load", "unknown cognitive load")
	}
	if in.ParentForkID != nil && in.MutationType == "" {
		return NewValidationError("mutation_type", "a twist must name its mutation type")
	}
	if in.ParentForkID == nil && in.MutationType != "" {
		return NewValidationError("parent_fork_id", "mutation type requires a parent fork")
	}
	if in.MutationType != "" && !IsMutationType(in.MutationType) {
		return NewValidationError("mutation_type", "unknown mutation type")
	}
	return nil
}

// CandidateFilter narrows GetCandidates. Empty fields match everything.
type CandidateFilter struct {
	Lane   string
	Energy string
	Limit  int
}
