package models

import (
	"time"

	"github.com/google/uuid"
)

// Report states
const (
	ReportStatePending   = "pending"
	ReportStateReviewed  = "reviewed"
	ReportStateDismissed = "dismissed"
	ReportStateActioned  = "actioned"
)

// Report reasons
const (
	ReportReasonInappropriate = "inappropriate"
	ReportReasonSpam          = "spam"
	ReportReasonHarassment    = "harassment"
	ReportReasonHateSpeech    = "hate_speech"
	ReportReasonOther         = "other"
)

// Report is a content report against a fork.
type Report struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ActorID   uuid.UUID `db:"actor_id" json:"-"`
	ForkID    uuid.UUID `db:"fork_id" json:"fork_id"`
	Reason    string    `db:"reason" json:"reason"`
	State     string    `db:"state" json:"state"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CountsTowardHide reports whether the report participates in the auto-hide threshold.
func (r *Report) CountsTowardHide() bool {
	return r.State == ReportStatePending || r.State == ReportStateActioned
}

// CreateReportInput is the write-surface payload for a report.
type CreateReportInput struct {
	Reason string `json:"reason" binding:"required,oneof=inappropriate spam harassment hate_speech other"`
}

// TransitionReportInput moves a report to a new review state.
type TransitionReportInput struct {
	State string `json:"state" binding:"required,oneof=reviewed dismissed actioned"`
}

func ValidReportReason(r string) bool {
	switch r {
	case ReportReasonInappropriate, ReportReasonSpam, ReportReasonHarassment, ReportReasonHateSpeech, ReportReasonOther:
		return true
	}
	return false
}

// CanTransition implements pending -> reviewed -> {dismissed | actioned}.
func CanTransition(from, to string) bool {
	switch from {
	case ReportStatePending:
		return to == ReportStateReviewed
	case ReportStateReviewed:
		return to == ReportStateDismissed || to == ReportStateActioned
	}
	return false
}
