package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Engagement Stages
// ============================================================================

// Stage represents where a client-trainer relationship currently stands.
// State machine:
//
//	browsing → liked → shortlisted → getting_to_know_your_coach
//	                                       ↓
//	                              discovery_in_progress → discovery_completed
//	                                       ↓                      ↓
//	                                    matched  ←──────────── agreed
//	                                                              ↓
//	                                                       payment_pending → active_client
//
//	Most states can transition to: declined, unmatched
//	declined → declined_dismissed; declined and unmatched can re-enter at liked
//
// Absence of an engagement row is equivalent to StageBrowsing.
type Stage string

const (
	StageBrowsing           Stage = "browsing"
	StageLiked              Stage = "liked"
	StageShortlisted        Stage = "shortlisted"
	StageGettingToKnowCoach Stage = "getting_to_know_your_coach"
	StageDiscoveryInProgress Stage = "discovery_in_progress"
	StageMatched            Stage = "matched"
	StageDiscoveryCompleted Stage = "discovery_completed"
	StageAgreed             Stage = "agreed"
	StagePaymentPending     Stage = "payment_pending"
	StageActiveClient       Stage = "active_client"
	StageUnmatched          Stage = "unmatched"
	StageDeclined           Stage = "declined"
	StageDeclinedDismissed  Stage = "declined_dismissed"
)

// ValidStages contains all valid stage values.
var ValidStages = []Stage{
	StageBrowsing,
	StageLiked,
	StageShortlisted,
	StageGettingToKnowCoach,
	StageDiscoveryInProgress,
	StageMatched,
	StageDiscoveryCompleted,
	StageAgreed,
	StagePaymentPending,
	StageActiveClient,
	StageUnmatched,
	StageDeclined,
	StageDeclinedDismissed,
}

// IsValidStage checks if the given stage is valid.
func IsValidStage(s Stage) bool {
	for _, v := range ValidStages {
		if v == s {
			return true
		}
	}
	return false
}

// InDiscovery returns true for stages that represent an ongoing discovery
// process with the trainer.
func (s Stage) InDiscovery() bool {
	switch s {
	case StageGettingToKnowCoach, StageDiscoveryInProgress, StageDiscoveryCompleted, StageAgreed:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if transitioning from this stage to the target
// is valid. Same-stage transitions are always valid so repeated writes of the
// same action stay idempotent.
func (s Stage) CanTransitionTo(target Stage) bool {
	if s == target {
		return true
	}

	// Declining or unmatching is available from any pre-terminal stage.
	if target == StageDeclined || target == StageUnmatched {
		return s != StageDeclinedDismissed
	}

	switch s {
	case StageBrowsing:
		return target == StageLiked || target == StageShortlisted
	case StageLiked:
		return target == StageBrowsing || target == StageShortlisted
	case StageShortlisted:
		return target == StageLiked || target == StageGettingToKnowCoach || target == StageDiscoveryInProgress
	case StageGettingToKnowCoach:
		return target == StageDiscoveryInProgress || target == StageDiscoveryCompleted
	case StageDiscoveryInProgress:
		return target == StageDiscoveryCompleted || target == StageMatched
	case StageMatched:
		return target == StageAgreed || target == StageDiscoveryCompleted
	case StageDiscoveryCompleted:
		return target == StageMatched || target == StageAgreed
	case StageAgreed:
		return target == StagePaymentPending
	case StagePaymentPending:
		return target == StageActiveClient
	case StageActiveClient:
		return false
	case StageUnmatched:
		return target == StageBrowsing || target == StageLiked
	case StageDeclined:
		return target == StageDeclinedDismissed || target == StageLiked
	case StageDeclinedDismissed:
		return target == StageBrowsing || target == StageLiked
	default:
		return false
	}
}

// ============================================================================
// Engagement Model
// ============================================================================

// Engagement is the persisted relationship between one client and one trainer.
// At most one row exists per (client_id, trainer_id) pair; stage transitions
// update the row in place and it is never hard-deleted in normal flow.
type Engagement struct {
	ID        uuid.UUID `json:"id"`
	ClientID  uuid.UUID `json:"client_id"`
	TrainerID uuid.UUID `json:"trainer_id"`
	Stage     Stage     `json:"stage"`
	Notes     string    `json:"notes,omitempty"`

	// Milestone timestamps, stamped on the transition that first enters
	// the corresponding stage.
	LikedAt              *time.Time `json:"liked_at,omitempty"`
	MatchedAt            *time.Time `json:"matched_at,omitempty"`
	DiscoveryCompletedAt *time.Time `json:"discovery_completed_at,omitempty"`
	BecameClientAt       *time.Time `json:"became_client_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StampMilestone sets the milestone timestamp for the given stage, if the
// stage has one and it has not already been stamped.
func (e *Engagement) StampMilestone(stage Stage, now time.Time) {
	switch stage {
	case StageLiked:
		if e.LikedAt == nil {
			e.LikedAt = &now
		}
	case StageMatched:
		if e.MatchedAt == nil {
			e.MatchedAt = &now
		}
	case StageDiscoveryCompleted:
		if e.DiscoveryCompletedAt == nil {
			e.DiscoveryCompletedAt = &now
		}
	case StageActiveClient:
		if e.BecameClientAt == nil {
			e.BecameClientAt = &now
		}
	}
}
