package models

import (
	"time"

	"github.com/google/uuid"
)

// CallStatus describes the lifecycle of a discovery call.
type CallStatus string

const (
	CallStatusRequested CallStatus = "requested"
	CallStatusScheduled CallStatus = "scheduled"
	CallStatusCompleted CallStatus = "completed"
	CallStatusCancelled CallStatus = "cancelled"
)

// IsActive reports whether the call still counts as an active discovery call.
func (s CallStatus) IsActive() bool {
	return s == CallStatusRequested || s == CallStatusScheduled
}

// DiscoveryCall is the read model for a booked discovery call. Booking flow
// and calendar mechanics live outside this engine.
type DiscoveryCall struct {
	ID          uuid.UUID  `json:"id"`
	ClientID    uuid.UUID  `json:"client_id"`
	TrainerID   uuid.UUID  `json:"trainer_id"`
	Status      CallStatus `json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
