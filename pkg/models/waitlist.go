package models

import (
	"time"

	"github.com/google/uuid"
)

// WaitlistEntry records a client waiting for a spot with a trainer.
// At most one entry exists per (client_id, trainer_id) pair.
type WaitlistEntry struct {
	ID        uuid.UUID `json:"id"`
	ClientID  uuid.UUID `json:"client_id"`
	TrainerID uuid.UUID `json:"trainer_id"`
	JoinedAt  time.Time `json:"joined_at"`
}
