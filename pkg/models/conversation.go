package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the read model for a message thread between a client and
// a trainer. Messaging itself lives outside this engine; the aggregator only
// consumes conversations to derive engagement status.
type Conversation struct {
	ID            uuid.UUID  `json:"id"`
	ClientID      uuid.UUID  `json:"client_id"`
	TrainerID     uuid.UUID  `json:"trainer_id"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	Archived      bool       `json:"archived"`
	CreatedAt     time.Time  `json:"created_at"`
}

// IsActive reports whether the conversation still counts toward discovery
// status derivation.
func (c *Conversation) IsActive() bool {
	return !c.Archived
}
