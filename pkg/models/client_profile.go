package models

import (
	"time"

	"github.com/google/uuid"
)

// Account type constants for user accounts.
const (
	AccountTypeClient  = "client"
	AccountTypeTrainer = "trainer"
)

// ClientPreferences is the preference schema stored on a client profile.
// Quiz answers from anonymous sessions are mapped onto this on migration.
type ClientPreferences struct {
	Goals             []string `json:"goals"`
	ExperienceLevel   string   `json:"experience_level"`
	SessionsPerWeek   int      `json:"sessions_per_week"`
	PreferredTime     string   `json:"preferred_time"`
	BudgetRange       string   `json:"budget_range"`
	PreferredLocation string   `json:"preferred_location"`
}

// ClientProfile is a client's account profile. The row is provisioned by the
// backend shortly after signup, which is why it can be briefly absent for a
// freshly authenticated user.
type ClientProfile struct {
	UserID      uuid.UUID         `json:"user_id"`
	AccountType string            `json:"account_type"`
	DisplayName string            `json:"display_name,omitempty"`
	Preferences ClientPreferences `json:"preferences"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// IsClient reports whether this profile belongs to a client-type account.
func (p *ClientProfile) IsClient() bool {
	return p.AccountType == AccountTypeClient
}
