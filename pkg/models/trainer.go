package models

import (
	"time"

	"github.com/google/uuid"
)

// Trainer is the profile record for a coach on the marketplace.
type Trainer struct {
	ID              uuid.UUID        `json:"id"`
	FullName        string           `json:"full_name"`
	AvatarURL       string           `json:"avatar_url,omitempty"`
	Bio             string           `json:"bio,omitempty"`
	Location        string           `json:"location,omitempty"`
	Specializations []string         `json:"specializations"`
	HourlyRate      float64          `json:"hourly_rate"`
	Rating          float64          `json:"rating"`
	TotalReviews    int              `json:"total_reviews"`
	IsVerified      bool             `json:"is_verified"`
	GalleryImages   []string         `json:"gallery_images,omitempty"`
	Packages        []TrainerPackage `json:"packages,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// TrainerPackage is a bundled offering on a trainer profile.
type TrainerPackage struct {
	Name     string  `json:"name"`
	Sessions int     `json:"sessions"`
	Price    float64 `json:"price"`
}

// DiscoveryCallSettings holds a trainer's discovery-call offering.
type DiscoveryCallSettings struct {
	TrainerID           uuid.UUID `json:"trainer_id"`
	OffersDiscoveryCall bool      `json:"offers_discovery_call"`
	DurationMinutes     int       `json:"duration_minutes"`
	BookingLink         string    `json:"booking_link,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ============================================================================
// Availability
// ============================================================================

// AvailabilityStatus describes whether a trainer is taking new clients.
type AvailabilityStatus string

const (
	AvailabilityAvailable    AvailabilityStatus = "available"
	AvailabilityLimited      AvailabilityStatus = "limited"
	AvailabilityWaitlistOnly AvailabilityStatus = "waitlist_only"
	AvailabilityUnavailable  AvailabilityStatus = "unavailable"
)

// ValidAvailabilityStatuses contains all valid availability values.
var ValidAvailabilityStatuses = []AvailabilityStatus{
	AvailabilityAvailable,
	AvailabilityLimited,
	AvailabilityWaitlistOnly,
	AvailabilityUnavailable,
}

// IsValidAvailabilityStatus checks if the given status is valid.
func IsValidAvailabilityStatus(s AvailabilityStatus) bool {
	for _, v := range ValidAvailabilityStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// TrainerAvailability is a trainer's current availability setting.
type TrainerAvailability struct {
	TrainerID        uuid.UUID          `json:"trainer_id"`
	Status           AvailabilityStatus `json:"status"`
	AcceptingClients bool               `json:"accepting_clients"`
	UpdatedAt        time.Time          `json:"updated_at"`
}
