package models

// ============================================================================
// Derived Trainer Status
// ============================================================================

// TrainerStatus is the derived, presentation-ready status of a trainer for a
// given client. An explicit engagement stage always wins over waitlist-implied
// status.
type TrainerStatus string

const (
	TrainerStatusBrowsing    TrainerStatus = "browsing"
	TrainerStatusSaved       TrainerStatus = "saved"
	TrainerStatusShortlisted TrainerStatus = "shortlisted"
	TrainerStatusDiscovery   TrainerStatus = "discovery"
	TrainerStatusWaitlist    TrainerStatus = "waitlist"
	TrainerStatusDeclined    TrainerStatus = "declined"
)

// statusLabels maps each derived status to its display label.
var statusLabels = map[TrainerStatus]string{
	TrainerStatusBrowsing:    "Browsing",
	TrainerStatusSaved:       "Saved",
	TrainerStatusShortlisted: "Shortlisted",
	TrainerStatusDiscovery:   "Discovery Active",
	TrainerStatusWaitlist:    "On Waitlist",
	TrainerStatusDeclined:    "Declined",
}

// statusColors maps each derived status to its display color token.
var statusColors = map[TrainerStatus]string{
	TrainerStatusBrowsing:    "gray",
	TrainerStatusSaved:       "blue",
	TrainerStatusShortlisted: "purple",
	TrainerStatusDiscovery:   "green",
	TrainerStatusWaitlist:    "amber",
	TrainerStatusDeclined:    "red",
}

// Label returns the display label for the status. The agreed stage carries
// its own label even though it derives to discovery status.
func (s TrainerStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Color returns the display color token for the status.
func (s TrainerStatus) Color() string {
	if c, ok := statusColors[s]; ok {
		return c
	}
	return "gray"
}

// AgreedLabel is the display label shown when the underlying stage is agreed.
const AgreedLabel = "Agreed"

// ============================================================================
// Unified Trainer Record
// ============================================================================

// UnifiedTrainer composes trainer profile data, the client's engagement,
// waitlist membership, conversation/call flags, and availability into one
// presentation-ready record. It is recomputed on every aggregator refresh
// and never persisted.
type UnifiedTrainer struct {
	Trainer           Trainer                `json:"trainer"`
	Engagement        *Engagement            `json:"engagement,omitempty"`
	Status            TrainerStatus          `json:"status"`
	StatusLabel       string                 `json:"status_label"`
	StatusColor       string                 `json:"status_color"`
	OnWaitlist        bool                   `json:"on_waitlist"`
	HasConversation   bool                   `json:"has_conversation"`
	HasDiscoveryCall  bool                   `json:"has_discovery_call"`
	DiscoverySettings *DiscoveryCallSettings `json:"discovery_settings,omitempty"`
	Availability      *TrainerAvailability   `json:"availability,omitempty"`
}

// TrainerCounts summarizes a unified trainer list by derived status.
// All excludes browsing-status entries.
type TrainerCounts struct {
	All         int `json:"all"`
	Saved       int `json:"saved"`
	Shortlisted int `json:"shortlisted"`
	Discovery   int `json:"discovery"`
	Waitlist    int `json:"waitlist"`
	Declined    int `json:"declined"`
}

// CountTrainers derives counts from a unified trainer list.
func CountTrainers(trainers []UnifiedTrainer) TrainerCounts {
	var counts TrainerCounts
	for _, t := range trainers {
		switch t.Status {
		case TrainerStatusSaved:
			counts.Saved++
		case TrainerStatusShortlisted:
			counts.Shortlisted++
		case TrainerStatusDiscovery:
			counts.Discovery++
		case TrainerStatusWaitlist:
			counts.Waitlist++
		case TrainerStatusDeclined:
			counts.Declined++
		}
		if t.Status != TrainerStatusBrowsing {
			counts.All++
		}
	}
	return counts
}
