package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// QuizAnswers is the matching-quiz payload captured during anonymous browsing.
// Older clients emitted some fields under legacy names; both spellings are
// accepted here and resolved in Preferences. Unknown fields are rejected at
// the boundary instead of being passed through untyped.
type QuizAnswers struct {
	Goals           []string `json:"goals,omitempty"`
	TrainingGoals   []string `json:"training_goals,omitempty"` // legacy alias for goals
	ExperienceLevel string   `json:"experience_level,omitempty"`
	Experience      string   `json:"experience,omitempty"` // legacy alias for experience_level
	SessionsPerWeek int      `json:"sessions_per_week,omitempty"`
	Frequency       int      `json:"frequency,omitempty"` // legacy alias for sessions_per_week
	PreferredTime   string   `json:"preferred_time,omitempty"`
	BudgetRange     string   `json:"budget_range,omitempty"`
	Budget          string   `json:"budget,omitempty"` // legacy alias for budget_range
	Location        string   `json:"location,omitempty"`
}

// ParseQuizAnswers decodes a raw quiz payload, rejecting unknown shapes.
func ParseQuizAnswers(raw []byte) (*QuizAnswers, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty quiz payload")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var q QuizAnswers
	if err := dec.Decode(&q); err != nil {
		return nil, fmt.Errorf("invalid quiz payload: %w", err)
	}

	return &q, nil
}

// Preferences maps the quiz payload onto the profile preference schema.
// Each field prefers the canonical name, falls back to its legacy alias,
// and defaults to an empty/neutral value.
func (q *QuizAnswers) Preferences() ClientPreferences {
	prefs := ClientPreferences{
		Goals:             q.Goals,
		ExperienceLevel:   q.ExperienceLevel,
		SessionsPerWeek:   q.SessionsPerWeek,
		PreferredTime:     q.PreferredTime,
		BudgetRange:       q.BudgetRange,
		PreferredLocation: q.Location,
	}

	if len(prefs.Goals) == 0 {
		prefs.Goals = q.TrainingGoals
	}
	if prefs.Goals == nil {
		prefs.Goals = []string{}
	}
	if prefs.ExperienceLevel == "" {
		prefs.ExperienceLevel = q.Experience
	}
	if prefs.SessionsPerWeek == 0 {
		prefs.SessionsPerWeek = q.Frequency
	}

	return prefs
}
