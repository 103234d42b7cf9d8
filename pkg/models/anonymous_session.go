package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL is the anonymous-session expiry window.
const DefaultSessionTTL = 7 * 24 * time.Hour

// AnonymousSession is a pre-authentication visitor's working state: saved
// trainers and quiz answers, held locally and mirrored remotely for recovery.
// The local copy is authoritative until the session is migrated into an
// authenticated account.
type AnonymousSession struct {
	Token           string       `json:"token"`
	SavedTrainerIDs []uuid.UUID  `json:"saved_trainer_ids"`
	QuizAnswers     *QuizAnswers `json:"quiz_answers,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	ExpiresAt       time.Time    `json:"expires_at"`
}

// NewAnonymousSession creates an empty session with a fresh token and the
// given TTL.
func NewAnonymousSession(ttl time.Duration) *AnonymousSession {
	now := time.Now().UTC()
	return &AnonymousSession{
		Token:           NewSessionToken(),
		SavedTrainerIDs: []uuid.UUID{},
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}
}

// NewSessionToken generates a session token combining randomness and a
// timestamp component, globally unique with overwhelming probability.
func NewSessionToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("failed to generate session token: " + err.Error())
	}
	return fmt.Sprintf("anon_%d_%s", time.Now().UnixNano(), hex.EncodeToString(b))
}

// IsExpired reports whether the session has passed its expiry timestamp.
func (s *AnonymousSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// HasTrainer reports whether the trainer is already saved in this session.
func (s *AnonymousSession) HasTrainer(trainerID uuid.UUID) bool {
	for _, id := range s.SavedTrainerIDs {
		if id == trainerID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy, so snapshots taken for rollback are not aliased
// to the live session.
func (s *AnonymousSession) Clone() *AnonymousSession {
	if s == nil {
		return nil
	}
	clone := *s
	clone.SavedTrainerIDs = append([]uuid.UUID(nil), s.SavedTrainerIDs...)
	if s.QuizAnswers != nil {
		q := *s.QuizAnswers
		q.Goals = append([]string(nil), s.QuizAnswers.Goals...)
		q.TrainingGoals = append([]string(nil), s.QuizAnswers.TrainingGoals...)
		clone.QuizAnswers = &q
	}
	return &clone
}
