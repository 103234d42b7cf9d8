package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/trainwell-app/trainwell-engine/pkg/apperrors"
	"github.com/trainwell-app/trainwell-engine/pkg/database"
	"github.com/trainwell-app/trainwell-engine/pkg/models"
)

// AnonymousSessionRepository is the remote mirror of device-local anonymous
// sessions, kept for cross-device recovery. It is never the source of truth
// while a valid local copy exists.
type AnonymousSessionRepository interface {
	// Upsert writes the session mirror keyed by token.
	Upsert(ctx context.Context, session *models.AnonymousSession) error
	// GetByToken returns a mirrored session, ignoring rows past expiry.
	GetByToken(ctx context.Context, token string) (*models.AnonymousSession, error)
	// Delete removes the mirror row; used once migration succeeds.
	Delete(ctx context.Context, token string) error
	// DeleteExpired removes rows past their expiry and returns how many.
	DeleteExpired(ctx context.Context) (int64, error)
}

// anonymousSessionRepository implements AnonymousSessionRepository using PostgreSQL.
type anonymousSessionRepository struct {
	db *database.DB
}

// NewAnonymousSessionRepository creates a new anonymous session repository.
func NewAnonymousSessionRepository(db *database.DB) AnonymousSessionRepository {
	return &anonymousSessionRepository{db: db}
}

// Upsert writes the session mirror keyed by token.
func (r *anonymousSessionRepository) Upsert(ctx context.Context, session *models.AnonymousSession) error {
	trainerIDs, err := json.Marshal(session.SavedTrainerIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal saved trainers: %w", err)
	}

	var quiz []byte
	if session.QuizAnswers != nil {
		quiz, err = json.Marshal(session.QuizAnswers)
		if err != nil {
			return fmt.Errorf("failed to marshal quiz answers: %w", err)
		}
	}

	query := `
		INSERT INTO anonymous_sessions (token, saved_trainer_ids, quiz_answers, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token) DO UPDATE
		SET saved_trainer_ids = EXCLUDED.saved_trainer_ids,
		    quiz_answers = EXCLUDED.quiz_answers,
		    expires_at = EXCLUDED.expires_at`

	_, err = r.db.Exec(ctx, query,
		session.Token,
		trainerIDs,
		quiz,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert anonymous session: %w", err)
	}

	return nil
}

// GetByToken returns a mirrored session, ignoring rows past expiry.
func (r *anonymousSessionRepository) GetByToken(ctx context.Context, token string) (*models.AnonymousSession, error) {
	query := `
		SELECT token, saved_trainer_ids, quiz_answers, created_at, expires_at
		FROM anonymous_sessions
		WHERE token = $1 AND expires_at > $2`

	var session models.AnonymousSession
	var trainerIDs []byte
	var quiz []byte

	err := r.db.QueryRow(ctx, query, token, time.Now().UTC()).Scan(
		&session.Token,
		&trainerIDs,
		&quiz,
		&session.CreatedAt,
		&session.ExpiresAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get anonymous session: %w", err)
	}

	if err := json.Unmarshal(trainerIDs, &session.SavedTrainerIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal saved trainers: %w", err)
	}
	if len(quiz) > 0 {
		answers, err := models.ParseQuizAnswers(quiz)
		if err != nil {
			return nil, fmt.Errorf("failed to parse mirrored quiz answers: %w", err)
		}
		session.QuizAnswers = answers
	}

	return &session, nil
}

// Delete removes the mirror row.
func (r *anonymousSessionRepository) Delete(ctx context.Context, token string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM anonymous_sessions WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to delete anonymous session: %w", err)
	}
	return nil
}

// DeleteExpired removes rows past their expiry and returns how many.
func (r *anonymousSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM anonymous_sessions WHERE expires_at <= $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected(), nil
}

// Ensure anonymousSessionRepository implements AnonymousSessionRepository at compile time.
var _ AnonymousSessionRepository = (*anonymousSessionRepository)(nil)
