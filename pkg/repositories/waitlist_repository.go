package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trainwell-app/trainwell-engine/pkg/apperrors"
	"github.com/trainwell-app/trainwell-engine/pkg/database"
	"github.com/trainwell-app/trainwell-engine/pkg/models"
)

// WaitlistRepository defines the interface for waitlist membership access.
type WaitlistRepository interface {
	// ListByClient returns the client's waitlist entries.
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.WaitlistEntry, error)
	// Join adds the client to a trainer's waitlist; joining twice is a no-op.
	Join(ctx context.Context, clientID, trainerID uuid.UUID) error
	// Leave removes the client from a trainer's waitlist.
	Leave(ctx context.Context, clientID, trainerID uuid.UUID) error
}

// waitlistRepository implements WaitlistRepository using PostgreSQL.
type waitlistRepository struct {
	db *database.DB
}

// NewWaitlistRepository creates a new waitlist repository.
func NewWaitlistRepository(db *database.DB) WaitlistRepository {
	return &waitlistRepository{db: db}
}

// ListByClient returns the client's waitlist entries.
func (r *waitlistRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.WaitlistEntry, error) {
	query := `
		SELECT id, client_id, trainer_id, joined_at
		FROM waitlist_entries
		WHERE client_id = $1
		ORDER BY joined_at DESC`

	rows, err := r.db.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlist entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.WaitlistEntry
	for rows.Next() {
		var e models.WaitlistEntry
		if err := rows.Scan(&e.ID, &e.ClientID, &e.TrainerID, &e.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan waitlist entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read waitlist entries: %w", err)
	}

	return entries, nil
}

// Join adds the client to a trainer's waitlist.
func (r *waitlistRepository) Join(ctx context.Context, clientID, trainerID uuid.UUID) error {
	query := `
		INSERT INTO waitlist_entries (id, client_id, trainer_id, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (client_id, trainer_id) DO NOTHING`

	_, err := r.db.Exec(ctx, query, uuid.New(), clientID, trainerID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to join waitlist: %w", err)
	}
	return nil
}

// Leave removes the client from a trainer's waitlist.
func (r *waitlistRepository) Leave(ctx context.Context, clientID, trainerID uuid.UUID) error {
	result, err := r.db.Exec(ctx,
		`DELETE FROM waitlist_entries WHERE client_id = $1 AND trainer_id = $2`,
		clientID, trainerID)
	if err != nil {
		return fmt.Errorf("failed to leave waitlist: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Ensure waitlistRepository implements WaitlistRepository at compile time.
var _ WaitlistRepository = (*waitlistRepository)(nil)
