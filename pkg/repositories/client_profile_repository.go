package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trainwell-app/trainwell-engine/pkg/apperrors"
	"github.com/trainwell-app/trainwell-engine/pkg/database"
	"github.com/trainwell-app/trainwell-engine/pkg/models"
)

// ClientProfileRepository defines access to client account profiles.
// Profile rows are provisioned outside this engine shortly after signup,
// which is why Get can briefly return ErrNotFound for a fresh account.
type ClientProfileRepository interface {
	// Get returns the profile for a user.
	Get(ctx context.Context, userID uuid.UUID) (*models.ClientProfile, error)
	// UpdatePreferences writes the preference schema onto the profile.
	UpdatePreferences(ctx context.Context, userID uuid.UUID, prefs models.ClientPreferences) error
}

// clientProfileRepository implements ClientProfileRepository using PostgreSQL.
type clientProfileRepository struct {
	db *database.DB
}

// NewClientProfileRepository creates a new client profile repository.
func NewClientProfileRepository(db *database.DB) ClientProfileRepository {
	return &clientProfileRepository{db: db}
}

// Get returns the profile for a user.
func (r *clientProfileRepository) Get(ctx context.Context, userID uuid.UUID) (*models.ClientProfile, error) {
	query := `
		SELECT user_id, account_type, display_name, preferences, created_at, updated_at
		FROM client_profiles
		WHERE user_id = $1`

	var profile models.ClientProfile
	var prefs []byte

	err := r.db.QueryRow(ctx, query, userID).Scan(
		&profile.UserID,
		&profile.AccountType,
		&profile.DisplayName,
		&prefs,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get client profile: %w", err)
	}

	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &profile.Preferences); err != nil {
			return nil, fmt.Errorf("failed to unmarshal preferences: %w", err)
		}
	}

	return &profile, nil
}

// UpdatePreferences writes the preference schema onto the profile.
func (r *clientProfileRepository) UpdatePreferences(ctx context.Context, userID uuid.UUID, prefs models.ClientPreferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	result, err := r.db.Exec(ctx,
		`UPDATE client_profiles SET preferences = $2, updated_at = $3 WHERE user_id = $1`,
		userID, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update preferences: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Ensure clientProfileRepository implements ClientProfileRepository at compile time.
var _ ClientProfileRepository = (*clientProfileRepository)(nil)
