package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trainwell-app/trainwell-engine/pkg/apperrors"
	"github.com/trainwell-app/trainwell-engine/pkg/database"
	"github.com/trainwell-app/trainwell-engine/pkg/models"
)

// TrainerRepository defines read access to trainer profile data.
type TrainerRepository interface {
	// Get returns one trainer profile.
	Get(ctx context.Context, id uuid.UUID) (*models.Trainer, error)
	// ListByIDs returns profiles for exactly the given trainer IDs.
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Trainer, error)
	// ListDiscoverySettings returns discovery-call settings for the given trainers.
	ListDiscoverySettings(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.DiscoveryCallSettings, error)
	// ListAvailability returns availability settings for the given trainers.
	ListAvailability(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.TrainerAvailability, error)
}

// trainerRepository implements TrainerRepository using PostgreSQL.
type trainerRepository struct {
	db *database.DB
}

// NewTrainerRepository creates a new trainer repository.
func NewTrainerRepository(db *database.DB) TrainerRepository {
	return &trainerRepository{db: db}
}

const trainerColumns = `id, full_name, avatar_url, bio, location, specializations,
	hourly_rate, rating, total_reviews, is_verified, gallery_images, packages,
	created_at, updated_at`

func scanTrainer(row pgx.Row) (*models.Trainer, error) {
	var t models.Trainer
	var specializations, gallery, packages []byte

	err := row.Scan(
		&t.ID,
		&t.FullName,
		&t.AvatarURL,
		&t.Bio,
		&t.Location,
		&specializations,
		&t.HourlyRate,
		&t.Rating,
		&t.TotalReviews,
		&t.IsVerified,
		&gallery,
		&packages,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(specializations, &t.Specializations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal specializations: %w", err)
	}
	if len(gallery) > 0 {
		if err := json.Unmarshal(gallery, &t.GalleryImages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal gallery images: %w", err)
		}
	}
	if len(packages) > 0 {
		if err := json.Unmarshal(packages, &t.Packages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal packages: %w", err)
		}
	}

	return &t, nil
}

// Get returns one trainer profile.
func (r *trainerRepository) Get(ctx context.Context, id uuid.UUID) (*models.Trainer, error) {
	query := `SELECT ` + trainerColumns + ` FROM trainers WHERE id = $1`

	t, err := scanTrainer(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get trainer: %w", err)
	}
	return t, nil
}

// ListByIDs returns profiles for exactly the given trainer IDs.
func (r *trainerRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Trainer, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + trainerColumns + ` FROM trainers WHERE id = ANY($1)`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list trainers: %w", err)
	}
	defer rows.Close()

	var trainers []*models.Trainer
	for rows.Next() {
		t, err := scanTrainer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trainer: %w", err)
		}
		trainers = append(trainers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trainers: %w", err)
	}

	return trainers, nil
}

// ListDiscoverySettings returns discovery-call settings for the given trainers.
func (r *trainerRepository) ListDiscoverySettings(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.DiscoveryCallSettings, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*models.DiscoveryCallSettings{}, nil
	}

	query := `
		SELECT trainer_id, offers_discovery_call, duration_minutes, booking_link, updated_at
		FROM discovery_call_settings
		WHERE trainer_id = ANY($1)`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list discovery settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[uuid.UUID]*models.DiscoveryCallSettings)
	for rows.Next() {
		var s models.DiscoveryCallSettings
		if err := rows.Scan(&s.TrainerID, &s.OffersDiscoveryCall, &s.DurationMinutes, &s.BookingLink, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan discovery settings: %w", err)
		}
		settings[s.TrainerID] = &s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read discovery settings: %w", err)
	}

	return settings, nil
}

// ListAvailability returns availability settings for the given trainers.
func (r *trainerRepository) ListAvailability(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.TrainerAvailability, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*models.TrainerAvailability{}, nil
	}

	query := `
		SELECT trainer_id, status, accepting_clients, updated_at
		FROM trainer_availability
		WHERE trainer_id = ANY($1)`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list availability: %w", err)
	}
	defer rows.Close()

	availability := make(map[uuid.UUID]*models.TrainerAvailability)
	for rows.Next() {
		var a models.TrainerAvailability
		if err := rows.Scan(&a.TrainerID, &a.Status, &a.AcceptingClients, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan availability: %w", err)
		}
		availability[a.TrainerID] = &a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read availability: %w", err)
	}

	return availability, nil
}

// Ensure trainerRepository implements TrainerRepository at compile time.
var _ TrainerRepository = (*trainerRepository)(nil)
