package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/trainwell-app/trainwell-engine/pkg/apperrors"
	"github.com/trainwell-app/trainwell-engine/pkg/changefeed"
	"github.com/trainwell-app/trainwell-engine/pkg/database"
	"github.com/trainwell-app/trainwell-engine/pkg/models"
)

// EngagementRepository defines the interface for engagement data access.
type EngagementRepository interface {
	// ListByClient returns all engagements for the client, newest first.
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Engagement, error)
	// GetByPair returns the engagement for a (client, trainer) pair.
	GetByPair(ctx context.Context, clientID, trainerID uuid.UUID) (*models.Engagement, error)
	// UpsertStage writes the authoritative stage for a pair: update if a row
	// exists, insert otherwise. Milestone timestamps are stamped on the first
	// transition into their stage. Returns the row as stored.
	UpsertStage(ctx context.Context, clientID, trainerID uuid.UUID, stage models.Stage) (*models.Engagement, error)
}

// engagementRepository implements EngagementRepository using PostgreSQL.
type engagementRepository struct {
	db     *database.DB
	feed   changefeed.Feed
	logger *zap.Logger
}

// NewEngagementRepository creates a new engagement repository. Writes publish
// change events on the feed, the way backend triggers notify row changes.
func NewEngagementRepository(db *database.DB, feed changefeed.Feed, logger *zap.Logger) EngagementRepository {
	return &engagementRepository{
		db:     db,
		feed:   feed,
		logger: logger.Named("engagement-repo"),
	}
}

const engagementColumns = `id, client_id, trainer_id, stage, notes,
	liked_at, matched_at, discovery_completed_at, became_client_at,
	created_at, updated_at`

func scanEngagement(row pgx.Row) (*models.Engagement, error) {
	var e models.Engagement
	err := row.Scan(
		&e.ID,
		&e.ClientID,
		&e.TrainerID,
		&e.Stage,
		&e.Notes,
		&e.LikedAt,
		&e.MatchedAt,
		&e.DiscoveryCompletedAt,
		&e.BecameClientAt,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListByClient returns all engagements for the client, newest first.
func (r *engagementRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Engagement, error) {
	query := `
		SELECT ` + engagementColumns + `
		FROM engagements
		WHERE client_id = $1
		ORDER BY updated_at DESC`

	rows, err := r.db.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list engagements: %w", err)
	}
	defer rows.Close()

	var engagements []*models.Engagement
	for rows.Next() {
		e, err := scanEngagement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan engagement: %w", err)
		}
		engagements = append(engagements, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read engagements: %w", err)
	}

	return engagements, nil
}

// GetByPair returns the engagement for a (client, trainer) pair.
func (r *engagementRepository) GetByPair(ctx context.Context, clientID, trainerID uuid.UUID) (*models.Engagement, error) {
	query := `
		SELECT ` + engagementColumns + `
		FROM engagements
		WHERE client_id = $1 AND trainer_id = $2`

	e, err := scanEngagement(r.db.QueryRow(ctx, query, clientID, trainerID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get engagement: %w", err)
	}
	return e, nil
}

// UpsertStage writes the authoritative stage for a pair.
func (r *engagementRepository) UpsertStage(ctx context.Context, clientID, trainerID uuid.UUID, stage models.Stage) (*models.Engagement, error) {
	now := time.Now().UTC()

	// Milestone values for a first insert; on conflict the stored value wins
	// via COALESCE so milestones never move once stamped.
	fresh := &models.Engagement{}
	fresh.StampMilestone(stage, now)

	query := `
		INSERT INTO engagements (id, client_id, trainer_id, stage, notes,
			liked_at, matched_at, discovery_completed_at, became_client_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, '', $5, $6, $7, $8, $9, $9)
		ON CONFLICT (client_id, trainer_id) DO UPDATE
		SET stage = EXCLUDED.stage,
		    updated_at = EXCLUDED.updated_at,
		    liked_at = COALESCE(engagements.liked_at, EXCLUDED.liked_at),
		    matched_at = COALESCE(engagements.matched_at, EXCLUDED.matched_at),
		    discovery_completed_at = COALESCE(engagements.discovery_completed_at, EXCLUDED.discovery_completed_at),
		    became_client_at = COALESCE(engagements.became_client_at, EXCLUDED.became_client_at)
		RETURNING ` + engagementColumns

	e, err := scanEngagement(r.db.QueryRow(ctx, query,
		uuid.New(),
		clientID,
		trainerID,
		stage,
		fresh.LikedAt,
		fresh.MatchedAt,
		fresh.DiscoveryCompletedAt,
		fresh.BecameClientAt,
		now,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert engagement: %w", err)
	}

	r.publish(ctx, e)
	return e, nil
}

// publish emits a change event for the written row. Feed failures are logged
// and never fail the write; consumers reconcile on their next refresh anyway.
func (r *engagementRepository) publish(ctx context.Context, e *models.Engagement) {
	ev := changefeed.Event{
		Table:    changefeed.TableEngagements,
		Type:     changefeed.EventUpdate,
		ClientID: e.ClientID,
	}
	if e.CreatedAt.Equal(e.UpdatedAt) {
		ev.Type = changefeed.EventInsert
	}
	if err := r.feed.Publish(ctx, ev); err != nil {
		r.logger.Warn("Failed to publish engagement change event",
			zap.String("client_id", e.ClientID.String()),
			zap.String("trainer_id", e.TrainerID.String()),
			zap.Error(err))
	}
}

// Ensure engagementRepository implements EngagementRepository at compile time.
var _ EngagementRepository = (*engagementRepository)(nil)
