package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trainwell-app/trainwell-engine/pkg/changefeed"
	"github.com/trainwell-app/trainwell-engine/pkg/database"
	"github.com/trainwell-app/trainwell-engine/pkg/models"
)

// DiscoveryCallRepository defines access to discovery call rows.
type DiscoveryCallRepository interface {
	// ListActiveByClient returns the client's requested or scheduled calls.
	ListActiveByClient(ctx context.Context, clientID uuid.UUID) ([]*models.DiscoveryCall, error)
	// Create records a new discovery call request.
	Create(ctx context.Context, call *models.DiscoveryCall) error
}

// discoveryCallRepository implements DiscoveryCallRepository using PostgreSQL.
type discoveryCallRepository struct {
	db     *database.DB
	feed   changefeed.Feed
	logger *zap.Logger
}

// NewDiscoveryCallRepository creates a new discovery call repository.
func NewDiscoveryCallRepository(db *database.DB, feed changefeed.Feed, logger *zap.Logger) DiscoveryCallRepository {
	return &discoveryCallRepository{
		db:     db,
		feed:   feed,
		logger: logger.Named("discovery-call-repo"),
	}
}

// ListActiveByClient returns the client's requested or scheduled calls.
func (r *discoveryCallRepository) ListActiveByClient(ctx context.Context, clientID uuid.UUID) ([]*models.DiscoveryCall, error) {
	query := `
		SELECT id, client_id, trainer_id, status, scheduled_at, created_at
		FROM discovery_calls
		WHERE client_id = $1 AND status IN ('requested', 'scheduled')`

	rows, err := r.db.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list discovery calls: %w", err)
	}
	defer rows.Close()

	var calls []*models.DiscoveryCall
	for rows.Next() {
		var c models.DiscoveryCall
		if err := rows.Scan(&c.ID, &c.ClientID, &c.TrainerID, &c.Status, &c.ScheduledAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan discovery call: %w", err)
		}
		calls = append(calls, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read discovery calls: %w", err)
	}

	return calls, nil
}

// Create records a new discovery call request.
func (r *discoveryCallRepository) Create(ctx context.Context, call *models.DiscoveryCall) error {
	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	if call.Status == "" {
		call.Status = models.CallStatusRequested
	}
	call.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO discovery_calls (id, client_id, trainer_id, status, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		call.ID,
		call.ClientID,
		call.TrainerID,
		call.Status,
		call.ScheduledAt,
		call.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create discovery call: %w", err)
	}

	if err := r.feed.Publish(ctx, changefeed.Event{
		Table:    changefeed.TableDiscoveryCalls,
		Type:     changefeed.EventInsert,
		ClientID: call.ClientID,
	}); err != nil {
		r.logger.Warn("Failed to publish discovery call event",
			zap.String("client_id", call.ClientID.String()),
			zap.Error(err))
	}

	return nil
}

// Ensure discoveryCallRepository implements DiscoveryCallRepository at compile time.
var _ DiscoveryCallRepository = (*discoveryCallRepository)(nil)
