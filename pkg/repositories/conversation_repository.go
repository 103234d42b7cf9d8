package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/trainwell-app/trainwell-engine/pkg/database"
	"github.com/trainwell-app/trainwell-engine/pkg/models"
)

// ConversationRepository reads message threads for status derivation.
// Messaging itself is owned by another system.
type ConversationRepository interface {
	// ListActiveByClient returns the client's unarchived conversations.
	ListActiveByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Conversation, error)
}

// conversationRepository implements ConversationRepository using PostgreSQL.
type conversationRepository struct {
	db *database.DB
}

// NewConversationRepository creates a new conversation repository.
func NewConversationRepository(db *database.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// ListActiveByClient returns the client's unarchived conversations.
func (r *conversationRepository) ListActiveByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Conversation, error) {
	query := `
		SELECT id, client_id, trainer_id, last_message_at, archived, created_at
		FROM conversations
		WHERE client_id = $1 AND archived = FALSE`

	rows, err := r.db.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.ClientID, &c.TrainerID, &c.LastMessageAt, &c.Archived, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read conversations: %w", err)
	}

	return conversations, nil
}

// Ensure conversationRepository implements ConversationRepository at compile time.
var _ ConversationRepository = (*conversationRepository)(nil)
