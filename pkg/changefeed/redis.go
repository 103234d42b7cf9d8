package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// channelPrefix namespaces feed channels in Redis.
const channelPrefix = "changefeed:"

// RedisFeed is a Feed backed by Redis pub/sub, for deployments where several
// engine instances must observe each other's writes.
type RedisFeed struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisFeed creates a feed over the given Redis client.
func NewRedisFeed(client *redis.Client, logger *zap.Logger) *RedisFeed {
	return &RedisFeed{
		client: client,
		logger: logger.Named("changefeed"),
	}
}

// Publish sends the event to the table's channel.
func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	if err := f.client.Publish(ctx, channelPrefix+ev.Table, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// Subscribe registers a handler for matching events on the table's channel.
// The subscription runs until Unsubscribe is called.
func (f *RedisFeed) Subscribe(table string, types []EventType, clientID uuid.UUID, h Handler) (Subscription, error) {
	pubsub := f.client.Subscribe(context.Background(), channelPrefix+table)

	// Force the subscription to be established before returning, so events
	// published immediately after Subscribe are not lost.
	if _, err := pubsub.Receive(context.Background()); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", table, err)
	}

	sub := &redisSubscription{pubsub: pubsub}
	go f.dispatch(pubsub, table, types, clientID, h)
	return sub, nil
}

func (f *RedisFeed) dispatch(pubsub *redis.PubSub, table string, types []EventType, clientID uuid.UUID, h Handler) {
	for msg := range pubsub.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			f.logger.Warn("Dropping malformed change event",
				zap.String("table", table),
				zap.Error(err))
			continue
		}
		if matches(ev, table, types, clientID) {
			h(ev)
		}
	}
}

type redisSubscription struct {
	pubsub *redis.PubSub
	once   sync.Once
}

func (s *redisSubscription) Unsubscribe() {
	s.once.Do(func() {
		_ = s.pubsub.Close()
	})
}

var _ Feed = (*RedisFeed)(nil)
