package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trainwell-app/trainwell-engine/pkg/changefeed"
)

// SyncRegistry owns one SyncCoordinator per active client. Coordinators are
// created lazily on first use and live until CloseAll at shutdown.
type SyncRegistry struct {
	feed       changefeed.Feed
	debounce   time.Duration
	grace      time.Duration
	invalidate func(uuid.UUID)
	logger     *zap.Logger

	mu           sync.Mutex
	coordinators map[uuid.UUID]*SyncCoordinator
}

// NewSyncRegistry creates an empty registry. The invalidate callback is
// shared by every coordinator; pass the aggregator's Invalidate.
func NewSyncRegistry(
	feed changefeed.Feed,
	debounce, grace time.Duration,
	invalidate func(uuid.UUID),
	logger *zap.Logger,
) *SyncRegistry {
	return &SyncRegistry{
		feed:         feed,
		debounce:     debounce,
		grace:        grace,
		invalidate:   invalidate,
		logger:       logger,
		coordinators: make(map[uuid.UUID]*SyncCoordinator),
	}
}

// Get returns the client's coordinator, creating and subscribing it on first
// use.
func (r *SyncRegistry) Get(clientID uuid.UUID) (*SyncCoordinator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.coordinators[clientID]; ok {
		return c, nil
	}

	c, err := NewSyncCoordinator(r.feed, clientID, r.debounce, r.grace, r.invalidate, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync coordinator: %w", err)
	}
	r.coordinators[clientID] = c
	return c, nil
}

// CloseAll closes every coordinator. Used at shutdown.
func (r *SyncRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, c := range r.coordinators {
		c.Close()
		delete(r.coordinators, id)
	}
}
