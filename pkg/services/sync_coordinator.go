package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trainwell-app/trainwell-engine/pkg/changefeed"
)

// SyncCoordinator collapses bursts of change-feed events for one client into
// a single refresh signal so consumers do not refetch once per changed row.
// It watches every engagement event and new discovery-call rows; each
// matching event restarts a debounce timer, and only when the timer elapses
// does the refresh trigger fire. A manual RefreshData path bumps the trigger
// immediately and holds an isRefreshing flag for a short grace period.
type SyncCoordinator struct {
	clientID   uuid.UUID
	debounce   time.Duration
	grace      time.Duration
	invalidate func(uuid.UUID)
	logger     *zap.Logger

	mu            sync.Mutex
	timer         *time.Timer
	graceTimer    *time.Timer
	refreshCount  int64
	isRefreshing  bool
	trainersReady bool
	stagesReady   bool
	closed        bool
	subs          []changefeed.Subscription

	refreshes chan struct{}
}

// NewSyncCoordinator subscribes to the feed for one client. The invalidate
// callback runs before each trigger fires so the next aggregator read
// recomputes; pass the aggregator's Invalidate.
func NewSyncCoordinator(
	feed changefeed.Feed,
	clientID uuid.UUID,
	debounce, grace time.Duration,
	invalidate func(uuid.UUID),
	logger *zap.Logger,
) (*SyncCoordinator, error) {
	c := &SyncCoordinator{
		clientID:   clientID,
		debounce:   debounce,
		grace:      grace,
		invalidate: invalidate,
		logger:     logger.Named("sync-coordinator").With(zap.String("client_id", clientID.String())),
		refreshes:  make(chan struct{}, 1),
	}

	engagementSub, err := feed.Subscribe(changefeed.TableEngagements, nil, clientID, c.onEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to engagement changes: %w", err)
	}
	callSub, err := feed.Subscribe(changefeed.TableDiscoveryCalls, []changefeed.EventType{changefeed.EventInsert}, clientID, c.onEvent)
	if err != nil {
		engagementSub.Unsubscribe()
		return nil, fmt.Errorf("failed to subscribe to discovery call changes: %w", err)
	}
	c.subs = []changefeed.Subscription{engagementSub, callSub}
	return c, nil
}

// Refreshes returns the channel that receives one signal per fired trigger.
// Signals coalesce: a slow consumer sees at least one signal, not one per
// burst.
func (c *SyncCoordinator) Refreshes() <-chan struct{} {
	return c.refreshes
}

// RefreshCount returns how many times the trigger has fired.
func (c *SyncCoordinator) RefreshCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshCount
}

func (c *SyncCoordinator) onEvent(ev changefeed.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.logger.Debug("change event received",
		zap.String("table", ev.Table),
		zap.String("type", string(ev.Type)))
	if c.timer == nil {
		c.timer = time.AfterFunc(c.debounce, c.fire)
		return
	}
	c.timer.Reset(c.debounce)
}

// fire runs when the debounce window closes.
func (c *SyncCoordinator) fire() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.refreshCount++
	count := c.refreshCount
	c.mu.Unlock()

	if c.invalidate != nil {
		c.invalidate(c.clientID)
	}
	select {
	case c.refreshes <- struct{}{}:
	default:
	}
	c.logger.Debug("refresh triggered", zap.Int64("count", count))
}

// RefreshData bumps the trigger immediately, resets both loaded flags, and
// clears isRefreshing after the grace period. The grace timer is a display
// affordance, not a correctness mechanism.
func (c *SyncCoordinator) RefreshData() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.trainersReady = false
	c.stagesReady = false
	c.isRefreshing = true
	c.refreshCount++
	if c.graceTimer != nil {
		c.graceTimer.Stop()
	}
	c.graceTimer = time.AfterFunc(c.grace, func() {
		c.mu.Lock()
		c.isRefreshing = false
		c.mu.Unlock()
	})
	c.mu.Unlock()

	if c.invalidate != nil {
		c.invalidate(c.clientID)
	}
	select {
	case c.refreshes <- struct{}{}:
	default:
	}
}

// IsRefreshing reports whether a manual refresh is inside its grace period.
func (c *SyncCoordinator) IsRefreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isRefreshing
}

// SetTrainersLoaded records that the trainer half of a cross-referenced read
// has landed.
func (c *SyncCoordinator) SetTrainersLoaded(loaded bool) {
	c.mu.Lock()
	c.trainersReady = loaded
	c.mu.Unlock()
}

// SetEngagementsLoaded records that the engagement half has landed.
func (c *SyncCoordinator) SetEngagementsLoaded(loaded bool) {
	c.mu.Lock()
	c.stagesReady = loaded
	c.mu.Unlock()
}

// AllDataReady reports whether both halves of the cross-referenced read are
// loaded.
func (c *SyncCoordinator) AllDataReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trainersReady && c.stagesReady
}

// Close unsubscribes from the feed and stops pending timers. Events arriving
// after Close are ignored.
func (c *SyncCoordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
