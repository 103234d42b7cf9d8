package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trainwell-app/trainwell-engine/pkg/changefeed"
)

func publishEngagementEvent(t *testing.T, feed changefeed.Feed, clientID uuid.UUID, evType changefeed.EventType) {
	t.Helper()
	err := feed.Publish(context.Background(), changefeed.Event{
		Table:      changefeed.TableEngagements,
		Type:       evType,
		ClientID:   clientID,
		OccurredAt: time.Now(),
	})
	require.NoError(t, err)
}

func waitForRefresh(t *testing.T, c *SyncCoordinator, timeout time.Duration) {
	t.Helper()
	select {
	case <-c.Refreshes():
	case <-time.After(timeout):
		t.Fatal("timed out waiting for refresh trigger")
	}
}

func TestSyncCoordinator_DebouncesBurstIntoOneTrigger(t *testing.T) {
	feed := changefeed.NewMemoryFeed()
	clientID := uuid.New()
	c, err := NewSyncCoordinator(feed, clientID, 30*time.Millisecond, 10*time.Millisecond, nil, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 5; i++ {
		publishEngagementEvent(t, feed, clientID, changefeed.EventUpdate)
	}
	waitForRefresh(t, c, time.Second)
	// Allow a second trigger to land if the burst were not coalesced.
	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, int64(1), c.RefreshCount())
}

func TestSyncCoordinator_IgnoresOtherClients(t *testing.T) {
	feed := changefeed.NewMemoryFeed()
	c, err := NewSyncCoordinator(feed, uuid.New(), 10*time.Millisecond, 10*time.Millisecond, nil, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	publishEngagementEvent(t, feed, uuid.New(), changefeed.EventUpdate)
	time.Sleep(50 * time.Millisecond)

	assert.Zero(t, c.RefreshCount())
}

func TestSyncCoordinator_DiscoveryCallInsertTriggers(t *testing.T) {
	feed := changefeed.NewMemoryFeed()
	clientID := uuid.New()
	c, err := NewSyncCoordinator(feed, clientID, 10*time.Millisecond, 10*time.Millisecond, nil, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, feed.Publish(context.Background(), changefeed.Event{
		Table:      changefeed.TableDiscoveryCalls,
		Type:       changefeed.EventInsert,
		ClientID:   clientID,
		OccurredAt: time.Now(),
	}))

	waitForRefresh(t, c, time.Second)
	assert.Equal(t, int64(1), c.RefreshCount())
}

func TestSyncCoordinator_DiscoveryCallUpdateIsFiltered(t *testing.T) {
	feed := changefeed.NewMemoryFeed()
	clientID := uuid.New()
	c, err := NewSyncCoordinator(feed, clientID, 10*time.Millisecond, 10*time.Millisecond, nil, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, feed.Publish(context.Background(), changefeed.Event{
		Table:      changefeed.TableDiscoveryCalls,
		Type:       changefeed.EventUpdate,
		ClientID:   clientID,
		OccurredAt: time.Now(),
	}))
	time.Sleep(50 * time.Millisecond)

	assert.Zero(t, c.RefreshCount())
}

func TestSyncCoordinator_TriggerInvalidatesCache(t *testing.T) {
	feed := changefeed.NewMemoryFeed()
	clientID := uuid.New()
	var mu sync.Mutex
	var invalidated []uuid.UUID
	c, err := NewSyncCoordinator(feed, clientID, 10*time.Millisecond, 10*time.Millisecond, func(id uuid.UUID) {
		mu.Lock()
		invalidated = append(invalidated, id)
		mu.Unlock()
	}, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	publishEngagementEvent(t, feed, clientID, changefeed.EventInsert)
	waitForRefresh(t, c, time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, invalidated, 1)
	assert.Equal(t, clientID, invalidated[0])
}

func TestSyncCoordinator_RefreshData_BumpsImmediatelyAndClearsFlag(t *testing.T) {
	feed := changefeed.NewMemoryFeed()
	c, err := NewSyncCoordinator(feed, uuid.New(), time.Second, 20*time.Millisecond, nil, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()
	c.SetTrainersLoaded(true)
	c.SetEngagementsLoaded(true)

	c.RefreshData()

	assert.Equal(t, int64(1), c.RefreshCount())
	assert.True(t, c.IsRefreshing())
	assert.False(t, c.AllDataReady(), "manual refresh resets both loaded flags")

	assert.Eventually(t, func() bool { return !c.IsRefreshing() }, time.Second, 5*time.Millisecond)
}

func TestSyncCoordinator_AllDataReady_RequiresBothHalves(t *testing.T) {
	feed := changefeed.NewMemoryFeed()
	c, err := NewSyncCoordinator(feed, uuid.New(), time.Second, time.Second, nil, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	assert.False(t, c.AllDataReady())
	c.SetTrainersLoaded(true)
	assert.False(t, c.AllDataReady())
	c.SetEngagementsLoaded(true)
	assert.True(t, c.AllDataReady())
}

func TestSyncCoordinator_Close_StopsTriggering(t *testing.T) {
	feed := changefeed.NewMemoryFeed()
	clientID := uuid.New()
	c, err := NewSyncCoordinator(feed, clientID, 10*time.Millisecond, 10*time.Millisecond, nil, zap.NewNop())
	require.NoError(t, err)

	c.Close()
	publishEngagementEvent(t, feed, clientID, changefeed.EventUpdate)
	time.Sleep(50 * time.Millisecond)

	assert.Zero(t, c.RefreshCount())
}
