package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trainwell-app/trainwell-engine/pkg/apperrors"
	"github.com/trainwell-app/trainwell-engine/pkg/models"
)

// mockEngagementRepository keeps engagements in memory and can be told to
// fail writes, which exercises the rollback path.
type mockEngagementRepository struct {
	rows        map[uuid.UUID]*models.Engagement // keyed by trainer ID
	upsertErr   error
	listErr     error
	upsertCalls int
	listCalls   int
}

func newMockEngagementRepository() *mockEngagementRepository {
	return &mockEngagementRepository{rows: make(map[uuid.UUID]*models.Engagement)}
}

func (m *mockEngagementRepository) ListByClient(_ context.Context, clientID uuid.UUID) ([]*models.Engagement, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*models.Engagement, 0, len(m.rows))
	for _, e := range m.rows {
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}

func (m *mockEngagementRepository) GetByPair(_ context.Context, clientID, trainerID uuid.UUID) (*models.Engagement, error) {
	e, ok := m.rows[trainerID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (m *mockEngagementRepository) UpsertStage(_ context.Context, clientID, trainerID uuid.UUID, stage models.Stage) (*models.Engagement, error) {
	m.upsertCalls++
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	now := time.Now()
	e, ok := m.rows[trainerID]
	if !ok {
		e = &models.Engagement{
			ID:        uuid.New(),
			ClientID:  clientID,
			TrainerID: trainerID,
			CreatedAt: now,
		}
		m.rows[trainerID] = e
	}
	e.Stage = stage
	e.StampMilestone(stage, now)
	e.UpdatedAt = now
	copied := *e
	return &copied, nil
}

func newTestTracker(repo *mockEngagementRepository) EngagementTracker {
	return NewEngagementTracker(uuid.New(), repo, zap.NewNop())
}

func TestEngagementTracker_Stage_DefaultsToBrowsing(t *testing.T) {
	tracker := newTestTracker(newMockEngagementRepository())
	assert.Equal(t, models.StageBrowsing, tracker.Stage(uuid.New()))
}

func TestEngagementTracker_Like_CreatesEngagement(t *testing.T) {
	repo := newMockEngagementRepository()
	tracker := newTestTracker(repo)
	trainerID := uuid.New()

	require.NoError(t, tracker.Like(context.Background(), trainerID))

	assert.Equal(t, models.StageLiked, tracker.Stage(trainerID))
	require.Contains(t, repo.rows, trainerID)
	assert.Equal(t, models.StageLiked, repo.rows[trainerID].Stage)
	assert.NotNil(t, repo.rows[trainerID].LikedAt)
}

func TestEngagementTracker_Transition_RejectsIllegalJump(t *testing.T) {
	repo := newMockEngagementRepository()
	tracker := newTestTracker(repo)
	trainerID := uuid.New()

	err := tracker.Transition(context.Background(), trainerID, models.StageActiveClient)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrIllegalTransition)
	assert.Zero(t, repo.upsertCalls, "illegal transitions must not reach the store")
	assert.Equal(t, models.StageBrowsing, tracker.Stage(trainerID))
}

func TestEngagementTracker_Transition_RejectsUnknownStage(t *testing.T) {
	tracker := newTestTracker(newMockEngagementRepository())

	err := tracker.Transition(context.Background(), uuid.New(), models.Stage("vip"))

	assert.ErrorIs(t, err, apperrors.ErrIllegalTransition)
}

func TestEngagementTracker_Transition_SameStageIsNoOp(t *testing.T) {
	repo := newMockEngagementRepository()
	tracker := newTestTracker(repo)
	trainerID := uuid.New()
	require.NoError(t, tracker.Like(context.Background(), trainerID))
	callsAfterLike := repo.upsertCalls

	require.NoError(t, tracker.Like(context.Background(), trainerID))

	assert.Equal(t, callsAfterLike, repo.upsertCalls)
}

func TestEngagementTracker_Transition_RollsBackOnStoreFailure(t *testing.T) {
	repo := newMockEngagementRepository()
	tracker := newTestTracker(repo)
	trainerID := uuid.New()
	require.NoError(t, tracker.Like(context.Background(), trainerID))

	repo.upsertErr = errors.New("connection reset")
	err := tracker.Shortlist(context.Background(), trainerID)

	require.Error(t, err)
	assert.Equal(t, models.StageLiked, tracker.Stage(trainerID), "cache must revert to the pre-write snapshot")
}

func TestEngagementTracker_Transition_RefetchesAfterCommit(t *testing.T) {
	repo := newMockEngagementRepository()
	tracker := newTestTracker(repo)
	trainerID := uuid.New()
	listCallsBefore := repo.listCalls

	require.NoError(t, tracker.Like(context.Background(), trainerID))

	assert.Greater(t, repo.listCalls, listCallsBefore, "confirmed writes trigger a reconciling re-fetch")
}

func TestEngagementTracker_Transition_SurvivesFailedReconcile(t *testing.T) {
	repo := newMockEngagementRepository()
	tracker := newTestTracker(repo)
	trainerID := uuid.New()
	repo.listErr = errors.New("store offline")

	require.NoError(t, tracker.Like(context.Background(), trainerID))

	assert.Equal(t, models.StageLiked, tracker.Stage(trainerID), "optimistic state stays when the re-fetch fails")
}

func TestEngagementTracker_Decline_AllowedFromAnyActiveStage(t *testing.T) {
	repo := newMockEngagementRepository()
	tracker := newTestTracker(repo)
	trainerID := uuid.New()
	ctx := context.Background()
	require.NoError(t, tracker.Like(ctx, trainerID))
	require.NoError(t, tracker.Shortlist(ctx, trainerID))

	require.NoError(t, tracker.Decline(ctx, trainerID))
	require.NoError(t, tracker.DismissDeclined(ctx, trainerID))

	assert.Equal(t, models.StageDeclinedDismissed, tracker.Stage(trainerID))
}

func TestEngagementTracker_FullLifecycle(t *testing.T) {
	repo := newMockEngagementRepository()
	tracker := newTestTracker(repo)
	trainerID := uuid.New()
	ctx := context.Background()

	require.NoError(t, tracker.Like(ctx, trainerID))
	require.NoError(t, tracker.Shortlist(ctx, trainerID))
	require.NoError(t, tracker.BookDiscoveryCall(ctx, trainerID))
	require.NoError(t, tracker.CompleteDiscovery(ctx, trainerID))
	require.NoError(t, tracker.Agree(ctx, trainerID))
	require.NoError(t, tracker.Transition(ctx, trainerID, models.StagePaymentPending))
	require.NoError(t, tracker.BecomeClient(ctx, trainerID))

	row := repo.rows[trainerID]
	assert.Equal(t, models.StageActiveClient, row.Stage)
	assert.NotNil(t, row.LikedAt)
	assert.NotNil(t, row.DiscoveryCompletedAt)
	assert.NotNil(t, row.BecameClientAt)
}

func TestEngagementTracker_MigrateLiked_SkipsExistingEngagement(t *testing.T) {
	repo := newMockEngagementRepository()
	tracker := newTestTracker(repo)
	trainerID := uuid.New()
	ctx := context.Background()
	require.NoError(t, tracker.Like(ctx, trainerID))
	require.NoError(t, tracker.Shortlist(ctx, trainerID))
	callsBefore := repo.upsertCalls

	require.NoError(t, tracker.MigrateLiked(ctx, trainerID))

	assert.Equal(t, callsBefore, repo.upsertCalls)
	assert.Equal(t, models.StageShortlisted, tracker.Stage(trainerID))
}

func TestEngagementTracker_Refresh_LoadsStoreState(t *testing.T) {
	repo := newMockEngagementRepository()
	clientID := uuid.New()
	trainerID := uuid.New()
	_, err := repo.UpsertStage(context.Background(), clientID, trainerID, models.StageShortlisted)
	require.NoError(t, err)
	tracker := NewEngagementTracker(clientID, repo, zap.NewNop())

	require.NoError(t, tracker.Refresh(context.Background()))

	assert.Equal(t, models.StageShortlisted, tracker.Stage(trainerID))
	assert.Len(t, tracker.Engagements(), 1)
}
