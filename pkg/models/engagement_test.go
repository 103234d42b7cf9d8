package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStage_CanTransitionTo_HappyPath(t *testing.T) {
	path := []Stage{
		StageBrowsing,
		StageLiked,
		StageShortlisted,
		StageGettingToKnowCoach,
		StageDiscoveryInProgress,
		StageDiscoveryCompleted,
		StageAgreed,
		StagePaymentPending,
		StageActiveClient,
	}

	for i := 0; i < len(path)-1; i++ {
		assert.True(t, path[i].CanTransitionTo(path[i+1]),
			"expected %s → %s to be legal", path[i], path[i+1])
	}
}

func TestStage_CanTransitionTo_SameStageIsIdempotent(t *testing.T) {
	for _, s := range ValidStages {
		assert.True(t, s.CanTransitionTo(s), "expected %s → %s to be legal", s, s)
	}
}

func TestStage_CanTransitionTo_DeclineFromAnywhere(t *testing.T) {
	for _, s := range ValidStages {
		if s == StageDeclinedDismissed {
			continue
		}
		assert.True(t, s.CanTransitionTo(StageDeclined), "expected %s → declined to be legal", s)
		assert.True(t, s.CanTransitionTo(StageUnmatched), "expected %s → unmatched to be legal", s)
	}
}

func TestStage_CanTransitionTo_IllegalJumps(t *testing.T) {
	tests := []struct {
		from, to Stage
	}{
		{StageBrowsing, StageActiveClient},
		{StageLiked, StagePaymentPending},
		{StageActiveClient, StageLiked},
		{StageDeclinedDismissed, StageDeclined},
		{StageAgreed, StageMatched},
	}

	for _, tt := range tests {
		assert.False(t, tt.from.CanTransitionTo(tt.to),
			"expected %s → %s to be illegal", tt.from, tt.to)
	}
}

func TestStage_CanTransitionTo_ReEngageAfterDecline(t *testing.T) {
	assert.True(t, StageDeclined.CanTransitionTo(StageDeclinedDismissed))
	assert.True(t, StageDeclined.CanTransitionTo(StageLiked))
	assert.True(t, StageUnmatched.CanTransitionTo(StageLiked))
}

func TestStage_InDiscovery(t *testing.T) {
	assert.True(t, StageGettingToKnowCoach.InDiscovery())
	assert.True(t, StageDiscoveryInProgress.InDiscovery())
	assert.True(t, StageDiscoveryCompleted.InDiscovery())
	assert.True(t, StageAgreed.InDiscovery())
	assert.False(t, StageLiked.InDiscovery())
	assert.False(t, StageShortlisted.InDiscovery())
	assert.False(t, StageMatched.InDiscovery())
}

func TestIsValidStage(t *testing.T) {
	assert.True(t, IsValidStage(StageLiked))
	assert.True(t, IsValidStage(StageDeclinedDismissed))
	assert.False(t, IsValidStage(Stage("favourited")))
	assert.False(t, IsValidStage(Stage("")))
}

func TestEngagement_StampMilestone(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)

	e := &Engagement{Stage: StageLiked}
	e.StampMilestone(StageLiked, now)
	assert.NotNil(t, e.LikedAt)
	assert.Equal(t, now, *e.LikedAt)

	// Already stamped, must not move
	e.StampMilestone(StageLiked, later)
	assert.Equal(t, now, *e.LikedAt)

	// Stage without a milestone leaves everything untouched
	e.StampMilestone(StageShortlisted, later)
	assert.Nil(t, e.MatchedAt)
	assert.Nil(t, e.DiscoveryCompletedAt)
	assert.Nil(t, e.BecameClientAt)
}
