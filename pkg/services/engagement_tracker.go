package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trainwell-app/trainwell-engine/pkg/apperrors"
	"github.com/trainwell-app/trainwell-engine/pkg/models"
	"github.com/trainwell-app/trainwell-engine/pkg/repositories"
)

// EngagementTracker tracks every trainer relationship for a single client
// through its lifecycle stages. Reads are served from an in-memory cache of
// the client's engagement rows; writes are optimistic: the cache is patched
// immediately, the upsert is confirmed against the store, and on failure the
// cache is rolled back to its pre-write snapshot. After a confirmed write the
// tracker re-fetches the full list so the cache converges on store state.
type EngagementTracker interface {
	// Refresh replaces the cached engagement list with store state.
	Refresh(ctx context.Context) error

	// Engagements returns a copy of the cached engagement list.
	Engagements() []*models.Engagement

	// Stage returns the cached stage for a trainer, or StageBrowsing when no
	// engagement exists for the pair.
	Stage(trainerID uuid.UUID) models.Stage

	// Transition moves the trainer's engagement to target. Illegal
	// transitions fail with apperrors.ErrIllegalTransition before any write.
	Transition(ctx context.Context, trainerID uuid.UUID, target models.Stage) error

	// MigrateLiked records a liked engagement for a trainer carried over from
	// an anonymous session. Trainers already past browsing are left untouched.
	MigrateLiked(ctx context.Context, trainerID uuid.UUID) error

	Like(ctx context.Context, trainerID uuid.UUID) error
	Shortlist(ctx context.Context, trainerID uuid.UUID) error
	RemoveFromShortlist(ctx context.Context, trainerID uuid.UUID) error
	Decline(ctx context.Context, trainerID uuid.UUID) error
	DismissDeclined(ctx context.Context, trainerID uuid.UUID) error
	Unmatch(ctx context.Context, trainerID uuid.UUID) error
	BookDiscoveryCall(ctx context.Context, trainerID uuid.UUID) error
	CompleteDiscovery(ctx context.Context, trainerID uuid.UUID) error
	Agree(ctx context.Context, trainerID uuid.UUID) error
	BecomeClient(ctx context.Context, trainerID uuid.UUID) error
}

type engagementTracker struct {
	clientID uuid.UUID
	repo     repositories.EngagementRepository
	logger   *zap.Logger

	mu          sync.Mutex
	engagements []*models.Engagement
	loaded      bool
}

var _ EngagementTracker = (*engagementTracker)(nil)

// NewEngagementTracker creates a tracker scoped to one client. The cache
// starts empty; callers should Refresh before relying on Stage reads.
func NewEngagementTracker(clientID uuid.UUID, repo repositories.EngagementRepository, logger *zap.Logger) EngagementTracker {
	return &engagementTracker{
		clientID: clientID,
		repo:     repo,
		logger:   logger.Named("engagement-tracker").With(zap.String("client_id", clientID.String())),
	}
}

func (t *engagementTracker) Refresh(ctx context.Context) error {
	engagements, err := t.repo.ListByClient(ctx, t.clientID)
	if err != nil {
		return fmt.Errorf("failed to refresh engagements: %w", err)
	}

	t.mu.Lock()
	t.engagements = engagements
	t.loaded = true
	t.mu.Unlock()
	return nil
}

func (t *engagementTracker) Engagements() []*models.Engagement {
	t.mu.Lock()
	defer t.mu.Unlock()
	return cloneEngagements(t.engagements)
}

func (t *engagementTracker) Stage(trainerID uuid.UUID) models.Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.engagements {
		if e.TrainerID == trainerID {
			return e.Stage
		}
	}
	return models.StageBrowsing
}

func (t *engagementTracker) Transition(ctx context.Context, trainerID uuid.UUID, target models.Stage) error {
	if !models.IsValidStage(target) {
		return fmt.Errorf("unknown stage %q: %w", target, apperrors.ErrIllegalTransition)
	}

	t.mu.Lock()
	current := models.StageBrowsing
	for _, e := range t.engagements {
		if e.TrainerID == trainerID {
			current = e.Stage
			break
		}
	}
	if !current.CanTransitionTo(target) {
		t.mu.Unlock()
		return fmt.Errorf("cannot move from %s to %s: %w", current, target, apperrors.ErrIllegalTransition)
	}
	if current == target {
		t.mu.Unlock()
		return nil
	}
	snapshot := cloneEngagements(t.engagements)
	t.mu.Unlock()

	err := optimistic(ctx, snapshot,
		func() {
			t.mu.Lock()
			t.patchStage(trainerID, target)
			t.mu.Unlock()
		},
		func(ctx context.Context) error {
			_, err := t.repo.UpsertStage(ctx, t.clientID, trainerID, target)
			return err
		},
		func(s []*models.Engagement) {
			t.mu.Lock()
			t.engagements = s
			t.mu.Unlock()
			t.logger.Warn("stage transition rolled back",
				zap.String("trainer_id", trainerID.String()),
				zap.String("from", string(current)),
				zap.String("to", string(target)))
		},
	)
	if err != nil {
		return fmt.Errorf("failed to transition to %s: %w", target, err)
	}

	// Reconcile with store state. The optimistic patch already holds the
	// confirmed stage, so a failed re-fetch leaves the cache usable.
	if err := t.Refresh(ctx); err != nil {
		t.logger.Warn("post-transition refresh failed", zap.Error(err))
	}
	return nil
}

func (t *engagementTracker) MigrateLiked(ctx context.Context, trainerID uuid.UUID) error {
	if t.Stage(trainerID) != models.StageBrowsing {
		return nil
	}
	return t.Transition(ctx, trainerID, models.StageLiked)
}

func (t *engagementTracker) Like(ctx context.Context, trainerID uuid.UUID) error {
	return t.Transition(ctx, trainerID, models.StageLiked)
}

func (t *engagementTracker) Shortlist(ctx context.Context, trainerID uuid.UUID) error {
	return t.Transition(ctx, trainerID, models.StageShortlisted)
}

func (t *engagementTracker) RemoveFromShortlist(ctx context.Context, trainerID uuid.UUID) error {
	return t.Transition(ctx, trainerID, models.StageLiked)
}

func (t *engagementTracker) Decline(ctx context.Context, trainerID uuid.UUID) error {
	return t.Transition(ctx, trainerID, models.StageDeclined)
}

func (t *engagementTracker) DismissDeclined(ctx context.Context, trainerID uuid.UUID) error {
	return t.Transition(ctx, trainerID, models.StageDeclinedDismissed)
}

func (t *engagementTracker) Unmatch(ctx context.Context, trainerID uuid.UUID) error {
	return t.Transition(ctx, trainerID, models.StageUnmatched)
}

func (t *engagementTracker) BookDiscoveryCall(ctx context.Context, trainerID uuid.UUID) error {
	return t.Transition(ctx, trainerID, models.StageDiscoveryInProgress)
}

func (t *engagementTracker) CompleteDiscovery(ctx context.Context, trainerID uuid.UUID) error {
	return t.Transition(ctx, trainerID, models.StageDiscoveryCompleted)
}

func (t *engagementTracker) Agree(ctx context.Context, trainerID uuid.UUID) error {
	return t.Transition(ctx, trainerID, models.StageAgreed)
}

func (t *engagementTracker) BecomeClient(ctx context.Context, trainerID uuid.UUID) error {
	return t.Transition(ctx, trainerID, models.StageActiveClient)
}

// patchStage mutates the cached list in place; callers hold t.mu.
func (t *engagementTracker) patchStage(trainerID uuid.UUID, target models.Stage) {
	for _, e := range t.engagements {
		if e.TrainerID == trainerID {
			e.Stage = target
			return
		}
	}
	t.engagements = append(t.engagements, &models.Engagement{
		ID:        uuid.New(),
		ClientID:  t.clientID,
		TrainerID: trainerID,
		Stage:     target,
	})
}

func cloneEngagements(in []*models.Engagement) []*models.Engagement {
	out := make([]*models.Engagement, len(in))
	for i, e := range in {
		copied := *e
		out[i] = &copied
	}
	return out
}

// IsIllegalTransition reports whether err came from a rejected stage change.
func IsIllegalTransition(err error) bool {
	return errors.Is(err, apperrors.ErrIllegalTransition)
}
