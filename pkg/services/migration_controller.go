package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trainwell-app/trainwell-engine/pkg/apperrors"
	"github.com/trainwell-app/trainwell-engine/pkg/models"
	"github.com/trainwell-app/trainwell-engine/pkg/repositories"
	"github.com/trainwell-app/trainwell-engine/pkg/retry"
)

// profileWaitDelay is how long the controller waits before the single retry
// of a profile read, covering the window between signup and the trigger that
// provisions the profile row.
const profileWaitDelay = 500 * time.Millisecond

// MigrationState guards the controller against duplicate runs within one
// process lifetime: at most one migration per authenticated user, never two
// concurrently.
type MigrationState struct {
	mu         sync.Mutex
	inProgress bool
	migrated   map[uuid.UUID]bool
}

// NewMigrationState creates an empty guard.
func NewMigrationState() *MigrationState {
	return &MigrationState{migrated: make(map[uuid.UUID]bool)}
}

// begin marks a run as started. Returns false when the user was already
// migrated or another run is in flight.
func (s *MigrationState) begin(userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inProgress || s.migrated[userID] {
		return false
	}
	s.inProgress = true
	return true
}

// end records the outcome. Completed runs are never reattempted for the same
// user, even after partial failure; a run that found no anonymous data leaves
// the guard open for later sign-ins that do have data.
func (s *MigrationState) end(userID uuid.UUID, completed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress = false
	if completed {
		s.migrated[userID] = true
	}
}

// Migrated reports whether the user has already been migrated this process.
func (s *MigrationState) Migrated(userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.migrated[userID]
}

// MigrationController merges anonymous-session data into an authenticated
// client's account on first sign-in: saved trainers become liked engagements
// and quiz answers map onto the profile's preference schema. The merge is
// best effort rather than atomic; each step swallows its own errors, logs
// them, and continues, so a remote hiccup never blocks sign-in. Partial
// migration is an accepted outcome.
type MigrationController struct {
	sessions    *AnonymousSessionManager
	engagements repositories.EngagementRepository
	profiles    repositories.ClientProfileRepository
	mirror      repositories.AnonymousSessionRepository
	state       *MigrationState
	logger      *zap.Logger
}

// NewMigrationController creates a controller sharing the process-wide state
// guard.
func NewMigrationController(
	sessions *AnonymousSessionManager,
	engagements repositories.EngagementRepository,
	profiles repositories.ClientProfileRepository,
	mirror repositories.AnonymousSessionRepository,
	state *MigrationState,
	logger *zap.Logger,
) *MigrationController {
	return &MigrationController{
		sessions:    sessions,
		engagements: engagements,
		profiles:    profiles,
		mirror:      mirror,
		state:       state,
		logger:      logger.Named("migration-controller"),
	}
}

// Run migrates anonymous data into the user's account. localToken is the
// visitor's pinned session token; remoteToken, when non-empty, names a
// mirrored session from a cross-device confirmation link and takes precedence
// over the local session, consumed exactly once. Non-client accounts are
// skipped entirely. Run never returns an error; all failures are logged.
func (c *MigrationController) Run(ctx context.Context, userID uuid.UUID, accountType string, localToken, remoteToken string) {
	if accountType != models.AccountTypeClient {
		return
	}
	if !c.state.begin(userID) {
		return
	}
	completed := false
	defer func() { c.state.end(userID, completed) }()

	logger := c.logger.With(zap.String("user_id", userID.String()))

	session := c.sessions.Get(ctx, localToken)
	if remoteToken != "" {
		remote, err := c.mirror.GetByToken(ctx, remoteToken)
		switch {
		case err == nil:
			session = remote
		case errors.Is(err, apperrors.ErrNotFound):
			logger.Info("cross-device session not found or expired",
				zap.String("token", remoteToken))
		default:
			logger.Warn("failed to load cross-device session",
				zap.String("token", remoteToken),
				zap.Error(err))
		}
	}
	if session == nil {
		return
	}

	c.migrateSavedTrainers(ctx, userID, session, logger)
	if session.QuizAnswers != nil {
		c.migrateQuizAnswers(ctx, userID, session.QuizAnswers, logger)
	}

	// Clear anonymous state regardless of partial failure so the merge is
	// not reattempted on the next sign-in. The visitor's pinned session goes
	// even when a cross-device session took precedence over it.
	c.sessions.ClearSession(ctx, localToken)
	if session.Token != "" && session.Token != localToken {
		if err := c.mirror.Delete(ctx, session.Token); err != nil {
			logger.Warn("failed to delete migrated session", zap.Error(err))
		}
	}
	if remoteToken != "" && remoteToken != session.Token && remoteToken != localToken {
		if err := c.mirror.Delete(ctx, remoteToken); err != nil {
			logger.Warn("failed to delete cross-device session", zap.Error(err))
		}
	}

	completed = true
	logger.Info("anonymous session migrated",
		zap.Int("saved_trainers", len(session.SavedTrainerIDs)),
		zap.Bool("had_quiz", session.QuizAnswers != nil))
}

// migrateSavedTrainers records each saved trainer as a liked engagement.
// Trainers the user already has an engagement with are left untouched.
func (c *MigrationController) migrateSavedTrainers(ctx context.Context, userID uuid.UUID, session *models.AnonymousSession, logger *zap.Logger) {
	if len(session.SavedTrainerIDs) == 0 {
		return
	}

	tracker := NewEngagementTracker(userID, c.engagements, c.logger)
	if err := tracker.Refresh(ctx); err != nil {
		logger.Warn("failed to load existing engagements before migration", zap.Error(err))
	}

	for _, trainerID := range session.SavedTrainerIDs {
		if err := tracker.MigrateLiked(ctx, trainerID); err != nil {
			logger.Warn("failed to migrate saved trainer",
				zap.String("trainer_id", trainerID.String()),
				zap.Error(err))
		}
	}
}

// migrateQuizAnswers maps quiz answers onto the profile preference schema.
// The profile row is provisioned by a backend trigger shortly after signup,
// so a missing row is retried once after a short delay and then abandoned.
func (c *MigrationController) migrateQuizAnswers(ctx context.Context, userID uuid.UUID, answers *models.QuizAnswers, logger *zap.Logger) {
	profile, err := retry.DoWithResult(ctx, retry.Once(profileWaitDelay), func() (*models.ClientProfile, error) {
		return c.profiles.Get(ctx, userID)
	})
	if err != nil {
		logger.Warn("profile not available, abandoning quiz migration", zap.Error(err))
		return
	}
	if !profile.IsClient() {
		logger.Info("skipping quiz migration for non-client profile")
		return
	}

	if err := c.profiles.UpdatePreferences(ctx, userID, answers.Preferences()); err != nil {
		logger.Warn("failed to write quiz preferences", zap.Error(err))
	}
}
