package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trainwell-app/trainwell-engine/pkg/apperrors"
	"github.com/trainwell-app/trainwell-engine/pkg/models"
	"github.com/trainwell-app/trainwell-engine/pkg/repositories"
	"github.com/trainwell-app/trainwell-engine/pkg/sessionstore"
)

// sessionKeyPrefix namespaces local store keys. Each visitor's session lives
// under its own token so concurrent visitors never share state.
const sessionKeyPrefix = "trainwell_anonymous_session:"

// AnonymousSessionManager owns pre-authentication visitor state: saved
// trainer IDs (capped) and quiz answers, addressed by the opaque session
// token the caller pins to the visitor. The local store is authoritative;
// every mutation persists locally, broadcasts through the hub so all
// consumers converge, then mirrors to the persistent store for cross-device
// recovery. Mirror failures are logged and never surfaced; the visitor is
// not blocked by remote hiccups.
type AnonymousSessionManager struct {
	store  sessionstore.Store
	hub    *sessionstore.Hub
	mirror repositories.AnonymousSessionRepository
	ttl    time.Duration
	cap    int
	logger *zap.Logger

	// mu serializes read-modify-write sequences against the local store.
	mu sync.Mutex
}

// NewAnonymousSessionManager creates a token-addressed session manager.
func NewAnonymousSessionManager(
	store sessionstore.Store,
	hub *sessionstore.Hub,
	mirror repositories.AnonymousSessionRepository,
	ttl time.Duration,
	savedCap int,
	logger *zap.Logger,
) *AnonymousSessionManager {
	return &AnonymousSessionManager{
		store:  store,
		hub:    hub,
		mirror: mirror,
		ttl:    ttl,
		cap:    savedCap,
		logger: logger.Named("anonymous-session-manager"),
	}
}

func localKey(token string) string {
	return sessionKeyPrefix + token
}

// load resolves a token to its working session: local store first, mirror as
// the recovery fallback. Expired or unreadable local copies are dropped.
// Callers must hold mu.
func (m *AnonymousSessionManager) load(ctx context.Context, token string) *models.AnonymousSession {
	if token == "" {
		return nil
	}

	raw, ok, err := m.store.Get(localKey(token))
	if err != nil {
		m.logger.Warn("failed to read local session", zap.Error(err))
	}
	if ok {
		var session models.AnonymousSession
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			m.logger.Warn("discarding unreadable local session", zap.Error(err))
			m.removeLocal(token)
		} else if session.IsExpired(time.Now()) {
			m.removeLocal(token)
			return nil
		} else {
			return &session
		}
	}

	remote, err := m.mirror.GetByToken(ctx, token)
	if err != nil {
		if err != apperrors.ErrNotFound {
			m.logger.Warn("failed to recover session from mirror", zap.Error(err))
		}
		return nil
	}
	m.persistLocal(remote)
	return remote
}

// Get returns a copy of the token's working session, or nil when the token
// is empty, unknown, or expired.
func (m *AnonymousSessionManager) Get(ctx context.Context, token string) *models.AnonymousSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(ctx, token).Clone()
}

// CreateSession starts a fresh working session and returns a copy of it. The
// caller is responsible for pinning the returned token to the visitor.
func (m *AnonymousSessionManager) CreateSession(ctx context.Context) *models.AnonymousSession {
	session := models.NewAnonymousSession(m.ttl)
	m.mu.Lock()
	m.persistLocal(session)
	m.mu.Unlock()
	m.publish(ctx, session)
	return session.Clone()
}

// SaveTrainer appends a trainer to the token's saved list. Returns false
// without any write when the trainer is already saved or the list is at the
// cap. A missing or expired session is replaced by a fresh one, so the
// returned session's token may differ from the argument.
func (m *AnonymousSessionManager) SaveTrainer(ctx context.Context, token string, trainerID uuid.UUID) (*models.AnonymousSession, bool) {
	m.mu.Lock()
	session := m.load(ctx, token)
	if session == nil {
		session = models.NewAnonymousSession(m.ttl)
	}
	if session.HasTrainer(trainerID) || len(session.SavedTrainerIDs) >= m.cap {
		m.mu.Unlock()
		return session.Clone(), false
	}
	session.SavedTrainerIDs = append(session.SavedTrainerIDs, trainerID)
	m.persistLocal(session)
	m.mu.Unlock()

	m.publish(ctx, session)
	return session.Clone(), true
}

// UnsaveTrainer removes a trainer from the token's saved list. Returns false
// when the session is absent or the trainer was not saved.
func (m *AnonymousSessionManager) UnsaveTrainer(ctx context.Context, token string, trainerID uuid.UUID) (*models.AnonymousSession, bool) {
	m.mu.Lock()
	session := m.load(ctx, token)
	if session == nil || !session.HasTrainer(trainerID) {
		m.mu.Unlock()
		return session.Clone(), false
	}
	kept := make([]uuid.UUID, 0, len(session.SavedTrainerIDs)-1)
	for _, id := range session.SavedTrainerIDs {
		if id != trainerID {
			kept = append(kept, id)
		}
	}
	session.SavedTrainerIDs = kept
	m.persistLocal(session)
	m.mu.Unlock()

	m.publish(ctx, session)
	return session.Clone(), true
}

// SaveQuizResults attaches quiz answers to the token's session, creating a
// fresh session when none exists.
func (m *AnonymousSessionManager) SaveQuizResults(ctx context.Context, token string, answers *models.QuizAnswers) *models.AnonymousSession {
	m.mu.Lock()
	session := m.load(ctx, token)
	if session == nil {
		session = models.NewAnonymousSession(m.ttl)
	}
	session.QuizAnswers = answers
	m.persistLocal(session)
	m.mu.Unlock()

	m.publish(ctx, session)
	return session.Clone()
}

// ClearSession removes the token's local state, broadcasts the removal, and
// deletes the mirror row. Used once migration into an authenticated account
// succeeds.
func (m *AnonymousSessionManager) ClearSession(ctx context.Context, token string) {
	if token == "" {
		return
	}

	m.mu.Lock()
	m.removeLocal(token)
	m.mu.Unlock()
	m.hub.Broadcast(nil)

	if err := m.mirror.Delete(ctx, token); err != nil {
		m.logger.Warn("failed to delete mirrored session",
			zap.String("token", token),
			zap.Error(err))
	}
}

// LoadSessionByToken fetches a mirrored session for cross-device
// continuation and persists it locally. Expired or missing rows yield
// apperrors.ErrNotFound.
func (m *AnonymousSessionManager) LoadSessionByToken(ctx context.Context, token string) (*models.AnonymousSession, error) {
	remote, err := m.mirror.GetByToken(ctx, token)
	if err != nil {
		if err == apperrors.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load mirrored session: %w", err)
	}

	m.mu.Lock()
	m.persistLocal(remote)
	m.mu.Unlock()

	m.hub.Broadcast(remote.Clone())
	return remote.Clone(), nil
}

// publish fans a committed session out: broadcast to in-process listeners,
// then a best-effort mirror write. Runs after the local persist, outside the
// lock.
func (m *AnonymousSessionManager) publish(ctx context.Context, session *models.AnonymousSession) {
	m.hub.Broadcast(session.Clone())
	if err := m.mirror.Upsert(ctx, session); err != nil {
		m.logger.Warn("failed to mirror session",
			zap.String("token", session.Token),
			zap.Error(err))
	}
}

// persistLocal writes the session under its token key. Callers hold mu.
func (m *AnonymousSessionManager) persistLocal(session *models.AnonymousSession) {
	data, err := json.Marshal(session)
	if err != nil {
		m.logger.Error("failed to serialize session", zap.Error(err))
		return
	}
	if err := m.store.Set(localKey(session.Token), string(data)); err != nil {
		m.logger.Warn("failed to persist local session", zap.Error(err))
	}
}

func (m *AnonymousSessionManager) removeLocal(token string) {
	if err := m.store.Remove(localKey(token)); err != nil {
		m.logger.Warn("failed to remove local session", zap.Error(err))
	}
}
