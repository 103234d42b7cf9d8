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
	"github.com/trainwell-app/trainwell-engine/pkg/sessionstore"
)

type mockAnonymousSessionRepository struct {
	rows      map[string]*models.AnonymousSession
	upsertErr error
	deletes   []string
}

func newMockAnonymousSessionRepository() *mockAnonymousSessionRepository {
	return &mockAnonymousSessionRepository{rows: make(map[string]*models.AnonymousSession)}
}

func (m *mockAnonymousSessionRepository) Upsert(_ context.Context, session *models.AnonymousSession) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.rows[session.Token] = session.Clone()
	return nil
}

func (m *mockAnonymousSessionRepository) GetByToken(_ context.Context, token string) (*models.AnonymousSession, error) {
	s, ok := m.rows[token]
	if !ok || s.IsExpired(time.Now()) {
		return nil, apperrors.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *mockAnonymousSessionRepository) Delete(_ context.Context, token string) error {
	m.deletes = append(m.deletes, token)
	delete(m.rows, token)
	return nil
}

func (m *mockAnonymousSessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}

type sessionFixture struct {
	manager *AnonymousSessionManager
	store   *sessionstore.MemoryStore
	hub     *sessionstore.Hub
	mirror  *mockAnonymousSessionRepository
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		store:  sessionstore.NewMemoryStore(),
		hub:    sessionstore.NewHub(),
		mirror: newMockAnonymousSessionRepository(),
	}
	f.manager = NewAnonymousSessionManager(f.store, f.hub, f.mirror, models.DefaultSessionTTL, 5, zap.NewNop())
	return f
}

func TestAnonymousSessionManager_CreateSession(t *testing.T) {
	f := newSessionFixture(t)

	session := f.manager.CreateSession(context.Background())

	require.NotNil(t, session)
	assert.NotEmpty(t, session.Token)
	assert.Empty(t, session.SavedTrainerIDs)
	assert.WithinDuration(t, time.Now().Add(models.DefaultSessionTTL), session.ExpiresAt, time.Minute)
	assert.Contains(t, f.mirror.rows, session.Token, "new sessions are mirrored")
}

func TestAnonymousSessionManager_Get_UnknownToken(t *testing.T) {
	f := newSessionFixture(t)

	assert.Nil(t, f.manager.Get(context.Background(), ""))
	assert.Nil(t, f.manager.Get(context.Background(), "anon_unknown"))
}

func TestAnonymousSessionManager_SaveTrainer_CreatesSessionWhenAbsent(t *testing.T) {
	f := newSessionFixture(t)

	session, ok := f.manager.SaveTrainer(context.Background(), "", uuid.New())

	assert.True(t, ok)
	require.NotNil(t, session)
	assert.NotEmpty(t, session.Token)
	assert.Len(t, session.SavedTrainerIDs, 1)
	assert.NotNil(t, f.manager.Get(context.Background(), session.Token))
}

func TestAnonymousSessionManager_SaveTrainer_RejectsDuplicate(t *testing.T) {
	f := newSessionFixture(t)
	trainerID := uuid.New()
	session, ok := f.manager.SaveTrainer(context.Background(), "", trainerID)
	require.True(t, ok)

	again, ok := f.manager.SaveTrainer(context.Background(), session.Token, trainerID)

	assert.False(t, ok)
	assert.Equal(t, session.Token, again.Token)
	assert.Len(t, again.SavedTrainerIDs, 1)
}

func TestAnonymousSessionManager_SaveTrainer_EnforcesCap(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	session := f.manager.CreateSession(ctx)
	for i := 0; i < 5; i++ {
		_, ok := f.manager.SaveTrainer(ctx, session.Token, uuid.New())
		require.True(t, ok)
	}

	full, ok := f.manager.SaveTrainer(ctx, session.Token, uuid.New())

	assert.False(t, ok)
	assert.Len(t, full.SavedTrainerIDs, 5)
}

func TestAnonymousSessionManager_SaveTrainer_SurvivesMirrorFailure(t *testing.T) {
	f := newSessionFixture(t)
	f.mirror.upsertErr = errors.New("mirror offline")

	session, ok := f.manager.SaveTrainer(context.Background(), "", uuid.New())

	assert.True(t, ok, "local store stays authoritative when the mirror fails")
	assert.Len(t, session.SavedTrainerIDs, 1)
	assert.NotNil(t, f.manager.Get(context.Background(), session.Token))
}

func TestAnonymousSessionManager_ConcurrentVisitorsAreIsolated(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	trainerA := uuid.New()
	trainerB := uuid.New()

	alice, ok := f.manager.SaveTrainer(ctx, "", trainerA)
	require.True(t, ok)
	bob, ok := f.manager.SaveTrainer(ctx, "", trainerB)
	require.True(t, ok)

	require.NotEqual(t, alice.Token, bob.Token, "each visitor gets an own session")

	aliceNow := f.manager.Get(ctx, alice.Token)
	bobNow := f.manager.Get(ctx, bob.Token)
	require.NotNil(t, aliceNow)
	require.NotNil(t, bobNow)
	assert.Equal(t, []uuid.UUID{trainerA}, aliceNow.SavedTrainerIDs)
	assert.Equal(t, []uuid.UUID{trainerB}, bobNow.SavedTrainerIDs)

	f.manager.SaveQuizResults(ctx, bob.Token, &models.QuizAnswers{Goals: []string{"strength"}})
	assert.Nil(t, f.manager.Get(ctx, alice.Token).QuizAnswers, "one visitor's quiz never leaks into another's session")

	f.manager.ClearSession(ctx, alice.Token)
	assert.Nil(t, f.manager.Get(ctx, alice.Token))
	assert.NotNil(t, f.manager.Get(ctx, bob.Token), "clearing one visitor leaves the other untouched")
}

func TestAnonymousSessionManager_UnsaveTrainer(t *testing.T) {
	f := newSessionFixture(t)
	trainerID := uuid.New()
	ctx := context.Background()
	session, ok := f.manager.SaveTrainer(ctx, "", trainerID)
	require.True(t, ok)

	removed, ok := f.manager.UnsaveTrainer(ctx, session.Token, trainerID)
	assert.True(t, ok)
	assert.Empty(t, removed.SavedTrainerIDs)

	_, ok = f.manager.UnsaveTrainer(ctx, session.Token, trainerID)
	assert.False(t, ok)
}

func TestAnonymousSessionManager_UnsaveTrainer_NoSession(t *testing.T) {
	f := newSessionFixture(t)

	session, ok := f.manager.UnsaveTrainer(context.Background(), "anon_unknown", uuid.New())

	assert.False(t, ok)
	assert.Nil(t, session, "unsave never creates a session")
}

func TestAnonymousSessionManager_SaveQuizResults(t *testing.T) {
	f := newSessionFixture(t)

	session := f.manager.SaveQuizResults(context.Background(), "", &models.QuizAnswers{Goals: []string{"strength"}})

	require.NotNil(t, session)
	require.NotNil(t, session.QuizAnswers)
	assert.Equal(t, []string{"strength"}, session.QuizAnswers.Goals)
	assert.NotNil(t, f.manager.Get(context.Background(), session.Token))
}

func TestAnonymousSessionManager_Broadcasts(t *testing.T) {
	f := newSessionFixture(t)
	listener := f.hub.Listen()
	defer f.hub.Remove(listener)

	f.manager.SaveTrainer(context.Background(), "", uuid.New())

	select {
	case session := <-listener:
		require.NotNil(t, session)
		assert.Len(t, session.SavedTrainerIDs, 1)
	default:
		t.Fatal("expected a broadcast after a mutation")
	}
}

func TestAnonymousSessionManager_ClearSession(t *testing.T) {
	f := newSessionFixture(t)
	session := f.manager.CreateSession(context.Background())
	listener := f.hub.Listen()
	defer f.hub.Remove(listener)

	f.manager.ClearSession(context.Background(), session.Token)

	assert.Nil(t, f.manager.Get(context.Background(), session.Token))
	assert.Contains(t, f.mirror.deletes, session.Token)
	select {
	case cleared := <-listener:
		assert.Nil(t, cleared, "a nil broadcast signals removal")
	default:
		t.Fatal("expected a broadcast after clearing")
	}
}

func TestAnonymousSessionManager_SurvivesRestart(t *testing.T) {
	f := newSessionFixture(t)
	session := f.manager.CreateSession(context.Background())
	trainerID := uuid.New()
	_, ok := f.manager.SaveTrainer(context.Background(), session.Token, trainerID)
	require.True(t, ok)

	reopened := NewAnonymousSessionManager(f.store, f.hub, f.mirror, models.DefaultSessionTTL, 5, zap.NewNop())

	current := reopened.Get(context.Background(), session.Token)
	require.NotNil(t, current)
	assert.Equal(t, session.Token, current.Token)
	assert.True(t, current.HasTrainer(trainerID))
}

func TestAnonymousSessionManager_RecoversFromMirrorWhenLocalIsGone(t *testing.T) {
	f := newSessionFixture(t)
	remote := models.NewAnonymousSession(models.DefaultSessionTTL)
	remote.SavedTrainerIDs = []uuid.UUID{uuid.New()}
	f.mirror.rows[remote.Token] = remote

	current := f.manager.Get(context.Background(), remote.Token)

	require.NotNil(t, current)
	assert.Len(t, current.SavedTrainerIDs, 1)
	_, ok, err := f.store.Get("trainwell_anonymous_session:" + remote.Token)
	require.NoError(t, err)
	assert.True(t, ok, "mirror recovery repopulates the local store")
}

func TestAnonymousSessionManager_ExpiredLocalSessionIsDropped(t *testing.T) {
	store := sessionstore.NewMemoryStore()
	hub := sessionstore.NewHub()
	mirror := newMockAnonymousSessionRepository()
	expiring := NewAnonymousSessionManager(store, hub, mirror, -time.Hour, 5, zap.NewNop())
	session := expiring.CreateSession(context.Background())

	fresh := NewAnonymousSessionManager(store, hub, mirror, models.DefaultSessionTTL, 5, zap.NewNop())

	assert.Nil(t, fresh.Get(context.Background(), session.Token))
	_, ok, err := store.Get("trainwell_anonymous_session:" + session.Token)
	require.NoError(t, err)
	assert.False(t, ok, "expired local state is removed on read")
}

func TestAnonymousSessionManager_LoadSessionByToken(t *testing.T) {
	f := newSessionFixture(t)
	remote := models.NewAnonymousSession(models.DefaultSessionTTL)
	remote.SavedTrainerIDs = []uuid.UUID{uuid.New()}
	f.mirror.rows[remote.Token] = remote

	loaded, err := f.manager.LoadSessionByToken(context.Background(), remote.Token)

	require.NoError(t, err)
	assert.Equal(t, remote.Token, loaded.Token)
	current := f.manager.Get(context.Background(), remote.Token)
	require.NotNil(t, current)
	assert.Equal(t, remote.Token, current.Token)
}

func TestAnonymousSessionManager_LoadSessionByToken_NotFound(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.manager.LoadSessionByToken(context.Background(), "anon_missing")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
