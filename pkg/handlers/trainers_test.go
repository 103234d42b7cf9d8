package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trainwell-app/trainwell-engine/pkg/apperrors"
	"github.com/trainwell-app/trainwell-engine/pkg/auth"
	"github.com/trainwell-app/trainwell-engine/pkg/models"
	"github.com/trainwell-app/trainwell-engine/pkg/services"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// mockUnifiedTrainerService implements services.UnifiedTrainerService for
// handler tests.
type mockUnifiedTrainerService struct {
	view        *services.TrainerView
	fetchErr    error
	saveErr     error
	shortErr    error
	invalidated []uuid.UUID
}

func (m *mockUnifiedTrainerService) Fetch(ctx context.Context, clientID uuid.UUID) (*services.TrainerView, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.view, nil
}

func (m *mockUnifiedTrainerService) Invalidate(clientID uuid.UUID) {
	m.invalidated = append(m.invalidated, clientID)
}

func (m *mockUnifiedTrainerService) SaveTrainer(ctx context.Context, clientID, trainerID uuid.UUID) error {
	return m.saveErr
}

func (m *mockUnifiedTrainerService) ShortlistTrainer(ctx context.Context, clientID, trainerID uuid.UUID) error {
	return m.shortErr
}

func (m *mockUnifiedTrainerService) RemoveFromShortlist(ctx context.Context, clientID, trainerID uuid.UUID) error {
	return nil
}

func (m *mockUnifiedTrainerService) JoinWaitlist(ctx context.Context, clientID, trainerID uuid.UUID) error {
	return nil
}

func (m *mockUnifiedTrainerService) LeaveWaitlist(ctx context.Context, clientID, trainerID uuid.UUID) error {
	return nil
}

// requestAsClient attaches client claims to the request context.
func requestAsClient(r *http.Request, clientID uuid.UUID) *http.Request {
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: clientID.String()},
		AccountType:      models.AccountTypeClient,
	}
	ctx := context.WithValue(r.Context(), auth.ClaimsKey, claims)
	return r.WithContext(ctx)
}

func TestTrainersHandler_List_Success(t *testing.T) {
	clientID := uuid.New()
	view := &services.TrainerView{
		Trainers: []models.UnifiedTrainer{{Status: models.TrainerStatusSaved}},
		Counts:   models.TrainerCounts{All: 1, Saved: 1},
	}
	handler := NewTrainersHandler(&mockUnifiedTrainerService{view: view}, zap.NewNop())

	req := requestAsClient(httptest.NewRequest(http.MethodGet, "/api/trainers", nil), clientID)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body ApiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
}

func TestTrainersHandler_List_Unauthenticated(t *testing.T) {
	handler := NewTrainersHandler(&mockUnifiedTrainerService{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/trainers", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTrainersHandler_Save_DuplicateConflict(t *testing.T) {
	clientID := uuid.New()
	trainerID := uuid.New()
	handler := NewTrainersHandler(&mockUnifiedTrainerService{saveErr: apperrors.ErrAlreadySaved}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/trainers/"+trainerID.String()+"/save", nil)
	req.SetPathValue("trainerId", trainerID.String())
	rec := httptest.NewRecorder()

	handler.Save(rec, requestAsClient(req, clientID))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already_saved")
}

func TestTrainersHandler_Shortlist_CapConflict(t *testing.T) {
	clientID := uuid.New()
	trainerID := uuid.New()
	handler := NewTrainersHandler(&mockUnifiedTrainerService{shortErr: apperrors.ErrShortlistLimitReached}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/trainers/"+trainerID.String()+"/shortlist", nil)
	req.SetPathValue("trainerId", trainerID.String())
	rec := httptest.NewRecorder()

	handler.Shortlist(rec, requestAsClient(req, clientID))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "shortlist_limit_reached")
}

func TestTrainersHandler_Save_InvalidTrainerID(t *testing.T) {
	handler := NewTrainersHandler(&mockUnifiedTrainerService{view: &services.TrainerView{}}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/trainers/not-a-uuid/save", nil)
	req.SetPathValue("trainerId", "not-a-uuid")
	rec := httptest.NewRecorder()

	handler.Save(rec, requestAsClient(req, uuid.New()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
