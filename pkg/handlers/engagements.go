package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trainwell-app/trainwell-engine/pkg/apperrors"
	"github.com/trainwell-app/trainwell-engine/pkg/auth"
	"github.com/trainwell-app/trainwell-engine/pkg/models"
	"github.com/trainwell-app/trainwell-engine/pkg/repositories"
	"github.com/trainwell-app/trainwell-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// EngagementListResponse for GET /api/engagements
type EngagementListResponse struct {
	Engagements []*models.Engagement `json:"engagements"`
	Total       int                  `json:"total"`
}

// StageResponse for GET /api/engagements/{trainerId}
type StageResponse struct {
	TrainerID uuid.UUID    `json:"trainer_id"`
	Stage     models.Stage `json:"stage"`
}

// TransitionRequest for POST /api/engagements/{trainerId}/transition
type TransitionRequest struct {
	Stage models.Stage `json:"stage"`
}

// engagementActions maps named action paths to target stages. Each is a
// shorthand for a transition; the legality check lives in the stage machine.
var engagementActions = map[string]models.Stage{
	"like":               models.StageLiked,
	"shortlist":          models.StageShortlisted,
	"unshortlist":        models.StageLiked,
	"decline":            models.StageDeclined,
	"dismiss":            models.StageDeclinedDismissed,
	"unmatch":            models.StageUnmatched,
	"book-discovery":     models.StageDiscoveryInProgress,
	"complete-discovery": models.StageDiscoveryCompleted,
	"agree":              models.StageAgreed,
	"become-client":      models.StageActiveClient,
}

// ============================================================================
// Handler
// ============================================================================

// EngagementHandler handles engagement stage HTTP requests. Each request
// builds a tracker scoped to the authenticated client and loads its
// engagement list before operating.
type EngagementHandler struct {
	engagements repositories.EngagementRepository
	logger      *zap.Logger
}

// NewEngagementHandler creates a new engagement handler.
func NewEngagementHandler(engagements repositories.EngagementRepository, logger *zap.Logger) *EngagementHandler {
	return &EngagementHandler{
		engagements: engagements,
		logger:      logger,
	}
}

// RegisterRoutes registers the engagement handler's routes on the given mux.
func (h *EngagementHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/engagements",
		authMiddleware.RequireClientAccount(h.List))
	mux.HandleFunc("GET /api/engagements/{trainerId}",
		authMiddleware.RequireClientAccount(h.Stage))
	mux.HandleFunc("POST /api/engagements/{trainerId}/transition",
		authMiddleware.RequireClientAccount(h.Transition))
	mux.HandleFunc("POST /api/engagements/{trainerId}/actions/{action}",
		authMiddleware.RequireClientAccount(h.Action))
}

// tracker builds a loaded tracker for the authenticated client.
func (h *EngagementHandler) tracker(w http.ResponseWriter, r *http.Request) (services.EngagementTracker, bool) {
	clientID, _, err := auth.ExtractUserFromContext(r.Context())
	if err != nil {
		h.logger.Error("Failed to extract user from context", zap.Error(err))
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return nil, false
	}

	tracker := services.NewEngagementTracker(clientID, h.engagements, h.logger)
	if err := tracker.Refresh(r.Context()); err != nil {
		h.logger.Error("Failed to load engagements",
			zap.String("client_id", clientID.String()),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "load_engagements_failed", err.Error())
		return nil, false
	}
	return tracker, true
}

// List handles GET /api/engagements
func (h *EngagementHandler) List(w http.ResponseWriter, r *http.Request) {
	tracker, ok := h.tracker(w, r)
	if !ok {
		return
	}

	engagements := tracker.Engagements()
	response := EngagementListResponse{
		Engagements: engagements,
		Total:       len(engagements),
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Stage handles GET /api/engagements/{trainerId}
func (h *EngagementHandler) Stage(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := parseTrainerID(w, r, h.logger)
	if !ok {
		return
	}
	tracker, ok := h.tracker(w, r)
	if !ok {
		return
	}

	response := StageResponse{
		TrainerID: trainerID,
		Stage:     tracker.Stage(trainerID),
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Transition handles POST /api/engagements/{trainerId}/transition
func (h *EngagementHandler) Transition(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := parseTrainerID(w, r, h.logger)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	tracker, ok := h.tracker(w, r)
	if !ok {
		return
	}

	h.runTransition(w, r, tracker, trainerID, req.Stage)
}

// Action handles POST /api/engagements/{trainerId}/actions/{action}
func (h *EngagementHandler) Action(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := parseTrainerID(w, r, h.logger)
	if !ok {
		return
	}

	action := r.PathValue("action")
	target, known := engagementActions[action]
	if !known {
		_ = ErrorResponse(w, http.StatusNotFound, "unknown_action", "Unknown engagement action: "+action)
		return
	}

	tracker, ok := h.tracker(w, r)
	if !ok {
		return
	}

	h.runTransition(w, r, tracker, trainerID, target)
}

func (h *EngagementHandler) runTransition(w http.ResponseWriter, r *http.Request, tracker services.EngagementTracker, trainerID uuid.UUID, target models.Stage) {
	if err := tracker.Transition(r.Context(), trainerID, target); err != nil {
		if errors.Is(err, apperrors.ErrIllegalTransition) {
			_ = ErrorResponse(w, http.StatusConflict, "illegal_transition", err.Error())
			return
		}
		h.logger.Error("Failed to transition engagement",
			zap.String("trainer_id", trainerID.String()),
			zap.String("target_stage", string(target)),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "transition_failed", err.Error())
		return
	}

	response := StageResponse{
		TrainerID: trainerID,
		Stage:     tracker.Stage(trainerID),
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// parseTrainerID extracts and validates the {trainerId} path parameter.
func parseTrainerID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	raw := r.PathValue("trainerId")
	trainerID, err := uuid.Parse(raw)
	if err != nil {
		logger.Debug("Invalid trainer ID in path", zap.String("trainer_id", raw))
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_trainer_id", "Invalid trainer ID format")
		return uuid.Nil, false
	}
	return trainerID, true
}
