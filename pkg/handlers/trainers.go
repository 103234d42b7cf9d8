package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trainwell-app/trainwell-engine/pkg/apperrors"
	"github.com/trainwell-app/trainwell-engine/pkg/auth"
	"github.com/trainwell-app/trainwell-engine/pkg/services"
)

// TrainersHandler serves the unified trainer view and its mutations.
type TrainersHandler struct {
	trainers services.UnifiedTrainerService
	logger   *zap.Logger
}

// NewTrainersHandler creates a new trainers handler.
func NewTrainersHandler(trainers services.UnifiedTrainerService, logger *zap.Logger) *TrainersHandler {
	return &TrainersHandler{
		trainers: trainers,
		logger:   logger,
	}
}

// RegisterRoutes registers the trainers handler's routes on the given mux.
func (h *TrainersHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/trainers",
		authMiddleware.RequireClientAccount(h.List))
	mux.HandleFunc("POST /api/trainers/{trainerId}/save",
		authMiddleware.RequireClientAccount(h.Save))
	mux.HandleFunc("POST /api/trainers/{trainerId}/shortlist",
		authMiddleware.RequireClientAccount(h.Shortlist))
	mux.HandleFunc("DELETE /api/trainers/{trainerId}/shortlist",
		authMiddleware.RequireClientAccount(h.Unshortlist))
	mux.HandleFunc("POST /api/trainers/{trainerId}/waitlist",
		authMiddleware.RequireClientAccount(h.JoinWaitlist))
	mux.HandleFunc("DELETE /api/trainers/{trainerId}/waitlist",
		authMiddleware.RequireClientAccount(h.LeaveWaitlist))
}

// List handles GET /api/trainers
func (h *TrainersHandler) List(w http.ResponseWriter, r *http.Request) {
	clientID, ok := h.clientID(w, r)
	if !ok {
		return
	}

	view, err := h.trainers.Fetch(r.Context(), clientID)
	if err != nil {
		h.logger.Error("Failed to fetch unified trainers",
			zap.String("client_id", clientID.String()),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "fetch_trainers_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: view}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Save handles POST /api/trainers/{trainerId}/save
func (h *TrainersHandler) Save(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.trainers.SaveTrainer)
}

// Shortlist handles POST /api/trainers/{trainerId}/shortlist
func (h *TrainersHandler) Shortlist(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.trainers.ShortlistTrainer)
}

// Unshortlist handles DELETE /api/trainers/{trainerId}/shortlist
func (h *TrainersHandler) Unshortlist(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.trainers.RemoveFromShortlist)
}

// JoinWaitlist handles POST /api/trainers/{trainerId}/waitlist
func (h *TrainersHandler) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.trainers.JoinWaitlist)
}

// LeaveWaitlist handles DELETE /api/trainers/{trainerId}/waitlist
func (h *TrainersHandler) LeaveWaitlist(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.trainers.LeaveWaitlist)
}

// mutate runs one aggregator mutation and maps precondition failures to
// client errors.
func (h *TrainersHandler) mutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, clientID, trainerID uuid.UUID) error) {
	clientID, ok := h.clientID(w, r)
	if !ok {
		return
	}
	trainerID, ok := parseTrainerID(w, r, h.logger)
	if !ok {
		return
	}

	if err := op(r.Context(), clientID, trainerID); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrAlreadySaved):
			_ = ErrorResponse(w, http.StatusConflict, "already_saved", "Trainer is already saved")
		case errors.Is(err, apperrors.ErrShortlistLimitReached):
			_ = ErrorResponse(w, http.StatusConflict, "shortlist_limit_reached", "Shortlist is at its limit")
		case errors.Is(err, apperrors.ErrNotFound):
			_ = ErrorResponse(w, http.StatusNotFound, "not_found", "No such relationship")
		default:
			h.logger.Error("Trainer mutation failed",
				zap.String("client_id", clientID.String()),
				zap.String("trainer_id", trainerID.String()),
				zap.Error(err))
			_ = ErrorResponse(w, http.StatusInternalServerError, "mutation_failed", err.Error())
		}
		return
	}

	view, err := h.trainers.Fetch(r.Context(), clientID)
	if err != nil {
		h.logger.Error("Failed to refetch trainers after mutation", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "fetch_trainers_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: view}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *TrainersHandler) clientID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	clientID, _, err := auth.ExtractUserFromContext(r.Context())
	if err != nil {
		h.logger.Error("Failed to extract user from context", zap.Error(err))
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return uuid.Nil, false
	}
	return clientID, true
}
