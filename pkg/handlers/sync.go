package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/trainwell-app/trainwell-engine/pkg/auth"
	"github.com/trainwell-app/trainwell-engine/pkg/services"
)

// SyncStatusResponse reports the client's synchronization state.
type SyncStatusResponse struct {
	IsRefreshing bool  `json:"is_refreshing"`
	AllDataReady bool  `json:"all_data_ready"`
	RefreshCount int64 `json:"refresh_count"`
}

// LoadedRequest is the body for POST /api/sync/loaded. Nil fields leave the
// corresponding flag untouched.
type LoadedRequest struct {
	Trainers    *bool `json:"trainers,omitempty"`
	Engagements *bool `json:"engagements,omitempty"`
}

// SyncHandler exposes the per-client sync coordinator.
type SyncHandler struct {
	registry *services.SyncRegistry
	logger   *zap.Logger
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(registry *services.SyncRegistry, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		registry: registry,
		logger:   logger,
	}
}

// RegisterRoutes registers the sync handler's routes on the given mux.
func (h *SyncHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/sync/status",
		authMiddleware.RequireClientAccount(h.Status))
	mux.HandleFunc("POST /api/sync/refresh",
		authMiddleware.RequireClientAccount(h.Refresh))
	mux.HandleFunc("POST /api/sync/loaded",
		authMiddleware.RequireClientAccount(h.MarkLoaded))
}

// Status handles GET /api/sync/status
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	coordinator, ok := h.coordinator(w, r)
	if !ok {
		return
	}

	resp := SyncStatusResponse{
		IsRefreshing: coordinator.IsRefreshing(),
		AllDataReady: coordinator.AllDataReady(),
		RefreshCount: coordinator.RefreshCount(),
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: resp}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Refresh handles POST /api/sync/refresh
func (h *SyncHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	coordinator, ok := h.coordinator(w, r)
	if !ok {
		return
	}

	coordinator.RefreshData()

	resp := SyncStatusResponse{
		IsRefreshing: coordinator.IsRefreshing(),
		AllDataReady: coordinator.AllDataReady(),
		RefreshCount: coordinator.RefreshCount(),
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: resp}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// MarkLoaded handles POST /api/sync/loaded. Callers report which halves of
// the cross-referenced read have landed on their side.
func (h *SyncHandler) MarkLoaded(w http.ResponseWriter, r *http.Request) {
	coordinator, ok := h.coordinator(w, r)
	if !ok {
		return
	}

	var req LoadedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if req.Trainers != nil {
		coordinator.SetTrainersLoaded(*req.Trainers)
	}
	if req.Engagements != nil {
		coordinator.SetEngagementsLoaded(*req.Engagements)
	}

	resp := SyncStatusResponse{
		IsRefreshing: coordinator.IsRefreshing(),
		AllDataReady: coordinator.AllDataReady(),
		RefreshCount: coordinator.RefreshCount(),
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: resp}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *SyncHandler) coordinator(w http.ResponseWriter, r *http.Request) (*services.SyncCoordinator, bool) {
	clientID, _, err := auth.ExtractUserFromContext(r.Context())
	if err != nil {
		h.logger.Error("Failed to extract user from context", zap.Error(err))
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return nil, false
	}

	coordinator, err := h.registry.Get(clientID)
	if err != nil {
		h.logger.Error("Failed to get sync coordinator",
			zap.String("client_id", clientID.String()),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "sync_unavailable", err.Error())
		return nil, false
	}
	return coordinator, true
}
