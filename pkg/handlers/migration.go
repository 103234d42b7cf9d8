package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/trainwell-app/trainwell-engine/pkg/auth"
	"github.com/trainwell-app/trainwell-engine/pkg/services"
)

// MigrateRequest for POST /api/migration. SessionToken carries the
// cross-device confirmation-link token; it is consumed by this one request
// and never re-read.
type MigrateRequest struct {
	SessionToken string `json:"session_token,omitempty"`
}

// MigrateResponse reports whether the user's anonymous data has been merged.
type MigrateResponse struct {
	Migrated bool `json:"migrated"`
}

// MigrationHandler kicks off the anonymous-data merge after sign-in. It
// reads the visitor's pinned session cookie to find which anonymous session
// belongs to the signing-in browser.
type MigrationHandler struct {
	controller *services.MigrationController
	state      *services.MigrationState
	cookies    sessions.Store
	logger     *zap.Logger
}

// NewMigrationHandler creates a new migration handler.
func NewMigrationHandler(controller *services.MigrationController, state *services.MigrationState, cookies sessions.Store, logger *zap.Logger) *MigrationHandler {
	return &MigrationHandler{
		controller: controller,
		state:      state,
		cookies:    cookies,
		logger:     logger,
	}
}

// RegisterRoutes registers the migration handler's routes on the given mux.
func (h *MigrationHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/migration",
		authMiddleware.RequireClientAccount(h.Migrate))
}

// Migrate handles POST /api/migration. The merge is best effort; the
// response reports the guard state rather than per-step outcomes.
func (h *MigrationHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	userID, accountType, err := auth.ExtractUserFromContext(r.Context())
	if err != nil {
		h.logger.Error("Failed to extract user from context", zap.Error(err))
		_ = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req MigrateRequest
	if r.Body != nil {
		// An empty body is fine; only the cross-device flow sends a token.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	h.controller.Run(r.Context(), userID, accountType, pinnedSessionToken(h.cookies, r), req.SessionToken)

	response := MigrateResponse{Migrated: h.state.Migrated(userID)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
