package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/trainwell-app/trainwell-engine/pkg/apperrors"
	"github.com/trainwell-app/trainwell-engine/pkg/models"
	"github.com/trainwell-app/trainwell-engine/pkg/services"
)

const (
	// anonCookieName is the browser cookie session pinning the anonymous
	// token to the visitor.
	anonCookieName = "trainwell_anon"
	// anonTokenField is the key under which the token is stored in the
	// cookie session.
	anonTokenField = "session_token"
)

// pinnedSessionToken reads the visitor's anonymous session token from the
// pinned cookie. An absent or unreadable cookie yields the empty string.
func pinnedSessionToken(cookies sessions.Store, r *http.Request) string {
	cookie, err := cookies.Get(r, anonCookieName)
	if err != nil {
		return ""
	}
	token, _ := cookie.Values[anonTokenField].(string)
	return token
}

// ============================================================================
// Request/Response Types
// ============================================================================

// SaveTrainerResponse for the anonymous save/unsave endpoints. Saved reports
// whether the mutation happened; false means a duplicate or cap rejection.
type SaveTrainerResponse struct {
	Saved   bool                     `json:"saved"`
	Session *models.AnonymousSession `json:"session,omitempty"`
}

// LoadSessionRequest for POST /api/session/load
type LoadSessionRequest struct {
	Token string `json:"token"`
}

// ============================================================================
// Handler
// ============================================================================

// SessionHandler serves the anonymous visitor's working session. The cookie
// store pins the session token to the browser; every request resolves its
// own session from that token, so concurrent visitors never touch each
// other's state.
type SessionHandler struct {
	manager *services.AnonymousSessionManager
	cookies sessions.Store
	logger  *zap.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(manager *services.AnonymousSessionManager, cookies sessions.Store, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		cookies: cookies,
		logger:  logger,
	}
}

// RegisterRoutes registers the session handler's routes on the given mux.
// These endpoints are unauthenticated; the working session belongs to a
// pre-authentication visitor.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/session", h.Get)
	mux.HandleFunc("POST /api/session", h.Create)
	mux.HandleFunc("DELETE /api/session", h.Clear)
	mux.HandleFunc("POST /api/session/load", h.Load)
	mux.HandleFunc("POST /api/session/trainers/{trainerId}", h.SaveTrainer)
	mux.HandleFunc("DELETE /api/session/trainers/{trainerId}", h.UnsaveTrainer)
	mux.HandleFunc("POST /api/session/quiz", h.SubmitQuiz)
}

// Get handles GET /api/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session := h.manager.Get(r.Context(), pinnedSessionToken(h.cookies, r))
	if session == nil {
		_ = ErrorResponse(w, http.StatusNotFound, "no_session", "No active session")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: session}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/session
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	session := h.manager.CreateSession(r.Context())
	h.pinToken(w, r, session.Token)

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: session}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Clear handles DELETE /api/session
func (h *SessionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.manager.ClearSession(r.Context(), pinnedSessionToken(h.cookies, r))
	h.pinToken(w, r, "")

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Load handles POST /api/session/load, the cross-device continuation path.
func (h *SessionHandler) Load(w http.ResponseWriter, r *http.Request) {
	var req LoadSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "A session token is required")
		return
	}

	session, err := h.manager.LoadSessionByToken(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = ErrorResponse(w, http.StatusNotFound, "session_not_found", "Session not found or expired")
			return
		}
		h.logger.Error("Failed to load session", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "load_session_failed", err.Error())
		return
	}
	h.pinToken(w, r, session.Token)

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: session}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SaveTrainer handles POST /api/session/trainers/{trainerId}. Saving into a
// missing or expired session creates a fresh one, so the returned session's
// token is always re-pinned.
func (h *SessionHandler) SaveTrainer(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := parseTrainerID(w, r, h.logger)
	if !ok {
		return
	}

	session, saved := h.manager.SaveTrainer(r.Context(), pinnedSessionToken(h.cookies, r), trainerID)
	if session != nil {
		h.pinToken(w, r, session.Token)
	}

	response := SaveTrainerResponse{Saved: saved, Session: session}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// UnsaveTrainer handles DELETE /api/session/trainers/{trainerId}
func (h *SessionHandler) UnsaveTrainer(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := parseTrainerID(w, r, h.logger)
	if !ok {
		return
	}

	session, removed := h.manager.UnsaveTrainer(r.Context(), pinnedSessionToken(h.cookies, r), trainerID)
	response := SaveTrainerResponse{Saved: removed, Session: session}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SubmitQuiz handles POST /api/session/quiz. Payloads with unknown fields
// are rejected at the boundary rather than passed through.
func (h *SessionHandler) SubmitQuiz(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return
	}

	answers, err := models.ParseQuizAnswers(body)
	if err != nil {
		h.logger.Debug("Rejected quiz payload", zap.Error(err))
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_quiz_payload", err.Error())
		return
	}

	session := h.manager.SaveQuizResults(r.Context(), pinnedSessionToken(h.cookies, r), answers)
	h.pinToken(w, r, session.Token)

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: session}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// pinToken writes the token into the cookie session; an empty token clears
// the cookie.
func (h *SessionHandler) pinToken(w http.ResponseWriter, r *http.Request, token string) {
	cookie, err := h.cookies.Get(r, anonCookieName)
	if err != nil {
		// A malformed cookie still yields a fresh session to write into.
		h.logger.Debug("Replacing unreadable session cookie", zap.Error(err))
	}
	if token == "" {
		cookie.Options.MaxAge = -1
		delete(cookie.Values, anonTokenField)
	} else {
		cookie.Values[anonTokenField] = token
	}
	if err := cookie.Save(r, w); err != nil {
		h.logger.Warn("Failed to save session cookie", zap.Error(err))
	}
}
