package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"finance-a2a-backend/internal/auth"
	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/internal/services"
	"finance-a2a-backend/pkg/httputil"
	"finance-a2a-backend/pkg/logger"
)

// ChatService is what the chat handlers need from the service layer.
type ChatService interface {
	HandleTurn(ctx context.Context, caller services.TurnCaller, req models.ChatRequest) (*models.ChatResponse, error)
}

// SessionService is what the session handlers need from the service layer.
type SessionService interface {
	ListSessions(ctx context.Context, userID string, limit int) ([]models.SessionResponse, error)
	ListMessages(ctx context.Context, userID, sessionID string, limit int) ([]models.MessageResponse, error)
	CloseSession(ctx context.Context, userID, sessionID string) error
}

// ChatHandlers serves conversation turns and session history.
type ChatHandlers struct {
	chat     ChatService
	sessions SessionService
	log      *logger.Logger
}

// NewChatHandlers creates a new ChatHandlers instance.
func NewChatHandlers(chat ChatService, sessions SessionService) *ChatHandlers {
	return &ChatHandlers{
		chat:     chat,
		sessions: sessions,
		log:      logger.Get().With("component", "chat_handlers"),
	}
}

// HandleChat handles POST /v1/chats.
func (h *ChatHandlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	email, _ := auth.GetUserEmailFromContext(r.Context())

	var req models.ChatRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.chat.HandleTurn(r.Context(), services.TurnCaller{UserID: userID, Email: email}, req)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleListSessions handles GET /v1/sessions.
func (h *ChatHandlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	sessions, err := h.sessions.ListSessions(r.Context(), userID, queryLimit(r))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, sessions)
}

// HandleListMessages handles GET /v1/sessions/{sessionID}/messages.
func (h *ChatHandlers) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	msgs, err := h.sessions.ListMessages(r.Context(), userID, chi.URLParam(r, "sessionID"), queryLimit(r))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, msgs)
}

// HandleCloseSession handles POST /v1/sessions/{sessionID}/close.
func (h *ChatHandlers) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.sessions.CloseSession(r.Context(), userID, chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryLimit reads ?limit=; invalid values fall back to the service default.
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}
