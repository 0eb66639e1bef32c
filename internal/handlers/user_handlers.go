package handlers

import (
	"context"
	"net/http"

	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/pkg/httputil"
	"finance-a2a-backend/pkg/logger"
)

// UserService is what the user handlers need from the service layer.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfileResponse, error)
	UpdateProfile(ctx context.Context, userID string, req models.UpdateUserRequest) (*models.UserResponse, error)
	GetStats(ctx context.Context, userID string) (*models.UserStatsResponse, error)
}

type UserHandlers struct {
	users UserService
	log   *logger.Logger
}

func NewUserHandlers(users UserService) *UserHandlers {
	return &UserHandlers{users: users, log: logger.Get().With("component", "user_handlers")}
}

// HandleGetProfile handles GET /v1/users/me.
func (h *UserHandlers) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	profile, err := h.users.GetProfile(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, profile)
}

// HandleUpdateProfile handles PATCH /v1/users/me.
func (h *UserHandlers) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req models.UpdateUserRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.users.UpdateProfile(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, user)
}

// HandleGetStats handles GET /v1/users/me/stats.
func (h *UserHandlers) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	stats, err := h.users.GetStats(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, stats)
}
