package handlers

import (
	"errors"
	"net/http"

	"finance-a2a-backend/internal/agents"
	"finance-a2a-backend/internal/auth"
	"finance-a2a-backend/internal/dialogue"
	"finance-a2a-backend/internal/services"
	"finance-a2a-backend/pkg/httputil"
	"finance-a2a-backend/pkg/logger"
)

// respondServiceError maps service errors to HTTP status codes. Unknown
// errors are logged and reported as 500 without details.
func respondServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrWhitelistNotFound),
		errors.Is(err, agents.ErrAgentNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrEmailTaken),
		errors.Is(err, services.ErrRecommendationExists):
		httputil.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrSessionClosed),
		errors.Is(err, services.ErrSessionExpired):
		httputil.RespondError(w, http.StatusGone, err.Error())
	case errors.Is(err, services.ErrMessageLimitReached):
		httputil.RespondError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, services.ErrNotWhitelisted):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, dialogue.ErrSessionBusy):
		httputil.RespondError(w, http.StatusConflict, "Another message for this session is still being processed")
	default:
		log.Errorw("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// requireUser returns the authenticated user id, writing 401 when absent.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok || userID == "" {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return userID, true
}
