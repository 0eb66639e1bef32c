package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/pkg/httputil"
	"finance-a2a-backend/pkg/logger"
)

// AnalysisService is what the agent callbacks need from the service layer.
type AnalysisService interface {
	RecordPortfolio(ctx context.Context, sessionID string, req models.PortfolioUploadRequest) (*models.PortfolioUploadResponse, error)
	RecordRecommendation(ctx context.Context, sessionID string, req models.RecommendationRequest) (*models.RecommendationResponse, error)
}

// CallbackHandlers receive results posted back by remote agents.
type CallbackHandlers struct {
	analysis AnalysisService
	log      *logger.Logger
}

func NewCallbackHandlers(analysis AnalysisService) *CallbackHandlers {
	return &CallbackHandlers{analysis: analysis, log: logger.Get().With("component", "callback_handlers")}
}

// HandlePortfolio handles POST /v1/agent-callbacks/sessions/{sessionID}/portfolio.
func (h *CallbackHandlers) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	var req models.PortfolioUploadRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.analysis.RecordPortfolio(r.Context(), chi.URLParam(r, "sessionID"), req)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, resp)
}

// HandleRecommendation handles POST /v1/agent-callbacks/sessions/{sessionID}/recommendations.
func (h *CallbackHandlers) HandleRecommendation(w http.ResponseWriter, r *http.Request) {
	var req models.RecommendationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.analysis.RecordRecommendation(r.Context(), chi.URLParam(r, "sessionID"), req)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, resp)
}
