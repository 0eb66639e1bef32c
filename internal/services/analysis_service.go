package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"finance-a2a-backend/internal/dialogue"
	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/internal/store"
	"finance-a2a-backend/pkg/logger"
)

// AnalysisService records the outputs of the remote agents: analysed
// portfolio uploads from the report analyser and finished recommendations
// from the stock analyser.
type AnalysisService struct {
	store  store.Store
	engine *dialogue.Engine
	log    *logger.Logger
}

// NewAnalysisService creates a new AnalysisService.
func NewAnalysisService(s store.Store, engine *dialogue.Engine) *AnalysisService {
	return &AnalysisService{
		store:  s,
		engine: engine,
		log:    logger.Get().With("component", "analysis_service"),
	}
}

func (s *AnalysisService) activeSession(ctx context.Context, sessionID string) (*models.ConversationSession, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if !session.IsActive {
		return nil, ErrSessionClosed
	}
	return session, nil
}

// RecordPortfolio marks the session's portfolio as uploaded, stores the
// analysis and adds its tickers to the existing-stocks set. It never
// dispatches; the user's next turn re-evaluates the gate.
func (s *AnalysisService) RecordPortfolio(ctx context.Context, sessionID string, req models.PortfolioUploadRequest) (*models.PortfolioUploadResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	session, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := s.store.MarkPortfolioUploaded(ctx, sessionID, req.InputFormat); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionClosed
		}
		return nil, fmt.Errorf("failed to mark portfolio uploaded: %w", err)
	}

	tickers := make([]string, 0, len(req.Tickers))
	for _, t := range req.Tickers {
		if t = dialogue.NormalizeTicker(t); t != "" {
			tickers = append(tickers, t)
		}
	}
	analysis, err := s.store.CreatePortfolioAnalysis(ctx, store.CreatePortfolioAnalysisParams{
		SessionID:        sessionID,
		UserID:           session.UserID,
		AnalysisData:     req.AnalysisData,
		ExtractedTickers: tickers,
		InputFormat:      req.InputFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store portfolio analysis: %w", err)
	}

	added, err := s.engine.ApplyPortfolio(ctx, sessionID, tickers)
	if err != nil {
		return nil, fmt.Errorf("failed to apply portfolio to session state: %w", err)
	}
	s.log.Infow("Portfolio recorded", "session_id", sessionID, "format", req.InputFormat, "tickers", tickers, "added", added)

	if added == nil {
		added = []string{}
	}
	return &models.PortfolioUploadResponse{
		AnalysisID:   analysis.ID,
		SessionID:    sessionID,
		AddedTickers: added,
	}, nil
}

// RecordRecommendation stores the finished analysis for a session. Amount
// and email default to what the host collected. Only one recommendation
// is kept per session.
func (s *AnalysisService) RecordRecommendation(ctx context.Context, sessionID string, req models.RecommendationRequest) (*models.RecommendationResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !json.Valid(req.RecommendationData) {
		return nil, fmt.Errorf("%w: recommendation_data is not valid JSON", ErrValidation)
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	state := s.engine.LoadState(ctx, sessionID)
	params := store.CreateStockRecommendationParams{
		SessionID:          sessionID,
		UserID:             session.UserID,
		RecommendationData: req.RecommendationData,
		EmailID:            req.EmailTo,
	}
	if req.InvestmentAmount != nil && strings.TrimSpace(*req.InvestmentAmount) != "" {
		amount, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(*req.InvestmentAmount), ",", ""))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid investment_amount", ErrValidation)
		}
		params.InvestmentAmount = decimal.NewNullDecimal(amount)
	} else if state.InvestmentAmount != nil {
		params.InvestmentAmount = decimal.NewNullDecimal(state.InvestmentAmount.Value)
	}
	if params.EmailID == nil && state.ReceiverEmail != "" {
		email := state.ReceiverEmail
		params.EmailID = &email
	}

	rec, err := s.store.CreateStockRecommendation(ctx, params)
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrRecommendationExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store recommendation: %w", err)
	}
	s.log.Infow("Recommendation recorded", "session_id", sessionID, "user_id", session.UserID)
	return &models.RecommendationResponse{ID: rec.ID, SessionID: rec.SessionID, CreatedAt: rec.CreatedAt}, nil
}
