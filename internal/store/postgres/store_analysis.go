package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/internal/store"
)

// --- Analysis Methods ---

const createPortfolioAnalysis = `-- name: CreatePortfolioAnalysis :one
INSERT INTO portfolio_analyses (id, session_id, user_id, analysis_data, extracted_tickers, input_format)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, session_id, user_id, analysis_data, extracted_tickers, input_format, created_at`

// CreatePortfolioAnalysis records the report analyser's output for one upload.
func (s *PostgresStore) CreatePortfolioAnalysis(ctx context.Context, arg store.CreatePortfolioAnalysisParams) (*models.PortfolioAnalysis, error) {
	tickers := arg.ExtractedTickers
	if tickers == nil {
		tickers = []string{}
	}
	var pa models.PortfolioAnalysis
	err := s.db.QueryRow(ctx, createPortfolioAnalysis,
		uuid.NewString(),
		arg.SessionID,
		arg.UserID,
		arg.AnalysisData,
		tickers,
		arg.InputFormat,
	).Scan(
		&pa.ID,
		&pa.SessionID,
		&pa.UserID,
		&pa.AnalysisData,
		&pa.ExtractedTickers,
		&pa.InputFormat,
		&pa.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("database error creating portfolio analysis: %w", mapError(err))
	}
	return &pa, nil
}

const createStockRecommendation = `-- name: CreateStockRecommendation :one
INSERT INTO stock_recommendations (id, session_id, user_id, recommendation_data, investment_amount, email_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, session_id, user_id, recommendation_data, investment_amount, email_id, created_at`

// CreateStockRecommendation records a completed analysis. A second
// recommendation for the same session yields store.ErrConflict.
func (s *PostgresStore) CreateStockRecommendation(ctx context.Context, arg store.CreateStockRecommendationParams) (*models.StockRecommendation, error) {
	var rec models.StockRecommendation
	err := s.db.QueryRow(ctx, createStockRecommendation,
		uuid.NewString(),
		arg.SessionID,
		arg.UserID,
		arg.RecommendationData,
		arg.InvestmentAmount,
		arg.EmailID,
	).Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.UserID,
		&rec.RecommendationData,
		&rec.InvestmentAmount,
		&rec.EmailID,
		&rec.CreatedAt,
	)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("database error creating stock recommendation: %w", err)
	}
	s.log.Infow("Stored stock recommendation", "session_id", arg.SessionID, "user_id", arg.UserID)
	return &rec, nil
}

const countStockRecommendationsByUser = `-- name: CountStockRecommendationsByUser :one
SELECT COUNT(*) FROM stock_recommendations WHERE user_id = $1`

// CountStockRecommendationsByUser counts completed analyses for a user.
func (s *PostgresStore) CountStockRecommendationsByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, countStockRecommendationsByUser, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("database error counting recommendations: %w", err)
	}
	return n, nil
}
