package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"finance-a2a-backend/internal/models"
)

// ErrNotFound is returned when a specific record is not found.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a unique constraint would be violated.
var ErrConflict = errors.New("record already exists")

// CreateUserParams contains parameters for creating a user.
type CreateUserParams struct {
	ID       string
	Email    *string
	Name     *string
	PaidUser bool
}

// UpdateUserParams contains parameters for updating a user.
// Nil pointers leave the column unchanged.
type UpdateUserParams struct {
	ID            string
	Email         *string
	Name          *string
	ContactNumber *string
	CountryCode   *string
	PaidUser      *bool
}

// AddMessageParams contains parameters for appending a conversation message.
type AddMessageParams struct {
	SessionID   string
	UserID      string
	MessageType models.MessageType
	Content     string
	AgentName   *string
}

// CreatePortfolioAnalysisParams contains parameters for recording an analysed upload.
type CreatePortfolioAnalysisParams struct {
	SessionID        string
	UserID           string
	AnalysisData     string
	ExtractedTickers []string
	InputFormat      models.InputFormat
}

// CreateStockRecommendationParams contains parameters for recording a completed analysis.
type CreateStockRecommendationParams struct {
	SessionID          string
	UserID             string
	RecommendationData json.RawMessage
	InvestmentAmount   decimal.NullDecimal
	EmailID            *string
}

// UpsertWhitelistParams contains parameters for creating or updating a whitelist entry.
type UpsertWhitelistParams struct {
	Email         string
	IsWhitelisted bool
	MaxReports    int
}

// UserStore covers user records and per-user aggregates.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, arg CreateUserParams) (*models.User, error)
	UpdateUser(ctx context.Context, arg UpdateUserParams) (*models.User, error)
	// ReassignUserID re-points a user row, and through cascades all its
	// dependants, to a new auth-provider id.
	ReassignUserID(ctx context.Context, oldID, newID string) error
	CountUserMessages(ctx context.Context, userID string) (int, error)
	GetUserStats(ctx context.Context, userID string, now time.Time) (*models.UserStats, error)
}

// SessionStore covers conversation sessions and their messages.
type SessionStore interface {
	CreateSession(ctx context.Context, id, userID string) (*models.ConversationSession, error)
	GetSession(ctx context.Context, id string) (*models.ConversationSession, error)
	ListSessionsByUser(ctx context.Context, userID string, limit int) ([]models.ConversationSession, error)
	TouchSession(ctx context.Context, id string) error
	CloseSession(ctx context.Context, id string) error
	// MarkPortfolioUploaded only affects active sessions; ErrNotFound otherwise.
	MarkPortfolioUploaded(ctx context.Context, id string, format models.InputFormat) error
	AddMessage(ctx context.Context, arg AddMessageParams) (*models.ConversationMessage, error)
	ListMessages(ctx context.Context, sessionID string, limit int) ([]models.ConversationMessage, error)
}

// AgentStateStore covers the per-(session, agent) state blobs.
type AgentStateStore interface {
	GetAgentState(ctx context.Context, sessionID, agentName string) (*models.AgentState, error)
	UpsertAgentState(ctx context.Context, sessionID, agentName, stateData string) error
}

// AnalysisStore covers analysis outputs.
type AnalysisStore interface {
	CreatePortfolioAnalysis(ctx context.Context, arg CreatePortfolioAnalysisParams) (*models.PortfolioAnalysis, error)
	CreateStockRecommendation(ctx context.Context, arg CreateStockRecommendationParams) (*models.StockRecommendation, error)
	CountStockRecommendationsByUser(ctx context.Context, userID string) (int, error)
}

// WhitelistStore covers access-control entries.
type WhitelistStore interface {
	GetWhitelistEntry(ctx context.Context, email string) (*models.UserWhitelist, error)
	UpsertWhitelistEntry(ctx context.Context, arg UpsertWhitelistParams) (*models.UserWhitelist, error)
	DeleteWhitelistEntry(ctx context.Context, email string) error
	ListWhitelist(ctx context.Context) ([]models.UserWhitelist, error)
}

// Store defines the interface for database operations.
// This allows for mocking in tests and potential DB backend switching.
type Store interface {
	UserStore
	SessionStore
	AgentStateStore
	AnalysisStore
	WhitelistStore
	Ping(ctx context.Context) error
}
