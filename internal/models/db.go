package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// MessageType classifies a conversation message.
type MessageType string

const (
	MessageTypeUser   MessageType = "user"
	MessageTypeAgent  MessageType = "agent"
	MessageTypeSystem MessageType = "system"
)

// InputFormat is the format of an uploaded portfolio statement.
type InputFormat string

const (
	InputFormatPDF   InputFormat = "pdf"
	InputFormatImage InputFormat = "image"
	InputFormatText  InputFormat = "text"
)

// Valid reports whether f is one of the known formats.
func (f InputFormat) Valid() bool {
	switch f {
	case InputFormatPDF, InputFormatImage, InputFormatText:
		return true
	}
	return false
}

// User represents a user in the database. ID is the auth-provider identifier.
type User struct {
	ID            string    `db:"id"`
	Email         *string   `db:"email"`
	Name          *string   `db:"name"`
	ContactNumber *string   `db:"contact_number"`
	CountryCode   string    `db:"country_code"`
	PaidUser      bool      `db:"paid_user"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// ConversationSession is one conversation between a user and the host agent.
type ConversationSession struct {
	ID                         string       `db:"id"`
	UserID                     string       `db:"user_id"`
	IsActive                   bool         `db:"is_active"`
	PortfolioStatementUploaded bool         `db:"portfolio_statement_uploaded"`
	InputFormat                *InputFormat `db:"input_format"`
	CreatedAt                  time.Time    `db:"created_at"`
	UpdatedAt                  time.Time    `db:"updated_at"`
}

// ConversationMessage is an append-only transcript entry.
type ConversationMessage struct {
	ID          string      `db:"id"`
	SessionID   string      `db:"session_id"`
	UserID      string      `db:"user_id"`
	MessageType MessageType `db:"message_type"`
	Content     string      `db:"content"`
	AgentName   *string     `db:"agent_name"`
	Timestamp   time.Time   `db:"timestamp"`
}

// AgentState is the persisted state blob of one agent within one session.
type AgentState struct {
	ID        string    `db:"id"`
	SessionID string    `db:"session_id"`
	AgentName string    `db:"agent_name"`
	StateData string    `db:"state_data"` // JSON text, possibly sealed
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// StockRecommendation is the final output of one completed analysis.
type StockRecommendation struct {
	ID                 string              `db:"id"`
	SessionID          string              `db:"session_id"`
	UserID             string              `db:"user_id"`
	RecommendationData json.RawMessage     `db:"recommendation_data"`
	InvestmentAmount   decimal.NullDecimal `db:"investment_amount"`
	EmailID            *string             `db:"email_id"`
	CreatedAt          time.Time           `db:"created_at"`
}

// PortfolioAnalysis is the report analyser's output for one upload.
type PortfolioAnalysis struct {
	ID               string       `db:"id"`
	SessionID        string       `db:"session_id"`
	UserID           string       `db:"user_id"`
	AnalysisData     string       `db:"analysis_data"`
	ExtractedTickers []string     `db:"extracted_tickers"`
	InputFormat      *InputFormat `db:"input_format"`
	CreatedAt        time.Time    `db:"created_at"`
}

// UserWhitelist governs access and report quota per email.
type UserWhitelist struct {
	Email         string    `db:"email"`
	IsWhitelisted bool      `db:"is_whitelisted"`
	MaxReports    int       `db:"max_reports"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// UserStats aggregates message and session activity for a user.
type UserStats struct {
	TotalMessages         int
	UserMessages          int
	MessagesLast24h       int
	MessagesLast7d        int
	MessagesLast30d       int
	TotalSessions         int
	ActiveSessions        int
	FirstMessageAt        *time.Time
	LastMessageAt         *time.Time
	AvgMessagesPerSession float64
}
