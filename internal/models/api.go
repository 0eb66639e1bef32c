package models

import (
	"encoding/json"
	"time"
)

// --- Request Structs ---

// ChatRequest is one conversational turn sent by a client.
type ChatRequest struct {
	Message   string  `json:"message" validate:"required,max=4000"`
	UserID    string  `json:"user_id" validate:"omitempty,max=255"`
	PaidUser  bool    `json:"paid_user"`
	SessionID *string `json:"session_id,omitempty" validate:"omitempty,uuid"`
}

// UpdateUserRequest carries optional profile changes.
type UpdateUserRequest struct {
	Email         *string `json:"email,omitempty" validate:"omitempty,email"`
	Name          *string `json:"name,omitempty" validate:"omitempty,max=255"`
	ContactNumber *string `json:"contact_number,omitempty" validate:"omitempty,max=20"`
	CountryCode   *string `json:"country_code,omitempty" validate:"omitempty,max=5"`
}

// PortfolioUploadRequest is posted by the report analyser once it has
// processed a user's portfolio statement.
type PortfolioUploadRequest struct {
	Tickers      []string    `json:"tickers" validate:"dive,required,max=12"`
	InputFormat  InputFormat `json:"input_format" validate:"required,oneof=pdf image text"`
	AnalysisData string      `json:"analysis_data"`
}

// RecommendationRequest is posted by the stock analyser when an analysis
// has completed.
type RecommendationRequest struct {
	RecommendationData json.RawMessage `json:"recommendation_data" validate:"required"`
	InvestmentAmount   *string         `json:"investment_amount,omitempty"`
	EmailTo            *string         `json:"email_to,omitempty" validate:"omitempty,email"`
}

// WhitelistRequest creates or updates a whitelist entry.
type WhitelistRequest struct {
	IsWhitelisted *bool `json:"is_whitelisted,omitempty"`
	MaxReports    *int  `json:"max_reports,omitempty" validate:"omitempty,min=0"`
}

// --- Response Structs ---

// ChatResponse answers one conversational turn.
type ChatResponse struct {
	Response   string `json:"response"`
	SessionID  string `json:"session_id"`
	IsComplete bool   `json:"is_complete"`
}

// ErrorResponse defines the standard structure for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID            string    `json:"id"`
	Email         *string   `json:"email"`
	Name          *string   `json:"name"`
	ContactNumber *string   `json:"contact_number"`
	CountryCode   string    `json:"country_code"`
	PaidUser      bool      `json:"paid_user"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UserProfileResponse adds usage information to the user record.
type UserProfileResponse struct {
	User            UserResponse `json:"user"`
	TotalSessions   int          `json:"total_sessions"`
	TotalMessages   int          `json:"total_messages"`
	UserMessages    int          `json:"user_messages"`
	CanSendMessages bool         `json:"can_send_messages"`
	MessageLimit    *int         `json:"message_limit"` // nil for paid users
}

// UserStatsResponse reports activity counters for a user.
type UserStatsResponse struct {
	UserID                string     `json:"user_id"`
	TotalMessages         int        `json:"total_messages"`
	MessagesLast24h       int        `json:"messages_last_24h"`
	MessagesLast7d        int        `json:"messages_last_7d"`
	MessagesLast30d       int        `json:"messages_last_30d"`
	TotalSessions         int        `json:"total_sessions"`
	ActiveSessions        int        `json:"active_sessions"`
	AvgMessagesPerSession float64    `json:"avg_messages_per_session"`
	FirstMessageAt        *time.Time `json:"first_message_at"`
	LastMessageAt         *time.Time `json:"last_message_at"`
	PaidUser              bool       `json:"paid_user"`
}

// SessionResponse is the public view of a conversation session.
type SessionResponse struct {
	ID                         string       `json:"id"`
	IsActive                   bool         `json:"is_active"`
	PortfolioStatementUploaded bool         `json:"portfolio_statement_uploaded"`
	InputFormat                *InputFormat `json:"input_format"`
	CreatedAt                  time.Time    `json:"created_at"`
	UpdatedAt                  time.Time    `json:"updated_at"`
}

// MessageResponse is the public view of a conversation message.
type MessageResponse struct {
	ID          string      `json:"id"`
	MessageType MessageType `json:"message_type"`
	Content     string      `json:"content"`
	AgentName   *string     `json:"agent_name,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// AgentStatusResponse describes one connected remote agent.
type AgentStatusResponse struct {
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Version     string   `json:"version"`
	Skills      []string `json:"skills"`
}

// AgentsStatusResponse lists connected remote agents.
type AgentsStatusResponse struct {
	Agents []AgentStatusResponse `json:"agents"`
	Count  int                   `json:"count"`
}

// WhitelistResponse is the public view of a whitelist entry.
type WhitelistResponse struct {
	Email         string    `json:"email"`
	IsWhitelisted bool      `json:"is_whitelisted"`
	MaxReports    int       `json:"max_reports"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PortfolioUploadResponse acknowledges an analysed portfolio upload.
type PortfolioUploadResponse struct {
	AnalysisID   string   `json:"analysis_id"`
	SessionID    string   `json:"session_id"`
	AddedTickers []string `json:"added_tickers"`
}

// RecommendationResponse acknowledges a stored recommendation.
type RecommendationResponse struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ToUserResponse maps a DB user to its API view.
func ToUserResponse(u *User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		ContactNumber: u.ContactNumber,
		CountryCode:   u.CountryCode,
		PaidUser:      u.PaidUser,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// ToSessionResponse maps a DB session to its API view.
func ToSessionResponse(s *ConversationSession) SessionResponse {
	return SessionResponse{
		ID:                         s.ID,
		IsActive:                   s.IsActive,
		PortfolioStatementUploaded: s.PortfolioStatementUploaded,
		InputFormat:                s.InputFormat,
		CreatedAt:                  s.CreatedAt,
		UpdatedAt:                  s.UpdatedAt,
	}
}

// ToMessageResponse maps a DB message to its API view.
func ToMessageResponse(m *ConversationMessage) MessageResponse {
	return MessageResponse{
		ID:          m.ID,
		MessageType: m.MessageType,
		Content:     m.Content,
		AgentName:   m.AgentName,
		Timestamp:   m.Timestamp,
	}
}

// ToWhitelistResponse maps a DB whitelist entry to its API view.
func ToWhitelistResponse(w *UserWhitelist) WhitelistResponse {
	return WhitelistResponse{
		Email:         w.Email,
		IsWhitelisted: w.IsWhitelisted,
		MaxReports:    w.MaxReports,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
}
