package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"finance-a2a-backend/internal/agents"
	"finance-a2a-backend/internal/auth"
	"finance-a2a-backend/internal/dialogue"
	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/internal/services"
)

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) HandleTurn(ctx context.Context, caller services.TurnCaller, req models.ChatRequest) (*models.ChatResponse, error) {
	args := m.Called(ctx, caller, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatResponse), args.Error(1)
}

type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) ListSessions(ctx context.Context, userID string, limit int) ([]models.SessionResponse, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SessionResponse), args.Error(1)
}

func (m *MockSessionService) ListMessages(ctx context.Context, userID, sessionID string, limit int) ([]models.MessageResponse, error) {
	args := m.Called(ctx, userID, sessionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MessageResponse), args.Error(1)
}

func (m *MockSessionService) CloseSession(ctx context.Context, userID, sessionID string) error {
	return m.Called(ctx, userID, sessionID).Error(0)
}

type MockAnalysisService struct {
	mock.Mock
}

func (m *MockAnalysisService) RecordPortfolio(ctx context.Context, sessionID string, req models.PortfolioUploadRequest) (*models.PortfolioUploadResponse, error) {
	args := m.Called(ctx, sessionID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PortfolioUploadResponse), args.Error(1)
}

func (m *MockAnalysisService) RecordRecommendation(ctx context.Context, sessionID string, req models.RecommendationRequest) (*models.RecommendationResponse, error) {
	args := m.Called(ctx, sessionID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RecommendationResponse), args.Error(1)
}

type MockAgentDirectory struct {
	mock.Mock
}

func (m *MockAgentDirectory) List() []agents.Connection {
	return m.Called().Get(0).([]agents.Connection)
}

func (m *MockAgentDirectory) Refresh(ctx context.Context) int {
	return m.Called(ctx).Int(0)
}

func (m *MockAgentDirectory) Check(ctx context.Context, name string) (*agents.AgentCard, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*agents.AgentCard), args.Error(1)
}

// serve routes a single request through chi so URL params resolve.
func serve(method, pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func authed(req *http.Request, userID, email string) *http.Request {
	return req.WithContext(auth.WithUser(req.Context(), userID, email))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHandleChat_Success(t *testing.T) {
	chat := new(MockChatService)
	h := NewChatHandlers(chat, new(MockSessionService))

	want := models.ChatRequest{Message: "hello", UserID: "u-1"}
	chat.On("HandleTurn", mock.Anything, services.TurnCaller{UserID: "u-1", Email: "a@example.com"}, want).
		Return(&models.ChatResponse{Response: "hi", SessionID: "s-1"}, nil)

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/chats", strings.NewReader(`{"message":"hello","user_id":"u-1"}`)), "u-1", "a@example.com")
	rec := serve(http.MethodPost, "/v1/chats", h.HandleChat, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hi", resp.Response)
	assert.Equal(t, "s-1", resp.SessionID)
	chat.AssertExpectations(t)
}

func TestHandleChat_Unauthenticated(t *testing.T) {
	chat := new(MockChatService)
	h := NewChatHandlers(chat, new(MockSessionService))

	req := httptest.NewRequest(http.MethodPost, "/v1/chats", strings.NewReader(`{"message":"hello"}`))
	rec := serve(http.MethodPost, "/v1/chats", h.HandleChat, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	chat.AssertNotCalled(t, "HandleTurn", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleChat_BadBody(t *testing.T) {
	h := NewChatHandlers(new(MockChatService), new(MockSessionService))

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/chats", strings.NewReader(`{not json`)), "u-1", "")
	rec := serve(http.MethodPost, "/v1/chats", h.HandleChat, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "invalid request body")
}

func TestHandleChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", fmt.Errorf("%w: message is required", services.ErrValidation), http.StatusBadRequest},
		{"forbidden", services.ErrForbidden, http.StatusForbidden},
		{"not whitelisted", services.ErrNotWhitelisted, http.StatusForbidden},
		{"limit", services.ErrMessageLimitReached, http.StatusPaymentRequired},
		{"session not found", services.ErrSessionNotFound, http.StatusNotFound},
		{"session closed", services.ErrSessionClosed, http.StatusGone},
		{"session expired", services.ErrSessionExpired, http.StatusGone},
		{"busy", dialogue.ErrSessionBusy, http.StatusConflict},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := new(MockChatService)
			chat.On("HandleTurn", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)
			h := NewChatHandlers(chat, new(MockSessionService))

			req := authed(httptest.NewRequest(http.MethodPost, "/v1/chats", strings.NewReader(`{"message":"x"}`)), "u-1", "")
			rec := serve(http.MethodPost, "/v1/chats", h.HandleChat, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "Internal server error", decodeError(t, rec))
			}
		})
	}
}

func TestHandleListMessages_PassesParams(t *testing.T) {
	sessions := new(MockSessionService)
	h := NewChatHandlers(new(MockChatService), sessions)

	sessions.On("ListMessages", mock.Anything, "u-1", "s-9", 20).
		Return([]models.MessageResponse{{ID: "m-1", Content: "hello"}}, nil)

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/sessions/s-9/messages?limit=20", nil), "u-1", "")
	rec := serve(http.MethodGet, "/v1/sessions/{sessionID}/messages", h.HandleListMessages, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"m-1"`)
	sessions.AssertExpectations(t)
}

func TestHandleListSessions_InvalidLimitFallsBack(t *testing.T) {
	sessions := new(MockSessionService)
	h := NewChatHandlers(new(MockChatService), sessions)
	sessions.On("ListSessions", mock.Anything, "u-1", 0).Return([]models.SessionResponse{}, nil)

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/sessions?limit=abc", nil), "u-1", "")
	rec := serve(http.MethodGet, "/v1/sessions", h.HandleListSessions, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	sessions.AssertExpectations(t)
}

func TestHandleCloseSession(t *testing.T) {
	sessions := new(MockSessionService)
	h := NewChatHandlers(new(MockChatService), sessions)
	sessions.On("CloseSession", mock.Anything, "u-1", "s-1").Return(nil).Once()
	sessions.On("CloseSession", mock.Anything, "u-1", "s-2").Return(services.ErrSessionNotFound).Once()

	rec := serve(http.MethodPost, "/v1/sessions/{sessionID}/close", h.HandleCloseSession,
		authed(httptest.NewRequest(http.MethodPost, "/v1/sessions/s-1/close", nil), "u-1", ""))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(http.MethodPost, "/v1/sessions/{sessionID}/close", h.HandleCloseSession,
		authed(httptest.NewRequest(http.MethodPost, "/v1/sessions/s-2/close", nil), "u-1", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	sessions.AssertExpectations(t)
}

func TestHandlePortfolio(t *testing.T) {
	analysis := new(MockAnalysisService)
	h := NewCallbackHandlers(analysis)

	analysis.On("RecordPortfolio", mock.Anything, "s-1", mock.MatchedBy(func(req models.PortfolioUploadRequest) bool {
		return req.InputFormat == models.InputFormat("pdf") && len(req.Tickers) == 2
	})).Return(&models.PortfolioUploadResponse{AnalysisID: "a-1", SessionID: "s-1", AddedTickers: []string{"AAPL", "MSFT"}}, nil)

	body := `{"tickers":["AAPL","MSFT"],"input_format":"pdf","analysis_data":"{}"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/agent-callbacks/sessions/s-1/portfolio", strings.NewReader(body))
	rec := serve(http.MethodPost, "/v1/agent-callbacks/sessions/{sessionID}/portfolio", h.HandlePortfolio, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var resp models.PortfolioUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a-1", resp.AnalysisID)
	analysis.AssertExpectations(t)
}

func TestHandleRecommendation_Duplicate(t *testing.T) {
	analysis := new(MockAnalysisService)
	h := NewCallbackHandlers(analysis)
	analysis.On("RecordRecommendation", mock.Anything, "s-1", mock.Anything).Return(nil, services.ErrRecommendationExists)

	req := httptest.NewRequest(http.MethodPost, "/v1/agent-callbacks/sessions/s-1/recommendations",
		strings.NewReader(`{"recommendation_data":{"buy":["AAPL"]}}`))
	rec := serve(http.MethodPost, "/v1/agent-callbacks/sessions/{sessionID}/recommendations", h.HandleRecommendation, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleRecommendation_EmptyBody(t *testing.T) {
	analysis := new(MockAnalysisService)
	h := NewCallbackHandlers(analysis)

	req := httptest.NewRequest(http.MethodPost, "/v1/agent-callbacks/sessions/s-1/recommendations", strings.NewReader(""))
	rec := serve(http.MethodPost, "/v1/agent-callbacks/sessions/{sessionID}/recommendations", h.HandleRecommendation, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "request body is empty", decodeError(t, rec))
	analysis.AssertNotCalled(t, "RecordRecommendation", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleListAgents(t *testing.T) {
	dir := new(MockAgentDirectory)
	h := NewAdminHandlers(nil, dir)
	dir.On("List").Return([]agents.Connection{{
		URL:  "http://localhost:10002",
		Card: agents.AgentCard{Name: "Stock Analyser Agent", Version: "1.0.0", Skills: []agents.AgentSkill{{ID: "analyse", Name: "Analyse stocks"}}},
	}})

	rec := serve(http.MethodGet, "/v1/admin/agents", h.HandleListAgents, httptest.NewRequest(http.MethodGet, "/v1/admin/agents", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp models.AgentsStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "Stock Analyser Agent", resp.Agents[0].Name)
	assert.Equal(t, []string{"Analyse stocks"}, resp.Agents[0].Skills)
}

func TestHandleTestAgent(t *testing.T) {
	dir := new(MockAgentDirectory)
	h := NewAdminHandlers(nil, dir)
	dir.On("Check", mock.Anything, "Stock Analyser Agent").Return(&agents.AgentCard{Name: "Stock Analyser Agent"}, nil)
	dir.On("Check", mock.Anything, "ghost").Return(nil, agents.ErrAgentNotFound)
	dir.On("Check", mock.Anything, "flaky").Return(nil, errors.New("dial tcp: connection refused"))

	pattern := "/v1/admin/agents/{name}/test"
	rec := serve(http.MethodPost, pattern, h.HandleTestAgent, httptest.NewRequest(http.MethodPost, "/v1/admin/agents/Stock%20Analyser%20Agent/test", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(http.MethodPost, pattern, h.HandleTestAgent, httptest.NewRequest(http.MethodPost, "/v1/admin/agents/ghost/test", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(http.MethodPost, pattern, h.HandleTestAgent, httptest.NewRequest(http.MethodPost, "/v1/admin/agents/flaky/test", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
