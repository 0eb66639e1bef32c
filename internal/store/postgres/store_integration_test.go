package postgres

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/internal/store"
)

// newTestStore connects to TEST_DATABASE_URL and applies migrations.
func newTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = Migrate(ctx, pool)
	require.NoError(t, err)
	return NewPostgresStore(pool)
}

func strPtr(s string) *string { return &s }

func createTestUser(t *testing.T, s *PostgresStore) *models.User {
	t.Helper()
	email := uuid.NewString() + "@example.com"
	u, err := s.CreateUser(context.Background(), store.CreateUserParams{ID: "test|" + uuid.NewString(), Email: &email})
	require.NoError(t, err)
	return u
}

func TestPostgresStore_MigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	applied, err := Migrate(context.Background(), s.db)
	require.NoError(t, err)
	assert.Empty(t, applied)

	status, err := Status(context.Background(), s.db)
	require.NoError(t, err)
	for _, st := range status {
		assert.True(t, st.Applied, st.Version)
	}
}

func TestPostgresStore_UserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s)

	_, err := s.CreateUser(ctx, store.CreateUserParams{ID: "test|" + uuid.NewString(), Email: u.Email})
	assert.ErrorIs(t, err, store.ErrConflict)

	byEmail, err := s.GetUserByEmail(ctx, *u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	newID := "test|" + uuid.NewString()
	require.NoError(t, s.ReassignUserID(ctx, u.ID, newID))
	_, err = s.GetUserByID(ctx, u.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	updated, err := s.UpdateUser(ctx, store.UpdateUserParams{ID: newID, Name: strPtr("Jane")})
	require.NoError(t, err)
	require.NotNil(t, updated.Name)
	assert.Equal(t, "Jane", *updated.Name)
}

func TestPostgresStore_SessionsAndState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s)

	sessionID := uuid.NewString()
	cs, err := s.CreateSession(ctx, sessionID, u.ID)
	require.NoError(t, err)
	assert.True(t, cs.IsActive)
	assert.False(t, cs.PortfolioStatementUploaded)

	_, err = s.AddMessage(ctx, store.AddMessageParams{SessionID: sessionID, UserID: u.ID, MessageType: models.MessageType("user"), Content: "hello"})
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, store.AddMessageParams{SessionID: sessionID, UserID: u.ID, MessageType: models.MessageType("agent"), Content: "hi", AgentName: strPtr("host_agent")})
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, sessionID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)

	n, err := s.CountUserMessages(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetAgentState(ctx, sessionID, "host_agent")
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, s.UpsertAgentState(ctx, sessionID, "host_agent", `{"a":1}`))
	require.NoError(t, s.UpsertAgentState(ctx, sessionID, "host_agent", `{"a":2}`))
	st, err := s.GetAgentState(ctx, sessionID, "host_agent")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, st.StateData)

	require.NoError(t, s.MarkPortfolioUploaded(ctx, sessionID, models.InputFormat("pdf")))
	require.NoError(t, s.CloseSession(ctx, sessionID))
	assert.ErrorIs(t, s.MarkPortfolioUploaded(ctx, sessionID, models.InputFormat("pdf")), store.ErrNotFound)

	cs, err = s.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.False(t, cs.IsActive)
	assert.True(t, cs.PortfolioStatementUploaded)
}

func TestPostgresStore_ListMessagesKeepsLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s)
	sessionID := uuid.NewString()
	_, err := s.CreateSession(ctx, sessionID, u.ID)
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		_, err := s.AddMessage(ctx, store.AddMessageParams{SessionID: sessionID, UserID: u.ID, MessageType: models.MessageType("user"), Content: content})
		require.NoError(t, err)
	}

	msgs, err := s.ListMessages(ctx, sessionID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)
	assert.Equal(t, "three", msgs[1].Content)
}

func TestPostgresStore_RecommendationUniquePerSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s)
	sessionID := uuid.NewString()
	_, err := s.CreateSession(ctx, sessionID, u.ID)
	require.NoError(t, err)

	params := store.CreateStockRecommendationParams{
		SessionID:          sessionID,
		UserID:             u.ID,
		RecommendationData: json.RawMessage(`{"buy":["AAPL"]}`),
		InvestmentAmount:   decimal.NewNullDecimal(decimal.RequireFromString("50000")),
		EmailID:            u.Email,
	}
	rec, err := s.CreateStockRecommendation(ctx, params)
	require.NoError(t, err)
	assert.True(t, rec.InvestmentAmount.Valid)

	_, err = s.CreateStockRecommendation(ctx, params)
	assert.ErrorIs(t, err, store.ErrConflict)

	n, err := s.CountStockRecommendationsByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPostgresStore_Whitelist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	email := uuid.NewString() + "@example.com"

	_, err := s.GetWhitelistEntry(ctx, email)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.UpsertWhitelistEntry(ctx, store.UpsertWhitelistParams{Email: email, IsWhitelisted: true, MaxReports: 3})
	require.NoError(t, err)
	entry, err := s.UpsertWhitelistEntry(ctx, store.UpsertWhitelistParams{Email: email, IsWhitelisted: false, MaxReports: 5})
	require.NoError(t, err)
	assert.False(t, entry.IsWhitelisted)
	assert.Equal(t, 5, entry.MaxReports)

	require.NoError(t, s.DeleteWhitelistEntry(ctx, email))
	assert.ErrorIs(t, s.DeleteWhitelistEntry(ctx, email), store.ErrNotFound)
}
