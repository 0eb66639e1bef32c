package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/internal/store"
)

// --- Session Methods ---

const sessionColumns = `id, user_id, is_active, portfolio_statement_uploaded, input_format, created_at, updated_at`

func scanSession(row pgx.Row) (*models.ConversationSession, error) {
	var cs models.ConversationSession
	err := row.Scan(
		&cs.ID,
		&cs.UserID,
		&cs.IsActive,
		&cs.PortfolioStatementUploaded,
		&cs.InputFormat,
		&cs.CreatedAt,
		&cs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

const createSession = `-- name: CreateSession :one
INSERT INTO conversation_sessions (id, user_id)
VALUES ($1, $2)
RETURNING ` + sessionColumns

// CreateSession starts a new active session for userID.
func (s *PostgresStore) CreateSession(ctx context.Context, id, userID string) (*models.ConversationSession, error) {
	cs, err := scanSession(s.db.QueryRow(ctx, createSession, id, userID))
	if err != nil {
		s.log.Errorw("CreateSession failed", "session_id", id, "user_id", userID, "error", err)
		return nil, fmt.Errorf("database error creating session: %w", mapError(err))
	}
	s.log.Infow("Created session", "session_id", cs.ID, "user_id", userID)
	return cs, nil
}

const getSession = `-- name: GetSession :one
SELECT ` + sessionColumns + ` FROM conversation_sessions WHERE id = $1`

// GetSession returns the session regardless of whether it is active.
func (s *PostgresStore) GetSession(ctx context.Context, id string) (*models.ConversationSession, error) {
	cs, err := scanSession(s.db.QueryRow(ctx, getSession, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching session: %w", err)
	}
	return cs, nil
}

const listSessionsByUser = `-- name: ListSessionsByUser :many
SELECT ` + sessionColumns + `
FROM conversation_sessions
WHERE user_id = $1
ORDER BY updated_at DESC
LIMIT $2`

// ListSessionsByUser returns a user's most recently active sessions first.
func (s *PostgresStore) ListSessionsByUser(ctx context.Context, userID string, limit int) ([]models.ConversationSession, error) {
	rows, err := s.db.Query(ctx, listSessionsByUser, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("database error listing sessions: %w", err)
	}
	defer rows.Close()

	var items []models.ConversationSession
	for rows.Next() {
		cs, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning session: %w", err)
		}
		items = append(items, *cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return items, nil
}

const touchSession = `-- name: TouchSession :exec
UPDATE conversation_sessions SET updated_at = NOW() WHERE id = $1`

// TouchSession bumps updated_at.
func (s *PostgresStore) TouchSession(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, touchSession, id)
	if err != nil {
		return fmt.Errorf("database error touching session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const closeSession = `-- name: CloseSession :exec
UPDATE conversation_sessions SET is_active = FALSE, updated_at = NOW() WHERE id = $1`

// CloseSession marks a session inactive.
func (s *PostgresStore) CloseSession(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, closeSession, id)
	if err != nil {
		return fmt.Errorf("database error closing session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	s.log.Infow("Closed session", "session_id", id)
	return nil
}

const markPortfolioUploaded = `-- name: MarkPortfolioUploaded :exec
UPDATE conversation_sessions
SET portfolio_statement_uploaded = TRUE, input_format = $2, updated_at = NOW()
WHERE id = $1 AND is_active`

// MarkPortfolioUploaded sets the upload flag on an active session.
func (s *PostgresStore) MarkPortfolioUploaded(ctx context.Context, id string, format models.InputFormat) error {
	tag, err := s.db.Exec(ctx, markPortfolioUploaded, id, format)
	if err != nil {
		return fmt.Errorf("database error marking portfolio uploaded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Message Methods ---

const messageColumns = `id, session_id, user_id, message_type, content, agent_name, timestamp`

func scanMessage(row pgx.Row) (*models.ConversationMessage, error) {
	var m models.ConversationMessage
	err := row.Scan(
		&m.ID,
		&m.SessionID,
		&m.UserID,
		&m.MessageType,
		&m.Content,
		&m.AgentName,
		&m.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const addMessage = `-- name: AddMessage :one
INSERT INTO conversation_messages (id, session_id, user_id, message_type, content, agent_name)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + messageColumns

// AddMessage appends a message to a session transcript.
func (s *PostgresStore) AddMessage(ctx context.Context, arg store.AddMessageParams) (*models.ConversationMessage, error) {
	m, err := scanMessage(s.db.QueryRow(ctx, addMessage,
		uuid.NewString(),
		arg.SessionID,
		arg.UserID,
		arg.MessageType,
		arg.Content,
		arg.AgentName,
	))
	if err != nil {
		return nil, fmt.Errorf("database error adding message: %w", mapError(err))
	}
	return m, nil
}

const listMessages = `-- name: ListMessages :many
SELECT ` + messageColumns + `
FROM conversation_messages
WHERE session_id = $1
ORDER BY timestamp DESC
LIMIT $2`

// ListMessages returns the latest limit messages of a session transcript in
// chronological order.
func (s *PostgresStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]models.ConversationMessage, error) {
	rows, err := s.db.Query(ctx, listMessages, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("database error listing messages: %w", err)
	}
	defer rows.Close()

	var items []models.ConversationMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		items = append(items, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	slices.Reverse(items)
	return items, nil
}
