package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/internal/store"
)

// --- Agent State Methods ---

const getAgentState = `-- name: GetAgentState :one
SELECT id, session_id, agent_name, state_data, created_at, updated_at
FROM agent_states
WHERE session_id = $1 AND agent_name = $2`

// GetAgentState returns the state row for (sessionID, agentName).
func (s *PostgresStore) GetAgentState(ctx context.Context, sessionID, agentName string) (*models.AgentState, error) {
	var st models.AgentState
	err := s.db.QueryRow(ctx, getAgentState, sessionID, agentName).Scan(
		&st.ID,
		&st.SessionID,
		&st.AgentName,
		&st.StateData,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching agent state: %w", err)
	}
	return &st, nil
}

const upsertAgentState = `-- name: UpsertAgentState :exec
INSERT INTO agent_states (id, session_id, agent_name, state_data)
VALUES ($1, $2, $3, $4)
ON CONFLICT (session_id, agent_name)
DO UPDATE SET state_data = EXCLUDED.state_data, updated_at = NOW()`

// UpsertAgentState writes the state blob, creating the row on first save.
func (s *PostgresStore) UpsertAgentState(ctx context.Context, sessionID, agentName, stateData string) error {
	_, err := s.db.Exec(ctx, upsertAgentState, uuid.NewString(), sessionID, agentName, stateData)
	if err != nil {
		return fmt.Errorf("database error upserting agent state: %w", err)
	}
	return nil
}
