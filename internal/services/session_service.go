package services

import (
	"context"
	"errors"
	"fmt"

	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SessionService lists and closes conversation sessions.
type SessionService struct {
	store store.Store
}

// NewSessionService creates a new SessionService.
func NewSessionService(s store.Store) *SessionService {
	return &SessionService{store: s}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// owned returns the session if it exists and, when userID is non-empty,
// belongs to userID.
func (s *SessionService) owned(ctx context.Context, userID, sessionID string) (*models.ConversationSession, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if userID != "" && session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ListSessions returns the user's sessions, most recently active first.
func (s *SessionService) ListSessions(ctx context.Context, userID string, limit int) ([]models.SessionResponse, error) {
	sessions, err := s.store.ListSessionsByUser(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]models.SessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, models.ToSessionResponse(&sessions[i]))
	}
	return out, nil
}

// ListMessages returns a session's transcript in chronological order.
func (s *SessionService) ListMessages(ctx context.Context, userID, sessionID string, limit int) ([]models.MessageResponse, error) {
	if _, err := s.owned(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, sessionID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	out := make([]models.MessageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, models.ToMessageResponse(&msgs[i]))
	}
	return out, nil
}

// CloseSession deactivates a session. An empty userID skips the ownership
// check (operator tooling).
func (s *SessionService) CloseSession(ctx context.Context, userID, sessionID string) error {
	if _, err := s.owned(ctx, userID, sessionID); err != nil {
		return err
	}
	if err := s.store.CloseSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}
