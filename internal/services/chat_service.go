package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"finance-a2a-backend/internal/config"
	"finance-a2a-backend/internal/dialogue"
	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/internal/store"
	"finance-a2a-backend/pkg/logger"
)

// ChatService runs one conversational turn end to end: user bookkeeping,
// access checks, session lifecycle, transcript and the dialogue engine.
type ChatService struct {
	store     store.Store
	engine    *dialogue.Engine
	whitelist *WhitelistService
	cfg       config.ChatConfig
	now       func() time.Time
	log       *logger.Logger
}

// NewChatService creates a new ChatService.
func NewChatService(s store.Store, engine *dialogue.Engine, whitelist *WhitelistService, cfg config.ChatConfig) *ChatService {
	return &ChatService{
		store:     s,
		engine:    engine,
		whitelist: whitelist,
		cfg:       cfg,
		now:       time.Now,
		log:       logger.Get().With("component", "chat_service"),
	}
}

// TurnCaller identifies who is sending the message.
type TurnCaller struct {
	UserID string
	Email  string
}

// HandleTurn processes one chat request from caller.
func (s *ChatService) HandleTurn(ctx context.Context, caller TurnCaller, req models.ChatRequest) (*models.ChatResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrValidation)
	}

	userID := req.UserID
	if userID == "" {
		userID = caller.UserID
	}
	if userID == "" || userID != caller.UserID {
		return nil, ErrForbidden
	}
	log := s.log.With("user_id", userID)

	user, err := s.ensureUser(ctx, userID, caller.Email, req.PaidUser)
	if err != nil {
		return nil, err
	}

	if !user.PaidUser && s.cfg.FreeMessageLimit > 0 {
		count, err := s.store.CountUserMessages(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to count user messages: %w", err)
		}
		if count >= s.cfg.FreeMessageLimit {
			log.Infow("Free message limit reached", "count", count, "limit", s.cfg.FreeMessageLimit)
			return nil, ErrMessageLimitReached
		}
	}

	if s.cfg.WhitelistEnforced {
		email := caller.Email
		if user.Email != nil {
			email = *user.Email
		}
		allowed, err := s.whitelist.IsAllowed(ctx, email)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, ErrNotWhitelisted
		}
	}

	session, err := s.resolveSession(ctx, userID, req.SessionID)
	if err != nil {
		return nil, err
	}
	log = log.With("session_id", session.ID)

	// The user message is stored only once the turn ran, so a busy session
	// leaves no orphan message counting against the free limit.
	result, err := s.engine.Turn(ctx, dialogue.TurnInput{Session: session, UserID: userID, Message: req.Message})
	if err != nil {
		return nil, fmt.Errorf("failed to process turn: %w", err)
	}

	if _, err := s.store.AddMessage(ctx, store.AddMessageParams{
		SessionID:   session.ID,
		UserID:      userID,
		MessageType: models.MessageTypeUser,
		Content:     req.Message,
	}); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	agentName := dialogue.HostAgentName
	if _, err := s.store.AddMessage(ctx, store.AddMessageParams{
		SessionID:   session.ID,
		UserID:      userID,
		MessageType: models.MessageTypeAgent,
		Content:     result.Reply,
		AgentName:   &agentName,
	}); err != nil {
		log.Errorw("Failed to store agent reply", "error", err)
	}
	if err := s.store.TouchSession(ctx, session.ID); err != nil {
		log.Warnw("Failed to touch session", "error", err)
	}

	log.Infow("Turn processed", "phase", string(result.Phase), "dispatched", result.Dispatched)
	return &models.ChatResponse{
		Response:   result.Reply,
		SessionID:  session.ID,
		IsComplete: result.IsComplete,
	}, nil
}

// ensureUser returns the user for userID, creating it on first contact. A
// known email arriving under a new id re-points the existing row.
func (s *ChatService) ensureUser(ctx context.Context, userID, email string, paid bool) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err == nil {
		if user.PaidUser != paid {
			user, err = s.store.UpdateUser(ctx, store.UpdateUserParams{ID: userID, PaidUser: &paid})
			if err != nil {
				return nil, fmt.Errorf("failed to update paid flag: %w", err)
			}
		}
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email != "" {
		existing, err := s.store.GetUserByEmail(ctx, email)
		switch {
		case err == nil:
			s.log.Infow("Re-pointing user to new id", "old_user_id", existing.ID, "user_id", userID)
			if err := s.store.ReassignUserID(ctx, existing.ID, userID); err != nil {
				return nil, fmt.Errorf("failed to reassign user id: %w", err)
			}
			return s.ensureUser(ctx, userID, "", paid)
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("failed to get user by email: %w", err)
		}
	}

	params := store.CreateUserParams{ID: userID, PaidUser: paid}
	if email != "" {
		params.Email = &email
	}
	user, err = s.store.CreateUser(ctx, params)
	if errors.Is(err, store.ErrConflict) {
		// Lost a race with a concurrent first turn.
		return s.store.GetUserByID(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.log.Infow("Created user", "user_id", userID)
	return user, nil
}

// resolveSession creates a session when none is given, otherwise resumes
// it if it belongs to userID, is active and has not idled past the TTL.
func (s *ChatService) resolveSession(ctx context.Context, userID string, sessionID *string) (*models.ConversationSession, error) {
	if sessionID == nil || *sessionID == "" {
		session, err := s.store.CreateSession(ctx, uuid.NewString(), userID)
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		return session, nil
	}

	session, err := s.store.GetSession(ctx, *sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	if !session.IsActive {
		return nil, ErrSessionClosed
	}
	if s.cfg.SessionTTL > 0 && s.now().Sub(session.UpdatedAt) > s.cfg.SessionTTL {
		if err := s.store.CloseSession(ctx, session.ID); err != nil {
			s.log.Warnw("Failed to close expired session", "session_id", session.ID, "error", err)
		}
		return nil, ErrSessionExpired
	}
	return session, nil
}
