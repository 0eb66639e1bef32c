package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"finance-a2a-backend/internal/config"
	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/internal/store"
)

// UserService serves profile and usage information.
type UserService struct {
	store store.Store
	cfg   config.ChatConfig
	now   func() time.Time
}

// NewUserService creates a new UserService.
func NewUserService(s store.Store, cfg config.ChatConfig) *UserService {
	return &UserService{store: s, cfg: cfg, now: time.Now}
}

func (s *UserService) getUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetProfile returns the user with session and message totals.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.UserProfileResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.GetUserStats(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}

	resp := &models.UserProfileResponse{
		User:            models.ToUserResponse(user),
		TotalSessions:   stats.TotalSessions,
		TotalMessages:   stats.TotalMessages,
		UserMessages:    stats.UserMessages,
		CanSendMessages: true,
	}
	if !user.PaidUser && s.cfg.FreeMessageLimit > 0 {
		limit := s.cfg.FreeMessageLimit
		resp.MessageLimit = &limit
		resp.CanSendMessages = stats.UserMessages < limit
	}
	return resp, nil
}

// UpdateProfile applies the non-nil fields of req.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req models.UpdateUserRequest) (*models.UserResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		req.Email = &email
	}

	user, err := s.store.UpdateUser(ctx, store.UpdateUserParams{
		ID:            userID,
		Email:         req.Email,
		Name:          req.Name,
		ContactNumber: req.ContactNumber,
		CountryCode:   req.CountryCode,
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrUserNotFound
	case errors.Is(err, store.ErrConflict):
		return nil, ErrEmailTaken
	case err != nil:
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	resp := models.ToUserResponse(user)
	return &resp, nil
}

// GetStats returns activity counters for the user.
func (s *UserService) GetStats(ctx context.Context, userID string) (*models.UserStatsResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.GetUserStats(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}
	return &models.UserStatsResponse{
		UserID:                user.ID,
		TotalMessages:         stats.TotalMessages,
		MessagesLast24h:       stats.MessagesLast24h,
		MessagesLast7d:        stats.MessagesLast7d,
		MessagesLast30d:       stats.MessagesLast30d,
		TotalSessions:         stats.TotalSessions,
		ActiveSessions:        stats.ActiveSessions,
		AvgMessagesPerSession: stats.AvgMessagesPerSession,
		FirstMessageAt:        stats.FirstMessageAt,
		LastMessageAt:         stats.LastMessageAt,
		PaidUser:              user.PaidUser,
	}, nil
}
