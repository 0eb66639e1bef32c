package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"finance-a2a-backend/internal/dialogue"
	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/internal/store"
	"finance-a2a-backend/pkg/logger"
)

var _ dialogue.QuotaChecker = (*WhitelistService)(nil)

// WhitelistService manages access entries and report quotas. Lookups are
// cached for a few minutes; writes through the service invalidate them.
type WhitelistService struct {
	store store.Store
	cache *cache.Cache
	log   *logger.Logger
}

// NewWhitelistService creates a new WhitelistService.
func NewWhitelistService(s store.Store) *WhitelistService {
	return &WhitelistService{
		store: s,
		cache: cache.New(5*time.Minute, 10*time.Minute),
		log:   logger.Get().With("component", "whitelist_service"),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Get returns the entry for email.
func (s *WhitelistService) Get(ctx context.Context, email string) (*models.UserWhitelist, error) {
	email = normalizeEmail(email)
	if v, ok := s.cache.Get(email); ok {
		return v.(*models.UserWhitelist), nil
	}
	entry, err := s.store.GetWhitelistEntry(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrWhitelistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get whitelist entry: %w", err)
	}
	s.cache.SetDefault(email, entry)
	return entry, nil
}

// IsAllowed reports whether email has an active whitelist entry.
func (s *WhitelistService) IsAllowed(ctx context.Context, email string) (bool, error) {
	if normalizeEmail(email) == "" {
		return false, nil
	}
	entry, err := s.Get(ctx, email)
	if errors.Is(err, ErrWhitelistNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return entry.IsWhitelisted, nil
}

// Upsert creates or updates the entry for email. Unset request fields keep
// their current value; new entries default to whitelisted with no report
// limit.
func (s *WhitelistService) Upsert(ctx context.Context, email string, req models.WhitelistRequest) (*models.UserWhitelist, error) {
	email = normalizeEmail(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	params := store.UpsertWhitelistParams{Email: email, IsWhitelisted: true}
	current, err := s.store.GetWhitelistEntry(ctx, email)
	switch {
	case err == nil:
		params.IsWhitelisted = current.IsWhitelisted
		params.MaxReports = current.MaxReports
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to get whitelist entry: %w", err)
	}
	if req.IsWhitelisted != nil {
		params.IsWhitelisted = *req.IsWhitelisted
	}
	if req.MaxReports != nil {
		params.MaxReports = *req.MaxReports
	}

	entry, err := s.store.UpsertWhitelistEntry(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert whitelist entry: %w", err)
	}
	s.cache.Delete(email)
	s.log.Infow("Whitelist entry saved", "email", email, "is_whitelisted", entry.IsWhitelisted, "max_reports", entry.MaxReports)
	return entry, nil
}

// Delete removes the entry for email.
func (s *WhitelistService) Delete(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	err := s.store.DeleteWhitelistEntry(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return ErrWhitelistNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete whitelist entry: %w", err)
	}
	s.cache.Delete(email)
	return nil
}

// List returns every entry.
func (s *WhitelistService) List(ctx context.Context) ([]models.UserWhitelist, error) {
	entries, err := s.store.ListWhitelist(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list whitelist: %w", err)
	}
	return entries, nil
}

// RemainingReports compares the user's stored recommendations with the
// max_reports of their whitelist entry. Users without an email, without an
// entry or with max_reports 0 are unlimited (-1).
func (s *WhitelistService) RemainingReports(ctx context.Context, userID string) (int, int, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get user: %w", err)
	}
	if user.Email == nil || *user.Email == "" {
		return -1, 0, nil
	}
	entry, err := s.Get(ctx, *user.Email)
	if errors.Is(err, ErrWhitelistNotFound) {
		return -1, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	if entry.MaxReports <= 0 {
		return -1, 0, nil
	}

	used, err := s.store.CountStockRecommendationsByUser(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count recommendations: %w", err)
	}
	remaining := entry.MaxReports - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, entry.MaxReports, nil
}
