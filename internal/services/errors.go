package services

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// Service-level errors. Handlers map these to HTTP status codes.
var (
	ErrValidation           = errors.New("input validation failed")
	ErrForbidden            = errors.New("user id does not match the authenticated user")
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailTaken           = errors.New("email is already used by another account")
	ErrMessageLimitReached  = errors.New("free message limit reached")
	ErrNotWhitelisted       = errors.New("email is not whitelisted")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionClosed        = errors.New("session is closed")
	ErrSessionExpired       = errors.New("session has expired")
	ErrRecommendationExists = errors.New("a recommendation already exists for this session")
	ErrWhitelistNotFound    = errors.New("whitelist entry not found")
)

var validate = validator.New()
