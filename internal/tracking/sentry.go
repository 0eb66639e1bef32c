package tracking

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"finance-a2a-backend/internal/auth"
)

// SentryTracker reports errors to Sentry.
type SentryTracker struct {
	hub *sentry.Hub
}

// NewSentryTracker initialises the Sentry SDK.
func NewSentryTracker(dsn, environment string) (*SentryTracker, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		return nil, err
	}
	return &SentryTracker{hub: sentry.CurrentHub()}, nil
}

// CaptureError sends err with tags. The user id is attached when the context
// carries one.
func (t *SentryTracker) CaptureError(ctx context.Context, err error, tags map[string]string) {
	hub := t.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		if userID, ok := auth.GetUserIDFromContext(ctx); ok {
			scope.SetUser(sentry.User{ID: userID})
		}
	})
	hub.CaptureException(err)
}

// Flush waits for buffered events to be delivered.
func (t *SentryTracker) Flush() bool {
	return sentry.Flush(2 * time.Second)
}
