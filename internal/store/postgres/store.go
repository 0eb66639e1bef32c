package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/internal/store"
	"finance-a2a-backend/pkg/logger"
)

// Compile-time check to ensure PostgresStore implements store.Store
var _ store.Store = (*PostgresStore)(nil)

const uniqueViolation = "23505"

type PostgresStore struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db, log: logger.Get().With("component", "postgres_store")}
}

// Ping verifies the pool can reach the database.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// mapError converts driver errors into store sentinels.
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// --- User Methods ---

const userColumns = `id, email, name, contact_number, country_code, paid_user, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.ContactNumber,
		&u.CountryCode,
		&u.PaidUser,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const getUserByID = `-- name: GetUserByID :one
SELECT ` + userColumns + ` FROM users WHERE id = $1`

// GetUserByID retrieves a user by auth-provider id.
// Returns store.ErrNotFound if the user does not exist.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, getUserByID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching user by id: %w", err)
	}
	return u, nil
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

// GetUserByEmail retrieves a user by email, case-insensitively.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, getUserByEmail, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching user by email: %w", err)
	}
	return u, nil
}

const createUser = `-- name: CreateUser :one
INSERT INTO users (id, email, name, paid_user)
VALUES ($1, $2, $3, $4)
RETURNING ` + userColumns

// CreateUser inserts a new user record into the database.
func (s *PostgresStore) CreateUser(ctx context.Context, arg store.CreateUserParams) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, createUser, arg.ID, arg.Email, arg.Name, arg.PaidUser))
	if err != nil {
		s.log.Errorw("CreateUser failed", "user_id", arg.ID, "error", err)
		return nil, fmt.Errorf("database error creating user: %w", mapError(err))
	}
	s.log.Infow("Created user", "user_id", u.ID)
	return u, nil
}

const updateUser = `-- name: UpdateUser :one
UPDATE users SET
    email          = COALESCE($2, email),
    name           = COALESCE($3, name),
    contact_number = COALESCE($4, contact_number),
    country_code   = COALESCE($5, country_code),
    paid_user      = COALESCE($6, paid_user),
    updated_at     = NOW()
WHERE id = $1
RETURNING ` + userColumns

// UpdateUser applies the non-nil fields of arg.
func (s *PostgresStore) UpdateUser(ctx context.Context, arg store.UpdateUserParams) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, updateUser,
		arg.ID,
		arg.Email,
		arg.Name,
		arg.ContactNumber,
		arg.CountryCode,
		arg.PaidUser,
	))
	if err != nil {
		err = mapError(err)
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("database error updating user: %w", err)
	}
	return u, nil
}

const reassignUserID = `-- name: ReassignUserID :exec
UPDATE users SET id = $2, updated_at = NOW() WHERE id = $1`

// ReassignUserID changes a user's primary key; foreign keys cascade.
func (s *PostgresStore) ReassignUserID(ctx context.Context, oldID, newID string) error {
	tag, err := s.db.Exec(ctx, reassignUserID, oldID, newID)
	if err != nil {
		return fmt.Errorf("database error reassigning user id: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	s.log.Infow("Reassigned user id", "old_user_id", oldID, "new_user_id", newID)
	return nil
}

const countUserMessages = `-- name: CountUserMessages :one
SELECT COUNT(*) FROM conversation_messages WHERE user_id = $1 AND message_type = 'user'`

// CountUserMessages counts the user-typed messages a user has sent.
func (s *PostgresStore) CountUserMessages(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, countUserMessages, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("database error counting user messages: %w", err)
	}
	return n, nil
}

const userMessageStats = `-- name: UserMessageStats :one
SELECT
    COUNT(*),
    COUNT(*) FILTER (WHERE message_type = 'user'),
    COUNT(*) FILTER (WHERE timestamp >= $2::timestamptz - INTERVAL '24 hours'),
    COUNT(*) FILTER (WHERE timestamp >= $2::timestamptz - INTERVAL '7 days'),
    COUNT(*) FILTER (WHERE timestamp >= $2::timestamptz - INTERVAL '30 days'),
    MIN(timestamp),
    MAX(timestamp)
FROM conversation_messages
WHERE user_id = $1`

const userSessionStats = `-- name: UserSessionStats :one
SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active)
FROM conversation_sessions
WHERE user_id = $1`

// GetUserStats aggregates message and session activity relative to now.
func (s *PostgresStore) GetUserStats(ctx context.Context, userID string, now time.Time) (*models.UserStats, error) {
	var st models.UserStats
	err := s.db.QueryRow(ctx, userMessageStats, userID, now).Scan(
		&st.TotalMessages,
		&st.UserMessages,
		&st.MessagesLast24h,
		&st.MessagesLast7d,
		&st.MessagesLast30d,
		&st.FirstMessageAt,
		&st.LastMessageAt,
	)
	if err != nil {
		return nil, fmt.Errorf("database error computing message stats: %w", err)
	}
	if err := s.db.QueryRow(ctx, userSessionStats, userID).Scan(&st.TotalSessions, &st.ActiveSessions); err != nil {
		return nil, fmt.Errorf("database error computing session stats: %w", err)
	}
	if st.TotalSessions > 0 {
		st.AvgMessagesPerSession = float64(st.TotalMessages) / float64(st.TotalSessions)
	}
	return &st, nil
}
