package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/internal/store"
)

// --- Whitelist Methods ---

const whitelistColumns = `email, is_whitelisted, max_reports, created_at, updated_at`

func scanWhitelist(row pgx.Row) (*models.UserWhitelist, error) {
	var w models.UserWhitelist
	if err := row.Scan(&w.Email, &w.IsWhitelisted, &w.MaxReports, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

const getWhitelistEntry = `-- name: GetWhitelistEntry :one
SELECT ` + whitelistColumns + ` FROM user_whitelist WHERE email = $1`

// GetWhitelistEntry looks up an entry by lower-cased email.
func (s *PostgresStore) GetWhitelistEntry(ctx context.Context, email string) (*models.UserWhitelist, error) {
	w, err := scanWhitelist(s.db.QueryRow(ctx, getWhitelistEntry, strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching whitelist entry: %w", err)
	}
	return w, nil
}

const upsertWhitelistEntry = `-- name: UpsertWhitelistEntry :one
INSERT INTO user_whitelist (email, is_whitelisted, max_reports)
VALUES ($1, $2, $3)
ON CONFLICT (email)
DO UPDATE SET is_whitelisted = EXCLUDED.is_whitelisted, max_reports = EXCLUDED.max_reports, updated_at = NOW()
RETURNING ` + whitelistColumns

// UpsertWhitelistEntry creates or replaces an entry.
func (s *PostgresStore) UpsertWhitelistEntry(ctx context.Context, arg store.UpsertWhitelistParams) (*models.UserWhitelist, error) {
	w, err := scanWhitelist(s.db.QueryRow(ctx, upsertWhitelistEntry, strings.ToLower(arg.Email), arg.IsWhitelisted, arg.MaxReports))
	if err != nil {
		return nil, fmt.Errorf("database error upserting whitelist entry: %w", err)
	}
	return w, nil
}

const deleteWhitelistEntry = `-- name: DeleteWhitelistEntry :exec
DELETE FROM user_whitelist WHERE email = $1`

// DeleteWhitelistEntry removes an entry.
func (s *PostgresStore) DeleteWhitelistEntry(ctx context.Context, email string) error {
	tag, err := s.db.Exec(ctx, deleteWhitelistEntry, strings.ToLower(email))
	if err != nil {
		return fmt.Errorf("database error deleting whitelist entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const listWhitelist = `-- name: ListWhitelist :many
SELECT ` + whitelistColumns + ` FROM user_whitelist ORDER BY email`

// ListWhitelist returns all entries ordered by email.
func (s *PostgresStore) ListWhitelist(ctx context.Context) ([]models.UserWhitelist, error) {
	rows, err := s.db.Query(ctx, listWhitelist)
	if err != nil {
		return nil, fmt.Errorf("database error listing whitelist: %w", err)
	}
	defer rows.Close()

	var items []models.UserWhitelist
	for rows.Next() {
		w, err := scanWhitelist(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning whitelist entry: %w", err)
		}
		items = append(items, *w)
	}
	return items, rows.Err()
}
