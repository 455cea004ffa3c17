package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/focusmode/focusd/internal/domain/model"
)

// UserRepo reads candidate users for the recurring checks.
type UserRepo struct {
	DB *sql.DB
}

// NewUserRepo creates a UserRepo with the given database connection.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db}
}

const userColumns = `
  id,
  email,
  name,
  created_at,
  last_checkin_at
`

// CreatedSince returns users created at or after the given time, oldest first.
func (r *UserRepo) CreatedSince(ctx context.Context, since time.Time, limit int) ([]model.User, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE created_at >= $1
		ORDER BY created_at ASC
		LIMIT $2
	`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query users created since: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// InactiveSince returns users whose last activity predates the cutoff.
// Users who never checked in fall back to their creation time.
func (r *UserRepo) InactiveSince(ctx context.Context, cutoff time.Time, limit int) ([]model.User, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE COALESCE(last_checkin_at, created_at) < $1
		ORDER BY COALESCE(last_checkin_at, created_at) ASC
		LIMIT $2
	`, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query inactive users: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

func collectUsers(rows *sql.Rows) ([]model.User, error) {
	var users []model.User
	for rows.Next() {
		var (
			u             model.User
			lastCheckinAt sql.NullTime
		)
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &lastCheckinAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.LastCheckinAt = cloneNullableTime(lastCheckinAt)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}
