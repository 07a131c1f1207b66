package postgres

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"math"

	"chatagent/internal/domain"
)

// listPageSize is the number of users fetched per ListAll round trip
const listPageSize = 500

// UserRepo implements repository.UserRepository
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new user repository
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Upsert creates the user or overwrites its profile fields.
// joined_at keeps the value of the first insert.
func (r *UserRepo) Upsert(ctx context.Context, p domain.UserProfile) error {
	query := `
		INSERT INTO users (user_id, username, first_name, last_name, language_code, joined_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			language_code = EXCLUDED.language_code,
			last_seen_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.Username, p.FirstName, p.LastName, p.LanguageCode)
	return err
}

// SetAuthenticated changes the session flag and reports whether it changed
func (r *UserRepo) SetAuthenticated(ctx context.Context, userID int64, authenticated bool) (bool, error) {
	query := `UPDATE users SET authenticated = $2 WHERE user_id = $1 AND authenticated <> $2`
	res, err := r.db.ExecContext(ctx, query, userID, authenticated)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsAuthenticated checks if user has an active session
func (r *UserRepo) IsAuthenticated(ctx context.Context, userID int64) (bool, error) {
	var authenticated bool
	query := `SELECT authenticated FROM users WHERE user_id = $1`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&authenticated)

	if errors.Is(err, sql.ErrNoRows) {
		// User doesn't exist yet
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return authenticated, nil
}

// SetPhone links phone to userID, unlinking it from any other user
func (r *UserRepo) SetPhone(ctx context.Context, userID int64, phone string) error {
	query := `
		WITH released AS (
			UPDATE users SET phone = NULL WHERE phone = $2 AND user_id <> $1
		)
		INSERT INTO users (user_id, phone, joined_at, last_seen_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET phone = EXCLUDED.phone, last_seen_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, userID, phone)
	return err
}

// FindByPhone returns the user linked to phone
func (r *UserRepo) FindByPhone(ctx context.Context, phone string) (int64, bool, error) {
	var userID int64
	query := `SELECT user_id FROM users WHERE phone = $1`
	err := r.db.QueryRowContext(ctx, query, phone).Scan(&userID)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return userID, true, nil
}

// ListAll iterates over every user ordered by ID. Each call starts a new
// pass; pages are fetched lazily as the caller advances.
func (r *UserRepo) ListAll(ctx context.Context) iter.Seq2[domain.UserProfile, error] {
	return func(yield func(domain.UserProfile, error) bool) {
		after := int64(math.MinInt64)
		for {
			page, err := r.listPage(ctx, after, listPageSize)
			if err != nil {
				yield(domain.UserProfile{}, err)
				return
			}
			for _, p := range page {
				if !yield(p, nil) {
					return
				}
			}
			if len(page) < listPageSize {
				return
			}
			after = page[len(page)-1].ID
		}
	}
}

func (r *UserRepo) listPage(ctx context.Context, after int64, limit int) ([]domain.UserProfile, error) {
	query := `
		SELECT user_id, username, first_name, last_name, language_code, phone,
			authenticated, joined_at, last_seen_at
		FROM users
		WHERE user_id > $1
		ORDER BY user_id
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.UserProfile
	for rows.Next() {
		var (
			p     domain.UserProfile
			phone sql.NullString
		)
		if err := rows.Scan(
			&p.ID, &p.Username, &p.FirstName, &p.LastName, &p.LanguageCode, &phone,
			&p.Authenticated, &p.JoinedAt, &p.LastSeenAt,
		); err != nil {
			return nil, err
		}
		p.Phone = phone.String
		users = append(users, p)
	}

	return users, rows.Err()
}

// Count returns the number of known users
func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
