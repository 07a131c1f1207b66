package postgres

import (
	"context"
	"database/sql"
	"errors"

	"chatagent/internal/domain"
)

// SettingsRepo implements repository.SettingsRepository
type SettingsRepo struct {
	db *sql.DB
}

// NewSettingsRepo creates a new settings repository
func NewSettingsRepo(db *sql.DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

// SetThumbnail stores the user's thumbnail file ID
func (r *SettingsRepo) SetThumbnail(ctx context.Context, userID int64, fileID string) error {
	query := `
		INSERT INTO user_settings (user_id, thumbnail_file_id, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET thumbnail_file_id = EXCLUDED.thumbnail_file_id, updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, userID, fileID)
	return err
}

// Thumbnail returns the user's thumbnail file ID, empty if none is set
func (r *SettingsRepo) Thumbnail(ctx context.Context, userID int64) (string, error) {
	var fileID string
	query := `SELECT thumbnail_file_id FROM user_settings WHERE user_id = $1`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&fileID)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return fileID, nil
}

// SaveWordRule adds or replaces the rule for rule.Word
func (r *SettingsRepo) SaveWordRule(ctx context.Context, userID int64, rule domain.WordRule) error {
	query := `
		INSERT INTO word_rules (user_id, word, replacement)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, word)
		DO UPDATE SET replacement = EXCLUDED.replacement
	`
	_, err := r.db.ExecContext(ctx, query, userID, rule.Word, rule.Replacement)
	return err
}

// WordRules returns the user's rules in creation order
func (r *SettingsRepo) WordRules(ctx context.Context, userID int64) ([]domain.WordRule, error) {
	query := `
		SELECT word, replacement
		FROM word_rules
		WHERE user_id = $1
		ORDER BY created_at, word
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.WordRule
	for rows.Next() {
		var rule domain.WordRule
		if err := rows.Scan(&rule.Word, &rule.Replacement); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}
