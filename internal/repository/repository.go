package repository

import (
	"context"
	"iter"

	"chatagent/internal/domain"
)

// UserRepository defines user profile operations
type UserRepository interface {
	Upsert(ctx context.Context, profile domain.UserProfile) error
	SetAuthenticated(ctx context.Context, userID int64, authenticated bool) (bool, error)
	IsAuthenticated(ctx context.Context, userID int64) (bool, error)
	SetPhone(ctx context.Context, userID int64, phone string) error
	FindByPhone(ctx context.Context, phone string) (int64, bool, error)
	ListAll(ctx context.Context) iter.Seq2[domain.UserProfile, error]
	Count(ctx context.Context) (int, error)
}

// SettingsRepository defines per-user settings operations
type SettingsRepository interface {
	SetThumbnail(ctx context.Context, userID int64, fileID string) error
	Thumbnail(ctx context.Context, userID int64) (string, error)
	SaveWordRule(ctx context.Context, userID int64, rule domain.WordRule) error
	WordRules(ctx context.Context, userID int64) ([]domain.WordRule, error)
}
