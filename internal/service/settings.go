package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatagent/internal/domain"
	"chatagent/internal/repository"
)

// ReplacementSeparator splits the old and new word of a replacement rule
const ReplacementSeparator = "->"

var (
	// ErrInvalidFormat is returned for a replacement without "old->new"
	ErrInvalidFormat = errors.New("invalid format, expected old->new")
	// ErrInvalidWord is returned for an empty word to delete
	ErrInvalidWord = errors.New("invalid word")
	// ErrNoPhoto is returned when a thumbnail message carries no photo
	ErrNoPhoto = errors.New("no photo provided")
)

// SettingsService handles per-user broadcast settings
type SettingsService struct {
	settingsRepo repository.SettingsRepository
}

// NewSettingsService creates a new settings service
func NewSettingsService(settingsRepo repository.SettingsRepository) *SettingsService {
	return &SettingsService{settingsRepo: settingsRepo}
}

// ChangeThumbnail stores the photo used for the user's broadcasts
func (s *SettingsService) ChangeThumbnail(ctx context.Context, userID int64, fileID string) error {
	if fileID == "" {
		return ErrNoPhoto
	}
	return s.settingsRepo.SetThumbnail(ctx, userID, fileID)
}

// Thumbnail returns the user's thumbnail file ID, empty if none is set
func (s *SettingsService) Thumbnail(ctx context.Context, userID int64) (string, error) {
	return s.settingsRepo.Thumbnail(ctx, userID)
}

// ParseReplacement splits "old->new" at the first separator
func ParseReplacement(text string) (domain.WordRule, error) {
	before, after, found := strings.Cut(text, ReplacementSeparator)
	if !found {
		return domain.WordRule{}, ErrInvalidFormat
	}

	rule := domain.WordRule{
		Word:        strings.TrimSpace(before),
		Replacement: strings.TrimSpace(after),
	}
	if rule.Word == "" {
		return domain.WordRule{}, ErrInvalidFormat
	}
	return rule, nil
}

// ReplaceWord parses text as "old->new" and stores the rule
func (s *SettingsService) ReplaceWord(ctx context.Context, userID int64, text string) (domain.WordRule, error) {
	rule, err := ParseReplacement(text)
	if err != nil {
		return domain.WordRule{}, err
	}
	if err := s.settingsRepo.SaveWordRule(ctx, userID, rule); err != nil {
		return domain.WordRule{}, fmt.Errorf("failed to save rule: %w", err)
	}
	return rule, nil
}

// DeleteWord stores a rule removing word from the user's broadcasts
func (s *SettingsService) DeleteWord(ctx context.Context, userID int64, text string) (string, error) {
	word := strings.TrimSpace(text)
	if word == "" {
		return "", ErrInvalidWord
	}
	if err := s.settingsRepo.SaveWordRule(ctx, userID, domain.WordRule{Word: word}); err != nil {
		return "", fmt.Errorf("failed to save rule: %w", err)
	}
	return word, nil
}

// Compose applies the user's word rules to text
func (s *SettingsService) Compose(ctx context.Context, userID int64, text string) (string, error) {
	rules, err := s.settingsRepo.WordRules(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load rules: %w", err)
	}
	return domain.ApplyWordRules(text, rules), nil
}
