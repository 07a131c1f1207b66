package service

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"chatagent/internal/domain"
	"chatagent/internal/repository"

	"go.uber.org/zap"
)

// ErrInvalidPhone is returned for a phone number that is not E.164
var ErrInvalidPhone = errors.New("invalid phone number")

// ProfileService handles user profiles and login sessions
type ProfileService struct {
	userRepo repository.UserRepository
	logger   *zap.Logger
}

// NewProfileService creates a new profile service
func NewProfileService(userRepo repository.UserRepository, logger *zap.Logger) *ProfileService {
	return &ProfileService{
		userRepo: userRepo,
		logger:   logger,
	}
}

// Record upserts the profile of a user the bot has seen
func (s *ProfileService) Record(ctx context.Context, p domain.UserProfile) error {
	if p.ID == 0 {
		return fmt.Errorf("profile without user id")
	}
	return s.userRepo.Upsert(ctx, p)
}

// RecordLogin upserts the profile and marks its session authenticated
func (s *ProfileService) RecordLogin(ctx context.Context, p domain.UserProfile) error {
	if err := s.Record(ctx, p); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	if _, err := s.userRepo.SetAuthenticated(ctx, p.ID, true); err != nil {
		return fmt.Errorf("failed to mark session: %w", err)
	}

	s.logger.Info("User logged in", zap.Int64("user_id", p.ID))
	return nil
}

// Logout ends the user's session and reports whether one was active
func (s *ProfileService) Logout(ctx context.Context, userID int64) (bool, error) {
	changed, err := s.userRepo.SetAuthenticated(ctx, userID, false)
	if err != nil {
		return false, err
	}
	if changed {
		s.logger.Info("User logged out", zap.Int64("user_id", userID))
	}
	return changed, nil
}

// IsAuthenticated checks if user has an active session
func (s *ProfileService) IsAuthenticated(ctx context.Context, userID int64) (bool, error) {
	return s.userRepo.IsAuthenticated(ctx, userID)
}

// LinkPhone binds a shared contact's phone number to the sender's account
// and returns the normalized number
func (s *ProfileService) LinkPhone(ctx context.Context, p domain.UserProfile, phone string) (string, error) {
	normalized, ok := domain.NormalizePhone(phone)
	if !ok {
		return "", ErrInvalidPhone
	}
	if err := s.Record(ctx, p); err != nil {
		return "", fmt.Errorf("failed to save profile: %w", err)
	}
	if err := s.userRepo.SetPhone(ctx, p.ID, normalized); err != nil {
		return "", fmt.Errorf("failed to link phone: %w", err)
	}

	s.logger.Info("Phone linked", zap.Int64("user_id", p.ID))
	return normalized, nil
}

// FindByPhone returns the account a phone number is linked to
func (s *ProfileService) FindByPhone(ctx context.Context, phone string) (int64, bool, error) {
	return s.userRepo.FindByPhone(ctx, phone)
}

// Recipients iterates over every known user
func (s *ProfileService) Recipients(ctx context.Context) iter.Seq2[domain.UserProfile, error] {
	return s.userRepo.ListAll(ctx)
}

// Count returns the number of known users
func (s *ProfileService) Count(ctx context.Context) (int, error) {
	return s.userRepo.Count(ctx)
}
