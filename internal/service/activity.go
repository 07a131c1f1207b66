package service

import (
	"context"
	"fmt"

	"chatagent/internal/domain"
	"chatagent/internal/gateway"

	"go.uber.org/zap"
)

// ActivityService records group activity and reports it to the log channel
type ActivityService struct {
	profiles   *ProfileService
	gw         gateway.Gateway
	logChannel int64
	logger     *zap.Logger
}

// NewActivityService creates a new activity service
func NewActivityService(profiles *ProfileService, gw gateway.Gateway, logChannel int64, logger *zap.Logger) *ActivityService {
	return &ActivityService{
		profiles:   profiles,
		gw:         gw,
		logChannel: logChannel,
		logger:     logger,
	}
}

// MemberJoined records a new group member and reports it
func (s *ActivityService) MemberJoined(ctx context.Context, member domain.UserProfile) error {
	if err := s.profiles.Record(ctx, member); err != nil {
		s.logger.Error("Failed to record new member", zap.Int64("user_id", member.ID), zap.Error(err))
	}

	info, err := s.gw.FetchUserInfo(ctx, member.ID)
	if err != nil {
		return fmt.Errorf("failed to get user info: %w", err)
	}
	return s.report(ctx, "New Member", info)
}

// Mentioned records a user mentioned in a group and reports it
func (s *ActivityService) Mentioned(ctx context.Context, userID int64) error {
	info, err := s.gw.FetchUserInfo(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user info: %w", err)
	}
	if err := s.profiles.Record(ctx, info); err != nil {
		s.logger.Error("Failed to record mentioned user", zap.Int64("user_id", userID), zap.Error(err))
	}
	return s.report(ctx, "New Mention User", info)
}

func (s *ActivityService) report(ctx context.Context, label string, info domain.UserProfile) error {
	if s.logChannel == 0 {
		return nil
	}
	text := fmt.Sprintf("%s: %s, User ID: %d, Username: @%s", label, info.FirstName, info.ID, info.Username)
	if _, err := s.gw.SendText(ctx, s.logChannel, text, nil); err != nil {
		return fmt.Errorf("failed to report to log channel: %w", err)
	}
	return nil
}
