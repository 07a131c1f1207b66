package testutil

import (
	"iter"
	"time"

	"chatagent/internal/domain"

	"go.uber.org/zap"
)

// NewTestLogger creates a no-op logger for tests
func NewTestLogger() *zap.Logger {
	return zap.NewNop()
}

// NewTestUser creates a test user profile
func NewTestUser(userID int64, authenticated bool) domain.UserProfile {
	return domain.UserProfile{
		ID:            userID,
		FirstName:     "Test",
		Username:      "test_user",
		LanguageCode:  "en",
		Authenticated: authenticated,
		JoinedAt:      time.Now(),
		LastSeenAt:    time.Now(),
	}
}

// ProfileSeq yields profiles as a ListAll result
func ProfileSeq(profiles ...domain.UserProfile) iter.Seq2[domain.UserProfile, error] {
	return func(yield func(domain.UserProfile, error) bool) {
		for _, p := range profiles {
			if !yield(p, nil) {
				return
			}
		}
	}
}

// FailingSeq yields profiles and then err
func FailingSeq(err error, profiles ...domain.UserProfile) iter.Seq2[domain.UserProfile, error] {
	return func(yield func(domain.UserProfile, error) bool) {
		for _, p := range profiles {
			if !yield(p, nil) {
				return
			}
		}
		yield(domain.UserProfile{}, err)
	}
}
