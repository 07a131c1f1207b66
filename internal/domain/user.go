package domain

import (
	"strings"
	"time"
)

// UserProfile represents a Telegram user observed by the bot
type UserProfile struct {
	ID            int64
	FirstName     string
	LastName      string
	Username      string
	LanguageCode  string
	Phone         string
	Authenticated bool
	JoinedAt      time.Time
	LastSeenAt    time.Time
}

// DisplayName returns first and last name joined by a space
func (p UserProfile) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}
