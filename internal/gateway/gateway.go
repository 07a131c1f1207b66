package gateway

import (
	"context"
	"errors"
	"fmt"

	"chatagent/internal/domain"
)

var (
	// ErrInvalidCode means the login code did not match
	ErrInvalidCode = errors.New("invalid login code")
	// ErrTwoFactorRequired means the account needs a second factor the bot does not support
	ErrTwoFactorRequired = errors.New("two-factor authentication required")
)

// Error is a failure of the messaging platform
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrTwoFactorRequired) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// MessageRef identifies a sent or received message
type MessageRef struct {
	Chat int64
	ID   int
}

// Button is an inline keyboard button. Unique makes it a callback button,
// URL makes it a link.
type Button struct {
	Text   string
	URL    string
	Unique string
}

// Keyboard is an inline keyboard, one slice per row
type Keyboard [][]Button

// SendOptions are optional parameters of SendText and SendPhoto
type SendOptions struct {
	ReplyTo  int
	Keyboard Keyboard
}

// Gateway is the messaging platform capability the bot acts through
type Gateway interface {
	SendText(ctx context.Context, chat int64, text string, opts *SendOptions) (MessageRef, error)
	// SendPhoto sends photo, which is a file ID, an http(s) URL or a local path
	SendPhoto(ctx context.Context, chat int64, photo, caption string, opts *SendOptions) (MessageRef, error)
	React(ctx context.Context, msg MessageRef, emoji string) error
	// RequestAuthCode sends a login code for phone and returns the handle
	// that must accompany the code
	RequestAuthCode(ctx context.Context, phone string) (string, error)
	// ExchangeAuthCode checks code. It returns ErrInvalidCode,
	// ErrTwoFactorRequired or an *Error on failure.
	ExchangeAuthCode(ctx context.Context, phone, handle, code string) error
	JoinChannel(ctx context.Context, link string) error
	FetchUserInfo(ctx context.Context, id int64) (domain.UserProfile, error)
}
