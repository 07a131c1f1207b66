package authcode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chatagent/internal/domain"
	"chatagent/internal/gateway"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

const (
	issuerName = "chatagent"
	codePeriod = 60 * time.Second
)

var (
	// ErrInvalidPhone is returned for a phone number that is not E.164
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrUnknownPhone is returned when no Telegram account shared this phone
	ErrUnknownPhone = errors.New("phone number is not linked to a Telegram account")
)

// Directory maps phone numbers to the Telegram account that shared them
type Directory interface {
	FindByPhone(ctx context.Context, phone string) (int64, bool, error)
}

// DeliverFunc sends the login code to a chat
type DeliverFunc func(ctx context.Context, chat int64, text string) error

// Options configure an Issuer
type Options struct {
	// TTL is how long a code stays valid
	TTL time.Duration
	// TwoFactorPhones are accounts that require a second factor
	TwoFactorPhones []string
	// Now replaces time.Now
	Now func() time.Time
}

type pendingCode struct {
	phone   string
	secret  string
	expires time.Time
}

// Issuer hands out single-use login codes. Each request gets a fresh TOTP
// secret that lives only in memory until the code is exchanged or expires.
type Issuer struct {
	directory Directory
	deliver   DeliverFunc
	ttl       time.Duration
	twoFactor map[string]struct{}
	now       func() time.Time
	logger    *zap.Logger

	mu      sync.Mutex
	pending map[string]pendingCode
}

// NewIssuer creates a code issuer
func NewIssuer(directory Directory, deliver DeliverFunc, opts Options, logger *zap.Logger) *Issuer {
	i := &Issuer{
		directory: directory,
		deliver:   deliver,
		ttl:       opts.TTL,
		twoFactor: make(map[string]struct{}),
		now:       opts.Now,
		logger:    logger,
		pending:   make(map[string]pendingCode),
	}
	if i.ttl <= 0 {
		i.ttl = 5 * time.Minute
	}
	if i.now == nil {
		i.now = time.Now
	}
	for _, p := range opts.TwoFactorPhones {
		if phone, ok := domain.NormalizePhone(p); ok {
			i.twoFactor[phone] = struct{}{}
		}
	}
	return i
}

func (i *Issuer) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(codePeriod / time.Second),
		Skew:      uint((i.ttl + codePeriod - 1) / codePeriod),
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// RequestCode generates a code for phone, delivers it to the linked account
// and returns the handle needed to exchange it
func (i *Issuer) RequestCode(ctx context.Context, phone string) (string, error) {
	normalized, ok := domain.NormalizePhone(phone)
	if !ok {
		return "", ErrInvalidPhone
	}

	chat, found, err := i.directory.FindByPhone(ctx, normalized)
	if err != nil {
		return "", fmt.Errorf("failed to look up phone: %w", err)
	}
	if !found {
		return "", ErrUnknownPhone
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuerName,
		AccountName: normalized,
		Period:      uint(codePeriod / time.Second),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}

	now := i.now()
	code, err := totp.GenerateCodeCustom(key.Secret(), now, i.validateOpts())
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}

	handle := uuid.NewString()
	i.mu.Lock()
	i.sweepLocked(now)
	i.pending[handle] = pendingCode{
		phone:   normalized,
		secret:  key.Secret(),
		expires: now.Add(i.ttl),
	}
	i.mu.Unlock()

	text := fmt.Sprintf("Your login code is %s. It expires in %d minutes. Do not share it with anyone.",
		code, int(i.ttl.Minutes()))
	if err := i.deliver(ctx, chat, text); err != nil {
		i.mu.Lock()
		delete(i.pending, handle)
		i.mu.Unlock()
		return "", fmt.Errorf("failed to deliver code: %w", err)
	}

	i.logger.Info("Login code issued", zap.Int64("chat_id", chat))
	return handle, nil
}

// ExchangeCode checks code for handle. A handle can be exchanged once,
// whatever the result.
func (i *Issuer) ExchangeCode(ctx context.Context, phone, handle, code string) error {
	normalized, _ := domain.NormalizePhone(phone)
	now := i.now()

	i.mu.Lock()
	p, ok := i.pending[handle]
	delete(i.pending, handle)
	i.mu.Unlock()

	if !ok || p.phone != normalized || !now.Before(p.expires) {
		return gateway.ErrInvalidCode
	}

	valid, err := totp.ValidateCustom(code, p.secret, now, i.validateOpts())
	if err != nil || !valid {
		return gateway.ErrInvalidCode
	}

	if _, ok := i.twoFactor[p.phone]; ok {
		return gateway.ErrTwoFactorRequired
	}
	return nil
}

// Pending returns the number of codes awaiting exchange
func (i *Issuer) Pending() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sweepLocked(i.now())
	return len(i.pending)
}

func (i *Issuer) sweepLocked(now time.Time) {
	for handle, p := range i.pending {
		if !now.Before(p.expires) {
			delete(i.pending, handle)
		}
	}
}
