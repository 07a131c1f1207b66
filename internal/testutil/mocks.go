package testutil

import (
	"context"
	"iter"

	"chatagent/internal/domain"
	"chatagent/internal/gateway"

	"github.com/stretchr/testify/mock"
)

// Context arguments are not recorded, expectations are set on the
// remaining arguments only.

// MockUserRepository is a mock for UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Upsert(_ context.Context, p domain.UserProfile) error {
	args := m.Called(p)
	return args.Error(0)
}

func (m *MockUserRepository) SetAuthenticated(_ context.Context, userID int64, authenticated bool) (bool, error) {
	args := m.Called(userID, authenticated)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) IsAuthenticated(_ context.Context, userID int64) (bool, error) {
	args := m.Called(userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) SetPhone(_ context.Context, userID int64, phone string) error {
	args := m.Called(userID, phone)
	return args.Error(0)
}

func (m *MockUserRepository) FindByPhone(_ context.Context, phone string) (int64, bool, error) {
	args := m.Called(phone)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockUserRepository) ListAll(_ context.Context) iter.Seq2[domain.UserProfile, error] {
	args := m.Called()
	return args.Get(0).(iter.Seq2[domain.UserProfile, error])
}

func (m *MockUserRepository) Count(_ context.Context) (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

// MockSettingsRepository is a mock for SettingsRepository
type MockSettingsRepository struct {
	mock.Mock
}

func (m *MockSettingsRepository) SetThumbnail(_ context.Context, userID int64, fileID string) error {
	args := m.Called(userID, fileID)
	return args.Error(0)
}

func (m *MockSettingsRepository) Thumbnail(_ context.Context, userID int64) (string, error) {
	args := m.Called(userID)
	return args.String(0), args.Error(1)
}

func (m *MockSettingsRepository) SaveWordRule(_ context.Context, userID int64, rule domain.WordRule) error {
	args := m.Called(userID, rule)
	return args.Error(0)
}

func (m *MockSettingsRepository) WordRules(_ context.Context, userID int64) ([]domain.WordRule, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.WordRule), args.Error(1)
}

// MockPhoneDirectory is a mock for authcode.Directory
type MockPhoneDirectory struct {
	mock.Mock
}

func (m *MockPhoneDirectory) FindByPhone(_ context.Context, phone string) (int64, bool, error) {
	args := m.Called(phone)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

// MockGateway is a mock for gateway.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) SendText(_ context.Context, chat int64, text string, opts *gateway.SendOptions) (gateway.MessageRef, error) {
	args := m.Called(chat, text, opts)
	return args.Get(0).(gateway.MessageRef), args.Error(1)
}

func (m *MockGateway) SendPhoto(_ context.Context, chat int64, photo, caption string, opts *gateway.SendOptions) (gateway.MessageRef, error) {
	args := m.Called(chat, photo, caption, opts)
	return args.Get(0).(gateway.MessageRef), args.Error(1)
}

func (m *MockGateway) React(_ context.Context, msg gateway.MessageRef, emoji string) error {
	args := m.Called(msg, emoji)
	return args.Error(0)
}

func (m *MockGateway) RequestAuthCode(_ context.Context, phone string) (string, error) {
	args := m.Called(phone)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) ExchangeAuthCode(_ context.Context, phone, handle, code string) error {
	args := m.Called(phone, handle, code)
	return args.Error(0)
}

func (m *MockGateway) JoinChannel(_ context.Context, link string) error {
	args := m.Called(link)
	return args.Error(0)
}

func (m *MockGateway) FetchUserInfo(_ context.Context, id int64) (domain.UserProfile, error) {
	args := m.Called(id)
	return args.Get(0).(domain.UserProfile), args.Error(1)
}
