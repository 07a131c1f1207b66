package service

import (
	"context"
	"fmt"
	"testing"

	"chatagent/internal/domain"
	"chatagent/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestParseReplacement(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		expected      domain.WordRule
		expectedError bool
	}{
		{name: "simple", text: "cat->dog", expected: domain.WordRule{Word: "cat", Replacement: "dog"}},
		{name: "spaces around", text: " cat -> dog ", expected: domain.WordRule{Word: "cat", Replacement: "dog"}},
		{name: "first separator wins", text: "a->b->c", expected: domain.WordRule{Word: "a", Replacement: "b->c"}},
		{name: "empty replacement", text: "cat->", expected: domain.WordRule{Word: "cat", Replacement: ""}},
		{name: "phrase", text: "good morning->hello", expected: domain.WordRule{Word: "good morning", Replacement: "hello"}},
		{name: "no separator", text: "cat dog", expectedError: true},
		{name: "only arrow", text: "->dog", expectedError: true},
		{name: "empty", text: "", expectedError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := ParseReplacement(tt.text)

			if tt.expectedError {
				assert.ErrorIs(t, err, ErrInvalidFormat)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, rule)
		})
	}
}

func TestSettingsService_ReplaceWord(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		mockError     error
		expectSave    bool
		expectedError bool
	}{
		{
			name:       "valid rule",
			text:       "cat->dog",
			expectSave: true,
		},
		{
			name:          "invalid format",
			text:          "cat dog",
			expectSave:    false,
			expectedError: true,
		},
		{
			name:          "database error",
			text:          "cat->dog",
			mockError:     fmt.Errorf("db error"),
			expectSave:    true,
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(testutil.MockSettingsRepository)
			if tt.expectSave {
				mockRepo.On("SaveWordRule", int64(123), domain.WordRule{Word: "cat", Replacement: "dog"}).Return(tt.mockError)
			}

			service := NewSettingsService(mockRepo)

			rule, err := service.ReplaceWord(context.Background(), 123, tt.text)

			if tt.expectedError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "dog", rule.Replacement)
			}
			mockRepo.AssertExpectations(t)
			if !tt.expectSave {
				mockRepo.AssertNotCalled(t, "SaveWordRule", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestSettingsService_DeleteWord(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		expected      string
		expectedError error
	}{
		{name: "word", text: "spam", expected: "spam"},
		{name: "trimmed", text: "  spam \n", expected: "spam"},
		{name: "blank", text: "   ", expectedError: ErrInvalidWord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(testutil.MockSettingsRepository)
			if tt.expectedError == nil {
				mockRepo.On("SaveWordRule", int64(123), domain.WordRule{Word: tt.expected}).Return(nil)
			}

			service := NewSettingsService(mockRepo)

			word, err := service.DeleteWord(context.Background(), 123, tt.text)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, word)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestSettingsService_ChangeThumbnail(t *testing.T) {
	mockRepo := new(testutil.MockSettingsRepository)
	mockRepo.On("SetThumbnail", int64(123), "file-1").Return(nil)

	service := NewSettingsService(mockRepo)

	assert.NoError(t, service.ChangeThumbnail(context.Background(), 123, "file-1"))
	assert.ErrorIs(t, service.ChangeThumbnail(context.Background(), 123, ""), ErrNoPhoto)
	mockRepo.AssertExpectations(t)
}

func TestSettingsService_Compose(t *testing.T) {
	mockRepo := new(testutil.MockSettingsRepository)
	mockRepo.On("WordRules", int64(123)).Return([]domain.WordRule{
		{Word: "cat", Replacement: "dog"},
		{Word: "spam ", Replacement: ""},
	}, nil)

	service := NewSettingsService(mockRepo)

	text, err := service.Compose(context.Background(), 123, "spam my cat")

	assert.NoError(t, err)
	assert.Equal(t, "my dog", text)
	mockRepo.AssertExpectations(t)
}

func TestSettingsService_ComposeError(t *testing.T) {
	mockRepo := new(testutil.MockSettingsRepository)
	mockRepo.On("WordRules", int64(123)).Return(nil, fmt.Errorf("db error"))

	service := NewSettingsService(mockRepo)

	_, err := service.Compose(context.Background(), 123, "hello")

	assert.Error(t, err)
}
