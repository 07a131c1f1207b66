package handler

import (
	"strings"
	"unicode"

	"chatagent/internal/conversation"
	"chatagent/internal/middleware"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// cleanCallbackData removes all non-printable characters from callback data
func cleanCallbackData(data string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, strings.TrimSpace(data))
}

// settingFromData maps a settings button to its sub-flow
func settingFromData(data string) (conversation.Setting, bool) {
	switch data {
	case btnChangeThumb.Unique:
		return conversation.SettingChangeThumbnail, true
	case btnReplaceWord.Unique:
		return conversation.SettingReplaceWord, true
	case btnDeleteWord.Unique:
		return conversation.SettingDeleteWord, true
	}
	return conversation.SettingNone, false
}

// handleSettingCallback starts the settings sub-flow of a menu button
func (h *Handler) handleSettingCallback(setting conversation.Setting) tele.HandlerFunc {
	return func(c tele.Context) error {
		if err := c.Respond(); err != nil {
			h.logger.Warn("Failed to acknowledge callback", zap.Error(err))
		}
		return h.beginFlow(middleware.Context(c), c.Sender().ID, chatID(c), 0,
			conversation.KindSettings, setting)
	}
}

// handleCallback handles callback queries no button handler matched
func (h *Handler) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		h.logger.Warn("handleCallback: callback is nil")
		return nil
	}

	// Clean data from all non-printable characters
	data := cleanCallbackData(callback.Data)
	h.logger.Debug("handleCallback: Processing callback",
		zap.String("data", data),
		zap.String("unique", callback.Unique),
		zap.String("id", callback.ID),
		zap.Int64("user_id", c.Sender().ID),
	)

	key := callback.Unique
	if key == "" {
		key = data
	}
	if key == btnCancel.Unique {
		return h.handleCancel(c)
	}
	if setting, ok := settingFromData(key); ok {
		return h.handleSettingCallback(setting)(c)
	}

	// If it's not handled, acknowledge it anyway
	h.logger.Warn("Unhandled callback in handleCallback",
		zap.String("data", data),
		zap.String("unique", callback.Unique),
	)
	return c.Respond()
}

// chatID is the chat of the update, or the sender's private chat for
// inline callbacks that carry no message
func chatID(c tele.Context) int64 {
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	return c.Sender().ID
}

// replyID is the ID of a command message. Callbacks reply to nothing.
func replyID(c tele.Context) int {
	if c.Callback() != nil || c.Message() == nil {
		return 0
	}
	return c.Message().ID
}
