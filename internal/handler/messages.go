package handler

import (
	"context"
	"errors"

	"chatagent/internal/conversation"
	"chatagent/internal/domain"
	"chatagent/internal/middleware"
	"chatagent/internal/service"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// handleText handles all text messages. A user in a flow gets the message
// routed to it. Otherwise private messages record the sender and group
// messages report the users they mention.
func (h *Handler) handleText(c tele.Context) error {
	return h.message(middleware.Context(c), c.Message())
}

// handlePhoto handles photos, the caption standing in for the text
func (h *Handler) handlePhoto(c tele.Context) error {
	return h.message(middleware.Context(c), c.Message())
}

func (h *Handler) message(ctx context.Context, msg *tele.Message) error {
	if msg == nil || msg.Sender == nil || msg.Chat == nil {
		return nil
	}
	if h.route(ctx, msg.Sender.ID, inputFromMessage(msg)) {
		return nil
	}

	if msg.Private() {
		if err := h.profiles.Record(ctx, profileFromUser(msg.Sender)); err != nil {
			h.logger.Error("Failed to save user", zap.Int64("user_id", msg.Sender.ID), zap.Error(err))
		}
		return nil
	}

	for _, id := range mentionedUsers(msg) {
		if err := h.activity.Mentioned(ctx, id); err != nil {
			h.logger.Warn("Mention not reported", zap.Int64("user_id", id), zap.Error(err))
		}
	}
	return nil
}

// route hands the input to the user's active flow and reports whether
// one took it
func (h *Handler) route(ctx context.Context, user int64, in conversation.Input) bool {
	outcome, err := h.machine.Route(ctx, user, in)
	if err != nil {
		h.logger.Error("Flow step failed", zap.Int64("user_id", user), zap.Error(err))
	}
	return outcome != conversation.NoActiveFlow
}

// handleContact links the phone number of a shared contact
func (h *Handler) handleContact(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Contact == nil || msg.Sender == nil {
		return nil
	}
	return h.contact(middleware.Context(c), profileFromUser(msg.Sender), msg.Chat.ID, msg.ID, msg.Contact)
}

func (h *Handler) contact(ctx context.Context, sender domain.UserProfile, chat int64, replyTo int, contact *tele.Contact) error {
	if contact.UserID != sender.ID {
		return h.send(ctx, chat, replyTo, TextForeignContact, nil)
	}

	_, err := h.profiles.LinkPhone(ctx, sender, contact.PhoneNumber)
	switch {
	case errors.Is(err, service.ErrInvalidPhone):
		return h.send(ctx, chat, replyTo, TextInvalidContact, nil)
	case err != nil:
		h.logger.Error("Failed to link phone", zap.Int64("user_id", sender.ID), zap.Error(err))
		return h.send(ctx, chat, replyTo, TextContactFailed, nil)
	}
	return h.send(ctx, chat, replyTo, TextPhoneLinked, nil)
}

// handleUserJoined reports a new group member
func (h *Handler) handleUserJoined(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.UserJoined == nil {
		return nil
	}
	return h.activity.MemberJoined(middleware.Context(c), profileFromUser(msg.UserJoined))
}

func profileFromUser(u *tele.User) domain.UserProfile {
	if u == nil {
		return domain.UserProfile{}
	}
	return domain.UserProfile{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Username:     u.Username,
		LanguageCode: u.LanguageCode,
	}
}

// inputFromMessage converts a message for the conversation machine
func inputFromMessage(msg *tele.Message) conversation.Input {
	in := conversation.Input{
		MessageID: msg.ID,
		Text:      msg.Text,
		Sender:    profileFromUser(msg.Sender),
	}
	if msg.Chat != nil {
		in.Chat = msg.Chat.ID
	}
	if msg.Photo != nil {
		in.PhotoID = msg.Photo.FileID
		if in.Text == "" {
			in.Text = msg.Caption
		}
	}
	return in
}

// mentionedUsers returns the users a message mentions by name, in order
// and without repeats. Plain @username mentions carry no user.
func mentionedUsers(msg *tele.Message) []int64 {
	var (
		ids  []int64
		seen = make(map[int64]bool)
	)
	collect := func(entities tele.Entities) {
		for _, e := range entities {
			if e.Type != tele.EntityTMention || e.User == nil || seen[e.User.ID] {
				continue
			}
			seen[e.User.ID] = true
			ids = append(ids, e.User.ID)
		}
	}
	collect(msg.Entities)
	collect(msg.CaptionEntities)
	return ids
}
