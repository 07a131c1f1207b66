package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"chatagent/internal/domain"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// ErrInviteLink is returned for private invite links, which bots cannot accept
var ErrInviteLink = errors.New("invite links cannot be joined by a bot")

// ErrNotMember is returned when the bot is not a member of the channel
var ErrNotMember = errors.New("bot is not a member of the chat")

// Authenticator issues and checks login codes
type Authenticator interface {
	RequestCode(ctx context.Context, phone string) (string, error)
	ExchangeCode(ctx context.Context, phone, handle, code string) error
}

// Telegram implements Gateway on top of the Bot API
type Telegram struct {
	bot    *tele.Bot
	auth   Authenticator
	logger *zap.Logger
}

// NewTelegram creates a Telegram gateway
func NewTelegram(bot *tele.Bot, auth Authenticator, logger *zap.Logger) *Telegram {
	return &Telegram{
		bot:    bot,
		auth:   auth,
		logger: logger,
	}
}

// SendText sends a text message
func (t *Telegram) SendText(ctx context.Context, chat int64, text string, opts *SendOptions) (MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return MessageRef{}, wrap("send text", err)
	}
	msg, err := t.bot.Send(tele.ChatID(chat), text, sendOptions(chat, opts))
	if err != nil {
		return MessageRef{}, wrap("send text", err)
	}
	return MessageRef{Chat: msg.Chat.ID, ID: msg.ID}, nil
}

// SendPhoto sends a photo with caption
func (t *Telegram) SendPhoto(ctx context.Context, chat int64, photo, caption string, opts *SendOptions) (MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return MessageRef{}, wrap("send photo", err)
	}
	p := &tele.Photo{File: photoFile(photo), Caption: caption}
	msg, err := t.bot.Send(tele.ChatID(chat), p, sendOptions(chat, opts))
	if err != nil {
		return MessageRef{}, wrap("send photo", err)
	}
	return MessageRef{Chat: msg.Chat.ID, ID: msg.ID}, nil
}

// React sets an emoji reaction on a message
func (t *Telegram) React(ctx context.Context, msg MessageRef, emoji string) error {
	if err := ctx.Err(); err != nil {
		return wrap("react", err)
	}
	stored := tele.StoredMessage{MessageID: strconv.Itoa(msg.ID), ChatID: msg.Chat}
	err := t.bot.React(tele.ChatID(msg.Chat), stored, tele.ReactionOptions{
		Reactions: []tele.Reaction{{Type: "emoji", Emoji: emoji}},
	})
	return wrap("react", err)
}

// RequestAuthCode delegates to the authenticator
func (t *Telegram) RequestAuthCode(ctx context.Context, phone string) (string, error) {
	handle, err := t.auth.RequestCode(ctx, phone)
	if err != nil {
		return "", wrap("request auth code", err)
	}
	return handle, nil
}

// ExchangeAuthCode delegates to the authenticator
func (t *Telegram) ExchangeAuthCode(ctx context.Context, phone, handle, code string) error {
	return wrap("exchange auth code", t.auth.ExchangeCode(ctx, phone, handle, code))
}

// JoinChannel resolves a public channel link and checks the bot's membership.
// The Bot API has no join call, so a bot must be added by an admin; this
// reports whether that has happened.
func (t *Telegram) JoinChannel(ctx context.Context, link string) error {
	if err := ctx.Err(); err != nil {
		return wrap("join channel", err)
	}

	target, err := ParseChannelLink(link)
	if err != nil {
		return wrap("join channel", err)
	}

	chat, err := t.bot.ChatByUsername(target)
	if err != nil {
		return wrap("join channel", err)
	}

	member, err := t.bot.ChatMemberOf(chat, t.bot.Me)
	if err != nil {
		return wrap("join channel", err)
	}
	if member.Role == tele.Left || member.Role == tele.Kicked {
		return wrap("join channel", fmt.Errorf("%w: %s", ErrNotMember, target))
	}

	t.logger.Debug("Channel membership confirmed",
		zap.String("link", link),
		zap.Int64("chat_id", chat.ID),
	)
	return nil
}

// FetchUserInfo loads a user's public profile
func (t *Telegram) FetchUserInfo(ctx context.Context, id int64) (domain.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return domain.UserProfile{}, wrap("fetch user info", err)
	}
	chat, err := t.bot.ChatByID(id)
	if err != nil {
		return domain.UserProfile{}, wrap("fetch user info", err)
	}
	return domain.UserProfile{
		ID:        chat.ID,
		FirstName: chat.FirstName,
		LastName:  chat.LastName,
		Username:  chat.Username,
	}, nil
}

// ParseChannelLink turns "@name", "t.me/name", "https://t.me/name" or a
// numeric chat ID into a getChat identifier
func ParseChannelLink(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", errors.New("empty channel link")
	}

	if _, err := strconv.ParseInt(link, 10, 64); err == nil {
		return link, nil
	}
	if strings.HasPrefix(link, "@") {
		if len(link) == 1 {
			return "", fmt.Errorf("invalid channel link %q", link)
		}
		return link, nil
	}

	rest := strings.TrimPrefix(strings.TrimPrefix(link, "https://"), "http://")
	host, path, ok := strings.Cut(rest, "/")
	if !ok || (host != "t.me" && host != "telegram.me") {
		return "", fmt.Errorf("invalid channel link %q", link)
	}

	name, _, _ := strings.Cut(path, "/")
	name, _, _ = strings.Cut(name, "?")
	switch {
	case name == "":
		return "", fmt.Errorf("invalid channel link %q", link)
	case strings.HasPrefix(name, "+"), name == "joinchat":
		return "", ErrInviteLink
	}
	return "@" + name, nil
}

func sendOptions(chat int64, opts *SendOptions) *tele.SendOptions {
	out := &tele.SendOptions{}
	if opts == nil {
		return out
	}
	if opts.ReplyTo != 0 {
		out.ReplyTo = &tele.Message{ID: opts.ReplyTo, Chat: &tele.Chat{ID: chat}}
	}
	if len(opts.Keyboard) > 0 {
		out.ReplyMarkup = inlineMarkup(opts.Keyboard)
	}
	return out
}

func inlineMarkup(kb Keyboard) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(kb))
	for _, buttons := range kb {
		row := make(tele.Row, 0, len(buttons))
		for _, b := range buttons {
			row = append(row, tele.Btn{Text: b.Text, URL: b.URL, Unique: b.Unique})
		}
		rows = append(rows, row)
	}
	markup.Inline(rows...)
	return markup
}

func photoFile(photo string) tele.File {
	switch {
	case strings.HasPrefix(photo, "http://"), strings.HasPrefix(photo, "https://"):
		return tele.FromURL(photo)
	case fileExists(photo):
		return tele.FromDisk(photo)
	}
	return tele.File{FileID: photo}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
