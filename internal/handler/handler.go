package handler

import (
	"context"

	"chatagent/internal/bulk"
	"chatagent/internal/conversation"
	"chatagent/internal/gateway"
	"chatagent/internal/service"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// Options carry the static content of the bot
type Options struct {
	StartImage string
	JoinLinks  []string
}

// Deps are the collaborators of Handler
type Deps struct {
	Bot      *tele.Bot
	Gateway  gateway.Gateway
	Machine  *conversation.Machine
	Jobs     *bulk.Jobs
	Joins    *bulk.Runner
	Profiles *service.ProfileService
	Activity *service.ActivityService
	Options  Options
	Logger   *zap.Logger
}

// Handler manages all bot interactions
type Handler struct {
	bot      *tele.Bot
	gw       gateway.Gateway
	machine  *conversation.Machine
	jobs     *bulk.Jobs
	joins    *bulk.Runner
	profiles *service.ProfileService
	activity *service.ActivityService
	opts     Options
	logger   *zap.Logger
}

// NewHandler creates a new handler instance
func NewHandler(deps Deps) *Handler {
	return &Handler{
		bot:      deps.Bot,
		gw:       deps.Gateway,
		machine:  deps.Machine,
		jobs:     deps.Jobs,
		joins:    deps.Joins,
		profiles: deps.Profiles,
		activity: deps.Activity,
		opts:     deps.Options,
		logger:   deps.Logger,
	}
}

// RegisterHandlers registers all bot handlers. Bulk commands go through
// restricted first.
func (h *Handler) RegisterHandlers(restricted tele.MiddlewareFunc) {
	// Commands
	h.bot.Handle("/start", h.handleStart)
	h.bot.Handle("/login", h.handleLogin)
	h.bot.Handle("/logout", h.handleLogout)
	h.bot.Handle("/settings", h.handleSettings)
	h.bot.Handle("/test", h.handleTest)
	h.bot.Handle("/cancel", h.handleCancel)

	admin := h.bot.Group()
	admin.Use(restricted)
	admin.Handle("/join", h.handleJoin)
	admin.Handle("/batch", h.handleBatch)
	admin.Handle("/cancelbatch", h.handleCancelBatch)
	admin.Handle("/broadcast", h.handleBroadcast)

	// Callback queries (inline buttons)
	h.bot.Handle(&btnChangeThumb, h.handleSettingCallback(conversation.SettingChangeThumbnail))
	h.bot.Handle(&btnReplaceWord, h.handleSettingCallback(conversation.SettingReplaceWord))
	h.bot.Handle(&btnDeleteWord, h.handleSettingCallback(conversation.SettingDeleteWord))
	h.bot.Handle(&btnCancel, h.handleCancel)

	// Generic callback handler for buttons whose unique did not come through
	h.bot.Handle(tele.OnCallback, h.handleCallback)

	// Messages
	h.bot.Handle(tele.OnText, h.handleText)
	h.bot.Handle(tele.OnPhoto, h.handlePhoto)
	h.bot.Handle(tele.OnContact, h.handleContact)
	h.bot.Handle(tele.OnUserJoined, h.handleUserJoined)
}

// send sends text to chat, as a reply when replyTo is set
func (h *Handler) send(ctx context.Context, chat int64, replyTo int, text string, kb gateway.Keyboard) error {
	opts := &gateway.SendOptions{ReplyTo: replyTo, Keyboard: kb}
	_, err := h.gw.SendText(ctx, chat, text, opts)
	return err
}

// Inline keyboard buttons
var (
	btnChangeThumb = tele.Btn{
		Unique: "change_thumb",
		Text:   "Change Thumbnail",
	}
	btnReplaceWord = tele.Btn{
		Unique: "replace_word",
		Text:   "Replace Word",
	}
	btnDeleteWord = tele.Btn{
		Unique: "delete_word",
		Text:   "Delete Word",
	}
	btnCancel = tele.Btn{
		Unique: "cancel",
		Text:   "Cancel",
	}
)

// settingsKeyboard returns the settings menu keyboard
func settingsKeyboard() gateway.Keyboard {
	return gateway.Keyboard{
		{{Text: btnChangeThumb.Text, Unique: btnChangeThumb.Unique}},
		{{Text: btnReplaceWord.Text, Unique: btnReplaceWord.Unique}},
		{{Text: btnDeleteWord.Text, Unique: btnDeleteWord.Unique}},
	}
}

// cancelKeyboard is attached to flow prompts
func cancelKeyboard() gateway.Keyboard {
	return gateway.Keyboard{{{Text: btnCancel.Text, Unique: btnCancel.Unique}}}
}
