package flow

import (
	"context"
	"iter"

	"chatagent/internal/bulk"
	"chatagent/internal/conversation"
	"chatagent/internal/domain"
	"chatagent/internal/gateway"

	"go.uber.org/zap"
)

// Profiles is the profile store used by the login and broadcast flows
type Profiles interface {
	RecordLogin(ctx context.Context, p domain.UserProfile) error
	Recipients(ctx context.Context) iter.Seq2[domain.UserProfile, error]
	Count(ctx context.Context) (int, error)
}

// Settings is the per-user settings store used by the settings and
// broadcast flows
type Settings interface {
	ChangeThumbnail(ctx context.Context, userID int64, fileID string) error
	Thumbnail(ctx context.Context, userID int64) (string, error)
	ReplaceWord(ctx context.Context, userID int64, text string) (domain.WordRule, error)
	DeleteWord(ctx context.Context, userID int64, text string) (string, error)
	Compose(ctx context.Context, userID int64, text string) (string, error)
}

// Deps are the collaborators of Handlers
type Deps struct {
	Gateway    gateway.Gateway
	Profiles   Profiles
	Settings   Settings
	Jobs       *bulk.Jobs
	Joins      *bulk.Runner
	Broadcasts *bulk.Runner
	Logger     *zap.Logger
}

// Handlers implements the step functions of every flow. They keep no state
// of their own; everything a flow carries between steps lives in the
// conversation.Flow they are handed.
type Handlers struct {
	gw         gateway.Gateway
	profiles   Profiles
	settings   Settings
	jobs       *bulk.Jobs
	joins      *bulk.Runner
	broadcasts *bulk.Runner
	logger     *zap.Logger
}

// New creates flow handlers
func New(deps Deps) *Handlers {
	return &Handlers{
		gw:         deps.Gateway,
		profiles:   deps.Profiles,
		settings:   deps.Settings,
		jobs:       deps.Jobs,
		joins:      deps.Joins,
		broadcasts: deps.Broadcasts,
		logger:     deps.Logger,
	}
}

// Steps returns the dispatch table for conversation.NewMachine
func (h *Handlers) Steps() conversation.Steps {
	var steps conversation.Steps
	steps[conversation.PhaseAwaitingPhone] = h.awaitingPhone
	steps[conversation.PhaseAwaitingCode] = h.awaitingCode
	steps[conversation.PhaseAwaitingThumbnail] = h.awaitingThumbnail
	steps[conversation.PhaseAwaitingReplacement] = h.awaitingReplacement
	steps[conversation.PhaseAwaitingDeletion] = h.awaitingDeletion
	steps[conversation.PhaseAwaitingLinks] = h.awaitingLinks
	steps[conversation.PhaseAwaitingBroadcastText] = h.awaitingBroadcastText
	return steps
}

// Expired tells the user their flow timed out
func (h *Handlers) Expired(ctx context.Context, f conversation.Flow) {
	text := expiredText(f.Kind)
	if text == "" || f.Chat == 0 {
		return
	}
	h.send(ctx, f.Chat, 0, text)
}

// reply answers the input message
func (h *Handlers) reply(ctx context.Context, in conversation.Input, text string) {
	h.send(ctx, in.Chat, in.MessageID, text)
}

func (h *Handlers) send(ctx context.Context, chat int64, replyTo int, text string) {
	var opts *gateway.SendOptions
	if replyTo != 0 {
		opts = &gateway.SendOptions{ReplyTo: replyTo}
	}
	if _, err := h.gw.SendText(ctx, chat, text, opts); err != nil {
		h.logger.Error("Failed to send reply", zap.Int64("chat_id", chat), zap.Error(err))
	}
}
