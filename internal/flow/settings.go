package flow

import (
	"context"
	"errors"
	"fmt"

	"chatagent/internal/conversation"
	"chatagent/internal/service"

	"go.uber.org/zap"
)

// The settings sub-flows take exactly one input. Invalid input gets a
// validation reply and still ends the flow.

func (h *Handlers) awaitingThumbnail(ctx context.Context, f conversation.Flow, in conversation.Input) conversation.Step {
	err := h.settings.ChangeThumbnail(ctx, f.User, in.PhotoID)
	switch {
	case errors.Is(err, service.ErrNoPhoto):
		h.reply(ctx, in, TextNoThumbnail)
		return conversation.Complete()
	case err != nil:
		return h.settingsFailed(ctx, f, in, err)
	}

	h.reply(ctx, in, TextThumbnailUpdated)
	return conversation.Complete()
}

func (h *Handlers) awaitingReplacement(ctx context.Context, f conversation.Flow, in conversation.Input) conversation.Step {
	rule, err := h.settings.ReplaceWord(ctx, f.User, in.Text)
	switch {
	case errors.Is(err, service.ErrInvalidFormat):
		h.reply(ctx, in, TextInvalidFormat)
		return conversation.Complete()
	case err != nil:
		return h.settingsFailed(ctx, f, in, err)
	}

	h.reply(ctx, in, fmt.Sprintf(TextReplaced, rule.Word, rule.Replacement))
	return conversation.Complete()
}

func (h *Handlers) awaitingDeletion(ctx context.Context, f conversation.Flow, in conversation.Input) conversation.Step {
	word, err := h.settings.DeleteWord(ctx, f.User, in.Text)
	switch {
	case errors.Is(err, service.ErrInvalidWord):
		h.reply(ctx, in, TextInvalidWord)
		return conversation.Complete()
	case err != nil:
		return h.settingsFailed(ctx, f, in, err)
	}

	h.reply(ctx, in, fmt.Sprintf(TextWordRemoved, word))
	return conversation.Complete()
}

func (h *Handlers) settingsFailed(ctx context.Context, f conversation.Flow, in conversation.Input, err error) conversation.Step {
	h.logger.Error("Failed to save settings",
		zap.Int64("user_id", f.User),
		zap.String("setting", f.Setting.String()),
		zap.Error(err),
	)
	h.reply(ctx, in, TextSettingsFailed)
	return conversation.Abort(f.Setting.String() + ": " + err.Error())
}
