package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatagent/internal/bulk"
	"chatagent/internal/conversation"
	"chatagent/internal/domain"

	"go.uber.org/zap"
)

// broadcast is a message prepared for every known user
type broadcast struct {
	text  string
	photo string
}

// awaitingBroadcastText applies the sender's word rules and thumbnail to
// the message and sends it to every known user in a background job
func (h *Handlers) awaitingBroadcastText(ctx context.Context, f conversation.Flow, in conversation.Input) conversation.Step {
	if strings.TrimSpace(in.Text) == "" {
		h.reply(ctx, in, TextNoBroadcast)
		return conversation.Complete()
	}

	msg := broadcast{text: in.Text}
	if composed, err := h.settings.Compose(ctx, f.User, in.Text); err != nil {
		h.logger.Warn("Word rules not applied", zap.Int64("user_id", f.User), zap.Error(err))
	} else {
		msg.text = composed
	}
	if photo, err := h.settings.Thumbnail(ctx, f.User); err != nil {
		h.logger.Warn("Thumbnail not loaded", zap.Int64("user_id", f.User), zap.Error(err))
	} else {
		msg.photo = photo
	}

	// The job starts sending once the step has answered
	announced := make(chan struct{})
	defer close(announced)
	_, err := h.jobs.Start(f.User, "broadcast", func(jobCtx context.Context) {
		<-announced
		result, total := h.runBroadcast(jobCtx, msg)
		text := TextBroadcastSent
		if result.Cancelled {
			text = TextBroadcastStopped
		}
		h.reply(context.WithoutCancel(jobCtx), in, fmt.Sprintf(text, result.Succeeded, result.Failed, total))
	})
	if errors.Is(err, bulk.ErrJobRunning) {
		h.reply(ctx, in, TextJobRunning)
		return conversation.Complete()
	}
	if err != nil {
		h.logger.Error("Failed to start broadcast", zap.Int64("user_id", f.User), zap.Error(err))
		h.reply(ctx, in, TextNoBroadcast)
		return conversation.Abort("start broadcast: " + err.Error())
	}

	h.reply(ctx, in, TextBroadcastStarted)
	return conversation.Complete()
}

// runBroadcast walks the user list lazily and sends in runs of at most
// MaxItems recipients. It returns the aggregate result and the user count.
func (h *Handlers) runBroadcast(ctx context.Context, msg broadcast) (domain.BulkResult, int) {
	total, err := h.profiles.Count(ctx)
	if err != nil {
		h.logger.Warn("Failed to count users", zap.Error(err))
	}

	send := func(ctx context.Context, chat int64) error {
		if msg.photo != "" {
			_, err := h.gw.SendPhoto(ctx, chat, msg.photo, msg.text, nil)
			return err
		}
		_, err := h.gw.SendText(ctx, chat, msg.text, nil)
		return err
	}

	var (
		result domain.BulkResult
		seen   int
		batch  = make([]int64, 0, h.broadcasts.MaxItems())
	)
	flush := func() {
		res, err := bulk.Run(ctx, h.broadcasts, batch, send)
		if err != nil {
			h.logger.Error("Broadcast run rejected", zap.Error(err))
		}
		result.Add(res)
		batch = batch[:0]
	}

	for p, err := range h.profiles.Recipients(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				result.Cancelled = true
			} else {
				h.logger.Error("Failed to list users", zap.Error(err))
			}
			break
		}
		seen++
		batch = append(batch, p.ID)
		if len(batch) == cap(batch) {
			flush()
			if result.Cancelled {
				break
			}
		}
	}
	if len(batch) > 0 && !result.Cancelled {
		flush()
	}

	if total < seen {
		total = seen
	}
	return result, total
}
