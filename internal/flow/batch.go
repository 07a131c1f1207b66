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

// awaitingLinks collects the links and hands them to a background job,
// so the user's queue stays free for /cancelbatch while links are joined
func (h *Handlers) awaitingLinks(ctx context.Context, f conversation.Flow, in conversation.Input) conversation.Step {
	links := strings.Fields(in.Text)
	if len(links) == 0 {
		h.reply(ctx, in, TextNoLinks)
		return conversation.Complete()
	}
	if err := h.joins.Check(len(links)); err != nil {
		h.reply(ctx, in, fmt.Sprintf(TextTooManyLinks, h.joins.MaxItems()))
		return conversation.Complete()
	}

	// The job starts sending once the step has answered
	announced := make(chan struct{})
	defer close(announced)
	_, err := h.jobs.Start(f.User, "batch", func(jobCtx context.Context) {
		<-announced
		result, err := bulk.Run(jobCtx, h.joins, links, h.gw.JoinChannel)
		if err != nil {
			h.logger.Error("Batch rejected", zap.Int64("user_id", f.User), zap.Error(err))
		}
		// The job context may be cancelled by now, the summary must still go out
		h.reply(context.WithoutCancel(jobCtx), in, batchSummary(result, len(links)))
	})
	if errors.Is(err, bulk.ErrJobRunning) {
		h.reply(ctx, in, TextJobRunning)
		return conversation.Complete()
	}
	if err != nil {
		h.logger.Error("Failed to start batch", zap.Int64("user_id", f.User), zap.Error(err))
		h.reply(ctx, in, TextNoLinks)
		return conversation.Abort("start batch: " + err.Error())
	}

	h.reply(ctx, in, fmt.Sprintf(TextBatchStarted, len(links)))
	return conversation.Complete()
}

func batchSummary(result domain.BulkResult, total int) string {
	if result.Cancelled {
		return fmt.Sprintf(TextBatchCancelled, result.Succeeded, result.Failed, total-result.Attempted)
	}
	return fmt.Sprintf(TextBatchFinished, result.Succeeded, result.Failed)
}
