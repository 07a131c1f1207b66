package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chatagent/internal/bulk"
	"chatagent/internal/conversation"
	"chatagent/internal/domain"
	"chatagent/internal/flow"
	"chatagent/internal/gateway"
	"chatagent/internal/middleware"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// handleStart handles /start command
func (h *Handler) handleStart(c tele.Context) error {
	return h.start(middleware.Context(c), profileFromUser(c.Sender()), c.Chat().ID)
}

func (h *Handler) start(ctx context.Context, p domain.UserProfile, chat int64) error {
	if err := h.profiles.Record(ctx, p); err != nil {
		h.logger.Error("Failed to save user", zap.Int64("user_id", p.ID), zap.Error(err))
	}

	opts := &gateway.SendOptions{Keyboard: startKeyboard(h.opts.JoinLinks)}
	if h.opts.StartImage != "" {
		_, err := h.gw.SendPhoto(ctx, chat, h.opts.StartImage, TextWelcome, opts)
		if err == nil {
			return nil
		}
		h.logger.Warn("Start image not sent", zap.Int64("user_id", p.ID), zap.Error(err))
	}
	_, err := h.gw.SendText(ctx, chat, TextWelcome, opts)
	return err
}

// startKeyboard has one link button per join link, two per row
func startKeyboard(links []string) gateway.Keyboard {
	var (
		kb  gateway.Keyboard
		row []gateway.Button
	)
	for _, link := range links {
		url, ok := linkURL(link)
		if !ok {
			continue
		}
		row = append(row, gateway.Button{
			Text: fmt.Sprintf("Join Group %d", countButtons(kb)+len(row)+1),
			URL:  url,
		})
		if len(row) == 2 {
			kb = append(kb, row)
			row = nil
		}
	}
	if len(row) > 0 {
		kb = append(kb, row)
	}
	return kb
}

func countButtons(kb gateway.Keyboard) int {
	n := 0
	for _, row := range kb {
		n += len(row)
	}
	return n
}

// linkURL turns a join link into an https URL. Numeric chat IDs have none.
func linkURL(link string) (string, bool) {
	link = strings.TrimSpace(link)
	switch {
	case link == "":
		return "", false
	case strings.HasPrefix(link, "https://"):
		return link, true
	case strings.HasPrefix(link, "http://"):
		return "https://" + strings.TrimPrefix(link, "http://"), true
	case strings.HasPrefix(link, "t.me/"):
		return "https://" + link, true
	case strings.HasPrefix(link, "@"):
		return "https://t.me/" + strings.TrimPrefix(link, "@"), true
	}
	if _, err := strconv.ParseInt(link, 10, 64); err == nil {
		return "", false
	}
	return "https://t.me/" + link, true
}

// handleLogin handles /login command
func (h *Handler) handleLogin(c tele.Context) error {
	return h.login(middleware.Context(c), c.Sender().ID, c.Chat().ID, c.Message().ID)
}

// login starts the code exchange unless the user already has a session
func (h *Handler) login(ctx context.Context, user, chat int64, replyTo int) error {
	authenticated, err := h.profiles.IsAuthenticated(ctx, user)
	if err != nil {
		h.logger.Warn("Failed to check session", zap.Int64("user_id", user), zap.Error(err))
	}
	if authenticated {
		return h.send(ctx, chat, replyTo, TextAlreadyLoggedIn, nil)
	}
	return h.beginFlow(ctx, user, chat, replyTo, conversation.KindLogin, conversation.SettingNone)
}

// handleBatch handles /batch command
func (h *Handler) handleBatch(c tele.Context) error {
	return h.beginBulk(middleware.Context(c), c.Sender().ID, c.Chat().ID, c.Message().ID, conversation.KindBatch)
}

// handleBroadcast handles /broadcast command
func (h *Handler) handleBroadcast(c tele.Context) error {
	return h.beginBulk(middleware.Context(c), c.Sender().ID, c.Chat().ID, c.Message().ID, conversation.KindBroadcast)
}

// beginBulk refuses to collect input while the user's previous job runs
func (h *Handler) beginBulk(ctx context.Context, user, chat int64, replyTo int, kind conversation.Kind) error {
	if _, running := h.jobs.Running(user); running {
		return h.send(ctx, chat, replyTo, flow.TextJobRunning, nil)
	}
	return h.beginFlow(ctx, user, chat, replyTo, kind, conversation.SettingNone)
}

// beginFlow starts a flow and sends its prompt. A user already in a flow
// is told to finish it first.
func (h *Handler) beginFlow(ctx context.Context, user, chat int64, replyTo int, kind conversation.Kind, setting conversation.Setting) error {
	handle, err := h.machine.Begin(user, kind, conversation.Params{Chat: chat, Setting: setting})
	var active *conversation.AlreadyActiveError
	if errors.As(err, &active) {
		text := fmt.Sprintf(flow.TextFlowBusy, active.Active)
		if active.Active == conversation.KindLogin && kind == conversation.KindLogin {
			text = flow.TextLoginInProgress
		}
		return h.send(ctx, chat, replyTo, text, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to begin %s: %w", kind, err)
	}

	if err := h.send(ctx, chat, replyTo, flow.Prompt(kind, setting), cancelKeyboard()); err != nil {
		// Nobody was asked, so nobody will answer
		h.machine.Cancel(user)
		return err
	}

	h.logger.Info("Flow started",
		zap.Int64("user_id", user),
		zap.String("kind", kind.String()),
		zap.Duration("timeout", h.machine.Timeout()),
	)
	go h.watchFlow(context.WithoutCancel(ctx), handle, time.Now())
	return nil
}

// watchFlow logs how a started flow ended. Every handle resolves, at the
// latest when the machine closes.
func (h *Handler) watchFlow(ctx context.Context, handle *conversation.Handle, started time.Time) {
	outcome, err := handle.Wait(ctx)
	if err != nil {
		return
	}
	h.logger.Info("Flow finished",
		zap.Int64("user_id", handle.User),
		zap.String("kind", handle.Kind.String()),
		zap.String("outcome", outcome.String()),
		zap.Duration("duration", time.Since(started)),
	)
}

// handleLogout handles /logout command
func (h *Handler) handleLogout(c tele.Context) error {
	return h.logout(middleware.Context(c), c.Sender().ID, c.Chat().ID, c.Message().ID)
}

func (h *Handler) logout(ctx context.Context, user, chat int64, replyTo int) error {
	if f, ok := h.machine.Active(user); ok && h.machine.Cancel(user) {
		return h.send(ctx, chat, replyTo, fmt.Sprintf(TextFlowCancelled, f.Kind), nil)
	}

	changed, err := h.profiles.Logout(ctx, user)
	switch {
	case err != nil:
		h.logger.Error("Error during logout", zap.Int64("user_id", user), zap.Error(err))
		return h.send(ctx, chat, replyTo, TextLogoutFailed, nil)
	case !changed:
		return h.send(ctx, chat, replyTo, TextAlreadyLoggedOut, nil)
	}
	return h.send(ctx, chat, replyTo, TextLoggedOut, nil)
}

// handleCancel handles /cancel command and the cancel button
func (h *Handler) handleCancel(c tele.Context) error {
	if c.Callback() != nil {
		if err := c.Respond(); err != nil {
			h.logger.Warn("Failed to acknowledge callback", zap.Error(err))
		}
	}
	return h.cancel(middleware.Context(c), c.Sender().ID, chatID(c), replyID(c))
}

func (h *Handler) cancel(ctx context.Context, user, chat int64, replyTo int) error {
	if h.machine.Cancel(user) {
		return h.send(ctx, chat, replyTo, TextCancelled, nil)
	}
	return h.send(ctx, chat, replyTo, TextNothingToCancel, nil)
}

// handleCancelBatch handles /cancelbatch command
func (h *Handler) handleCancelBatch(c tele.Context) error {
	return h.cancelBatch(middleware.Context(c), c.Sender().ID, c.Chat().ID, c.Message().ID)
}

// cancelBatch stops the user's running job, or a bulk flow still waiting
// for its input. The job reports its own partial counts when it stops.
func (h *Handler) cancelBatch(ctx context.Context, user, chat int64, replyTo int) error {
	stopped := h.jobs.Cancel(user)
	if f, ok := h.machine.Active(user); ok && (f.Kind == conversation.KindBatch || f.Kind == conversation.KindBroadcast) {
		stopped = h.machine.Cancel(user) || stopped
	}
	if !stopped {
		return h.send(ctx, chat, replyTo, TextNoBatch, nil)
	}
	return h.send(ctx, chat, replyTo, TextBatchCancelled, nil)
}

// handleJoin handles /join command
func (h *Handler) handleJoin(c tele.Context) error {
	return h.join(middleware.Context(c), c.Chat().ID, c.Message().ID)
}

// join joins the configured links
func (h *Handler) join(ctx context.Context, chat int64, replyTo int) error {
	if len(h.opts.JoinLinks) == 0 {
		return h.send(ctx, chat, replyTo, TextNoJoinLinks, nil)
	}

	result, err := bulk.Run(ctx, h.joins, h.opts.JoinLinks, h.gw.JoinChannel)
	if err != nil {
		return h.send(ctx, chat, replyTo, fmt.Sprintf(TextJoinFailed, err), nil)
	}
	if result.Failed > 0 || result.Cancelled {
		return h.send(ctx, chat, replyTo, fmt.Sprintf(TextJoinFailed, failureSummary(result)), nil)
	}
	return h.send(ctx, chat, replyTo, TextJoinedLinks, nil)
}

func failureSummary(result domain.BulkResult) string {
	if len(result.Failures) == 0 {
		return "cancelled"
	}
	parts := make([]string, 0, len(result.Failures))
	for _, f := range result.Failures {
		parts = append(parts, f.Item+": "+f.Reason)
	}
	return strings.Join(parts, "; ")
}

// handleSettings handles /settings command
func (h *Handler) handleSettings(c tele.Context) error {
	return h.send(middleware.Context(c), c.Chat().ID, c.Message().ID, TextSettingsMenu, settingsKeyboard())
}

// handleTest handles /test command
func (h *Handler) handleTest(c tele.Context) error {
	return h.test(middleware.Context(c), c.Chat().ID, c.Message().ID)
}

func (h *Handler) test(ctx context.Context, chat int64, msgID int) error {
	if err := h.send(ctx, chat, msgID, TextCommandReceived, nil); err != nil {
		return err
	}
	return h.gw.React(ctx, gateway.MessageRef{Chat: chat, ID: msgID}, ReactionReceived)
}
