package flow

import (
	"context"
	"errors"
	"strings"

	"chatagent/internal/authcode"
	"chatagent/internal/conversation"
	"chatagent/internal/domain"
	"chatagent/internal/gateway"

	"go.uber.org/zap"
)

// awaitingPhone requests a login code for the phone number in the input.
// Text that is not a phone number re-prompts without leaving the phase.
func (h *Handlers) awaitingPhone(ctx context.Context, f conversation.Flow, in conversation.Input) conversation.Step {
	phone, ok := domain.NormalizePhone(in.Text)
	if !ok {
		h.reply(ctx, in, TextAskPhone)
		return conversation.Advance(conversation.PhaseAwaitingPhone)
	}

	handle, err := h.gw.RequestAuthCode(ctx, phone)
	if err != nil {
		h.logger.Error("Error sending code", zap.Int64("user_id", f.User), zap.Error(err))
		if errors.Is(err, authcode.ErrUnknownPhone) {
			h.reply(ctx, in, TextUnknownPhone)
		} else {
			h.reply(ctx, in, TextLoginFailed)
		}
		return conversation.Abort("request code: " + err.Error())
	}

	h.reply(ctx, in, TextAskCode)
	return conversation.AdvanceWith(conversation.PhaseAwaitingCode, &conversation.Credentials{
		Phone:      phone,
		CodeHandle: handle,
	})
}

// awaitingCode exchanges the code. Every outcome ends the flow.
func (h *Handlers) awaitingCode(ctx context.Context, f conversation.Flow, in conversation.Input) conversation.Step {
	if f.Credentials == nil {
		h.reply(ctx, in, TextLoginFailed)
		return conversation.Abort("missing credentials")
	}

	code := strings.Join(strings.Fields(in.Text), "")
	err := h.gw.ExchangeAuthCode(ctx, f.Credentials.Phone, f.Credentials.CodeHandle, code)
	switch {
	case errors.Is(err, gateway.ErrInvalidCode):
		h.reply(ctx, in, TextInvalidCode)
		return conversation.Abort("invalid code")
	case errors.Is(err, gateway.ErrTwoFactorRequired):
		h.reply(ctx, in, TextTwoFactor)
		return conversation.Abort("two-factor required")
	case err != nil:
		h.logger.Error("Error signing in", zap.Int64("user_id", f.User), zap.Error(err))
		h.reply(ctx, in, TextLoginFailed)
		return conversation.Abort("exchange code: " + err.Error())
	}

	profile := in.Sender
	if profile.ID == 0 {
		profile.ID = f.User
	}
	if err := h.profiles.RecordLogin(ctx, profile); err != nil {
		h.logger.Error("Failed to record login", zap.Int64("user_id", f.User), zap.Error(err))
		h.reply(ctx, in, TextLoginFailed)
		return conversation.Abort("record login: " + err.Error())
	}

	h.reply(ctx, in, TextLoginSucceeded)
	return conversation.Complete()
}
