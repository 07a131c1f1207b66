package middleware

import (
	"context"

	"chatagent/internal/dispatch"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

const contextKey = "ctx"

// Ordered creates middleware that hands every update to d, keyed by the
// sender, so one user's updates are handled in arrival order while other
// users proceed concurrently. The bot must poll synchronously for the
// arrival order to be the submission order.
func Ordered(d *dispatch.Dispatcher, onError func(error, tele.Context), logger *zap.Logger) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			key, ok := orderKey(c)
			if !ok {
				return next(c)
			}

			detached := detach(c)
			err := d.Submit(key, func(ctx context.Context) {
				detached.Set(contextKey, ctx)
				if err := next(detached); err != nil {
					onError(err, detached)
				}
			})
			if err != nil {
				logger.Warn("Update dropped", zap.Int64("key", key), zap.Error(err))
			}
			return nil
		}
	}
}

// Context returns the context the update is handled under
func Context(c tele.Context) context.Context {
	if ctx, ok := c.Get(contextKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

func orderKey(c tele.Context) (int64, bool) {
	if sender := c.Sender(); sender != nil {
		return sender.ID, true
	}
	if chat := c.Chat(); chat != nil {
		return chat.ID, true
	}
	return 0, false
}

// detach copies the message so a handler running later does not see
// telebot reuse it, as it does for every user of a multi-user join
func detach(c tele.Context) tele.Context {
	u := c.Update()
	if u.Message != nil {
		m := *u.Message
		if m.UserJoined != nil {
			joined := *m.UserJoined
			m.UserJoined = &joined
		}
		u.Message = &m
	}
	return c.Bot().NewContext(u)
}
