package middleware

import (
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// TextAdminOnly is the reply to a restricted command from a non-admin
const TextAdminOnly = "This command is only available to the bot admins."

// AdminOnly creates middleware that lets only admins through.
// An empty admin list lets everyone through.
func AdminOnly(admins []int64, logger *zap.Logger) tele.MiddlewareFunc {
	allowed := make(map[int64]struct{}, len(admins))
	for _, id := range admins {
		allowed[id] = struct{}{}
	}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if len(allowed) == 0 {
				return next(c)
			}

			sender := c.Sender()
			if sender == nil {
				return nil
			}
			if _, ok := allowed[sender.ID]; !ok {
				logger.Warn("Restricted command rejected",
					zap.Int64("user_id", sender.ID),
					zap.String("text", c.Text()),
				)
				return c.Reply(TextAdminOnly)
			}

			// User is an admin, continue
			return next(c)
		}
	}
}
