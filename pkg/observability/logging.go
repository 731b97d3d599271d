package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/parley/pkg/domain"
)

// LogHooks logs every lifecycle event at info level, skips at debug and
// failed polls at warn.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnMessageReceived: func(ctx context.Context, e *domain.MessageReceived) {
			logger.InfoContext(ctx, "message_received",
				"message_id", e.MessageID,
				"phone", e.Phone,
				"contact_id", e.ContactID,
			)
		},
		OnReplyParsed: func(ctx context.Context, e *domain.ReplyParsed) {
			logger.InfoContext(ctx, "reply_parsed",
				"key", e.Key,
				"kind", e.Kind,
				"response_number", e.ResponseNumber,
				"contact_id", e.ContactID,
			)
		},
		OnMessageSent: func(ctx context.Context, e *domain.MessageSent) {
			logger.InfoContext(ctx, "message_sent",
				"channel", e.Channel,
				"phone", e.Phone,
				"message_id", e.MessageID,
			)
		},
		OnExpectationExpired: func(ctx context.Context, e *domain.ExpectationExpired) {
			logger.InfoContext(ctx, "expectation_expired", "key", e.Key, "phone", e.Phone)
		},
		OnMessageSkipped: func(ctx context.Context, m domain.InboundMessage, reason domain.SkipReason) {
			logger.DebugContext(ctx, "message_skipped", "message_id", m.ID, "phone", m.Phone, "reason", reason)
		},
		OnPollCompleted: func(ctx context.Context, r *domain.PollReport) {
			if r.Err != nil {
				logger.WarnContext(ctx, "poll_failed", "err", r.Err, "duration", r.Duration)
				return
			}
			logger.DebugContext(ctx, "poll_completed",
				"fetched", r.Fetched,
				"received", r.Received,
				"parsed", r.Parsed,
				"expired", r.Expired,
				"duration", r.Duration,
			)
		},
	}
}
