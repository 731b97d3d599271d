package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/parley/pkg/domain"
)

// Content is what a single Send delivers. At least one part is required.
type Content struct {
	Text  string
	Image *domain.Attachment
	Audio *domain.Attachment
}

// Empty reports whether no part is set.
func (c Content) Empty() bool {
	return c.Text == "" && c.Image == nil && c.Audio == nil
}

// parts orders a send as SMS, then MMS (text doubles as caption), then voice.
func (c Content) parts(to string) []domain.OutboundMessage {
	var out []domain.OutboundMessage
	if c.Text != "" {
		out = append(out, domain.OutboundMessage{To: to, Channel: domain.ChannelSMS, Text: c.Text})
	}
	if c.Image != nil {
		out = append(out, domain.OutboundMessage{To: to, Channel: domain.ChannelMMS, Text: c.Text, Image: c.Image})
	}
	if c.Audio != nil {
		out = append(out, domain.OutboundMessage{To: to, Channel: domain.ChannelVoice, Audio: c.Audio})
	}
	return out
}

// Send delivers content part by part. A failing part stops the send; parts
// already delivered stay delivered and their events are returned along with
// the error. Nothing is retried.
func (p *Pipeline) Send(ctx context.Context, ref domain.ConversationRef, c Content) ([]domain.Event, error) {
	if c.Empty() {
		return nil, domain.ErrEmptyMessage
	}

	var events []domain.Event
	for _, msg := range c.parts(ref.Phone) {
		res, err := p.transport.Send(ctx, msg)
		if err != nil {
			p.logger.Warn("Send failed", "contact_id", ref.ContactID, "phone", ref.Phone, "channel", msg.Channel, "err", err)
			return events, asSendError(msg.Channel, err)
		}

		now := p.clock()
		summary := msg.Text
		if summary == "" {
			summary = "[" + string(msg.Channel) + "]"
		}
		_, err = p.sessions.Update(ctx, ref, func(conv *domain.Conversation) error {
			conv.Activity.LastOutbound = summary
			conv.Activity.LastOutboundAt = now
			return nil
		})
		if err != nil {
			// Delivered but not recorded; report delivery anyway.
			p.logger.Warn("Failed to record outbound message", "contact_id", ref.ContactID, "err", err)
		}

		ev := &domain.MessageSent{
			EventBase: domain.EventBase{Timestamp: now, Type: domain.EventMessageSent},
			Phone:     ref.Phone,
			ContactID: ref.ContactID,
			Channel:   msg.Channel,
			MessageID: res.MessageID,
		}
		p.hooks.Emit(ctx, ev)
		events = append(events, ev)
		p.logger.Info("Message sent", "contact_id", ref.ContactID, "phone", ref.Phone, "channel", msg.Channel)
	}
	return events, nil
}

func asSendError(ch domain.Channel, err error) error {
	var se *domain.SendError
	if errors.As(err, &se) {
		if se.Channel == "" {
			se.Channel = ch
		}
		return se
	}
	return &domain.SendError{Channel: ch, Reason: fmt.Sprintf("%s delivery failed", ch), Err: err}
}
