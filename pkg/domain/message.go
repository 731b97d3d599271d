package domain

import "time"

// Channel identifies how an outbound part is delivered.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelMMS   Channel = "mms"
	ChannelVoice Channel = "voice"
)

// InboundMessage is a message fetched from the provider.
// It is transient: consumed once and turned into events.
type InboundMessage struct {
	ID         string    `json:"message_id"`
	Phone      string    `json:"phone"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// Attachment is binary media sent alongside (or instead of) text.
type Attachment struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// OutboundMessage is a single delivery request handed to the transport.
// Exactly one of Text, Image or Audio drives the Channel; Text may accompany an Image as caption.
type OutboundMessage struct {
	To      string      `json:"to"`
	Channel Channel     `json:"channel"`
	Text    string      `json:"text,omitempty"`
	Image   *Attachment `json:"image,omitempty"`
	Audio   *Attachment `json:"audio,omitempty"`
}

// SendResult is returned by a transport after a successful delivery.
type SendResult struct {
	MessageID string `json:"message_id,omitempty"`
}
