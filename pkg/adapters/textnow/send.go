package textnow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// Send delivers one outbound part. Images and audio go through the
// three-step attachment flow: request an upload URL, PUT the bytes, then
// post the attachment message.
func (c *Client) Send(ctx context.Context, msg domain.OutboundMessage) (domain.SendResult, error) {
	var (
		res domain.SendResult
		err error
	)
	switch msg.Channel {
	case domain.ChannelSMS:
		res, err = c.sendText(ctx, msg.To, msg.Text)
	case domain.ChannelMMS:
		res, err = c.sendAttachment(ctx, msg.To, msg.Text, msg.Image, "images")
	case domain.ChannelVoice:
		res, err = c.sendAttachment(ctx, msg.To, "", msg.Audio, "audio")
	default:
		err = fmt.Errorf("unsupported channel %q", msg.Channel)
	}
	if err != nil {
		return domain.SendResult{}, sendError(msg.Channel, err)
	}
	c.logger.Debug("TextNow message sent", "channel", msg.Channel, "phone", msg.To)
	return res, nil
}

var errNoAttachment = errors.New("attachment is empty")

func sendError(ch domain.Channel, err error) error {
	var se *domain.SendError
	if errors.As(err, &se) {
		return se
	}
	reason := "request failed"
	var st *statusError
	switch {
	case errors.Is(err, errNoAttachment):
		reason = "attachment is empty"
	case errors.As(err, &st):
		reason = "provider returned " + strconv.Itoa(st.Status)
	case errors.Is(err, domain.ErrTransportUnavailable):
		reason = "provider unreachable"
	}
	return &domain.SendError{Channel: ch, Reason: reason, Err: err}
}

type sentMessage struct {
	ID any `json:"id"`
}

func (c *Client) sendText(ctx context.Context, to, text string) (domain.SendResult, error) {
	creds := c.session()
	body, err := jsonBody(map[string]any{
		"contact_value":     to,
		"contact_type":      contactTypePhone,
		"message_direction": directionOutgoing,
		"message":           text,
	})
	if err != nil {
		return domain.SendResult{}, err
	}
	req, err := c.newRequest(ctx, creds, http.MethodPost, c.userURL(creds, "/messages"), body, "application/json")
	if err != nil {
		return domain.SendResult{}, err
	}
	var out sentMessage
	if err := c.do(req, &out); err != nil {
		return domain.SendResult{}, err
	}
	return domain.SendResult{MessageID: asString(out.ID)}, nil
}

type uploadTarget struct {
	MediaURL string `json:"media_url"`
}

func (c *Client) sendAttachment(ctx context.Context, to, caption string, att *domain.Attachment, mediaType string) (domain.SendResult, error) {
	if att == nil || len(att.Data) == 0 {
		return domain.SendResult{}, errNoAttachment
	}
	creds := c.session()

	// 1. Upload URL
	body, err := jsonBody(map[string]any{"file_name": att.FileName, "file_size": len(att.Data)})
	if err != nil {
		return domain.SendResult{}, err
	}
	req, err := c.newRequest(ctx, creds, http.MethodPost, c.baseURL+"/api/v3/attachment_url", body, "application/json")
	if err != nil {
		return domain.SendResult{}, err
	}
	var target uploadTarget
	if err := c.do(req, &target); err != nil {
		return domain.SendResult{}, fmt.Errorf("attachment url: %w", err)
	}
	if target.MediaURL == "" {
		return domain.SendResult{}, fmt.Errorf("%w: no media_url in upload response", domain.ErrTransportUnavailable)
	}

	// 2. Upload. The media URL is pre-signed, so no session cookies.
	put, err := http.NewRequestWithContext(ctx, http.MethodPut, target.MediaURL, bytes.NewReader(att.Data))
	if err != nil {
		return domain.SendResult{}, err
	}
	put.Header.Set("Content-Type", ContentType(att))
	if err := c.do(put, nil, http.StatusOK, http.StatusCreated, http.StatusNoContent); err != nil {
		return domain.SendResult{}, fmt.Errorf("upload: %w", err)
	}

	// 3. Attachment message
	form := url.Values{
		"contact_value":  {to},
		"contact_type":   {strconv.Itoa(contactTypePhone)},
		"attachment_url": {target.MediaURL},
		"message_type":   {strconv.Itoa(messageTypeMedia)},
		"media_type":     {mediaType},
	}
	if caption != "" {
		form.Set("message", caption)
	}
	req, err = c.newRequest(ctx, creds, http.MethodPost, c.baseURL+"/api/v3/send_attachment",
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return domain.SendResult{}, err
	}
	var out sentMessage
	if err := c.do(req, &out); err != nil {
		return domain.SendResult{}, fmt.Errorf("send attachment: %w", err)
	}
	return domain.SendResult{MessageID: asString(out.ID)}, nil
}

// ContentType returns the attachment's declared type, or one derived from
// its file extension.
func ContentType(att *domain.Attachment) string {
	if att.ContentType != "" {
		return att.ContentType
	}
	name := strings.ToLower(att.FileName)
	switch {
	case strings.HasSuffix(name, ".png"):
		return "image/png"
	case strings.HasSuffix(name, ".gif"):
		return "image/gif"
	case strings.HasSuffix(name, ".mp4"):
		return "video/mp4"
	case strings.HasSuffix(name, ".mp3"), strings.HasSuffix(name, ".m4a"):
		return "audio/mpeg"
	default:
		return "image/jpeg"
	}
}
