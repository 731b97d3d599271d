package textnow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/aretw0/parley/pkg/domain"
)

// FetchUnread lists the account's messages and keeps the incoming ones.
// The provider returns its whole window; deduplication happens upstream.
func (c *Client) FetchUnread(ctx context.Context) ([]domain.InboundMessage, error) {
	creds := c.session()
	q := url.Values{
		"start_message_id": {"0"},
		"direction":        {"future"},
		"page_size":        {"0"},
	}
	req, err := c.newRequest(ctx, creds, http.MethodGet, c.userURL(creds, "/messages")+"?"+q.Encode(), nil, "")
	if err != nil {
		return nil, err
	}

	var payload any
	if err := c.do(req, &payload); err != nil {
		return nil, fmt.Errorf("textnow fetch: %w", err)
	}

	raw := messageList(payload)
	msgs := make([]domain.InboundMessage, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if dir, ok := asInt(m["message_direction"]); !ok || dir != directionIncoming {
			continue
		}
		msgs = append(msgs, domain.InboundMessage{
			ID:         asString(m["id"]),
			Phone:      asString(m["contact_value"]),
			Text:       asString(m["message"]),
			ReceivedAt: timestamp(m),
		})
	}
	c.logger.Debug("Fetched TextNow messages", "total", len(raw), "incoming", len(msgs))
	return msgs, nil
}

// messageList accepts a bare list or a wrapper object.
func messageList(payload any) []any {
	switch v := payload.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range []string{"messages", "data", "result"} {
			if list, ok := v[key].([]any); ok && len(list) > 0 {
				return list
			}
		}
	}
	return nil
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	case string:
		n, err := json.Number(x).Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

func timestamp(m map[string]any) time.Time {
	for _, key := range []string{"timestamp", "date"} {
		s := asString(m[key])
		if s == "" {
			continue
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
