// Package twilio implements ports.MessageTransport on the Twilio Programmable
// Messaging API. Voice parts are placed as calls that play the audio.
package twilio

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	twilio "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// DefaultLookback is how far back the first fetch reaches.
const DefaultLookback = time.Hour

// DefaultOverlap is how far behind the newest seen message the next fetch
// window starts. Messages inside the overlap are listed again and dropped by
// the pipeline's dedup window, so a message whose ingestion failed is offered
// again on the next cycle.
const DefaultOverlap = 10 * time.Minute

// DefaultPageSize is the number of records requested per page. A fetch keeps
// paging until the window is exhausted.
const DefaultPageSize = 200

// API is the subset of the Twilio REST client the transport uses.
type API interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
	ListMessage(params *twilioApi.ListMessageParams) ([]twilioApi.ApiV2010Message, error)
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
}

// MediaPublisher makes an attachment reachable by Twilio and returns its URL.
type MediaPublisher func(ctx context.Context, att *domain.Attachment) (string, error)

// Transport sends and lists messages for one Twilio number.
type Transport struct {
	api     API
	from    string
	publish MediaPublisher
	logger   *slog.Logger
	clock    func() time.Time
	pageSize int
	overlap  time.Duration

	mu    sync.Mutex
	since time.Time
}

// Option configures the Transport.
type Option func(*Transport)

// WithLogger configures a logger for the Transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithClock sets the time source for the initial fetch window.
func WithClock(clock func() time.Time) Option {
	return func(t *Transport) {
		t.clock = clock
	}
}

// WithMediaPublisher enables MMS and voice parts.
func WithMediaPublisher(p MediaPublisher) Option {
	return func(t *Transport) {
		t.publish = p
	}
}

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.pageSize = n
		}
	}
}

// WithOverlap overrides DefaultOverlap.
func WithOverlap(d time.Duration) Option {
	return func(t *Transport) {
		if d >= 0 {
			t.overlap = d
		}
	}
}

// New creates a transport authenticated with an account SID and auth token.
func New(accountSID, authToken, from string, opts ...Option) (*Transport, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("twilio: account sid, auth token and from number are required")
	}
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return NewWithAPI(rc.Api, from, opts...), nil
}

// NewWithAPI creates a transport over an existing API implementation.
func NewWithAPI(api API, from string, opts ...Option) *Transport {
	t := &Transport{
		api:      api,
		from:     from,
		logger:   logging.NewNop(),
		clock:    time.Now,
		pageSize: DefaultPageSize,
		overlap:  DefaultOverlap,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.since = t.clock().Add(-DefaultLookback)
	return t
}

// FetchUnread lists every inbound message sent to our number inside the
// current window, oldest first. The next window starts DefaultOverlap before
// the newest message seen and never moves backwards; the pipeline drops
// repeats by message SID.
func (t *Transport) FetchUnread(ctx context.Context) ([]domain.InboundMessage, error) {
	t.mu.Lock()
	since := t.since
	t.mu.Unlock()

	params := &twilioApi.ListMessageParams{}
	params.SetTo(t.from)
	params.SetDateSentAfter(since)
	params.SetPageSize(t.pageSize)

	list, err := t.api.ListMessage(params)
	if err != nil {
		return nil, fmt.Errorf("twilio fetch: %w", classify(err))
	}

	var (
		msgs   []domain.InboundMessage
		newest time.Time
	)
	for _, m := range list {
		if deref(m.Direction) != "inbound" || m.Sid == nil {
			continue
		}
		sent := parseDate(deref(m.DateSent))
		if sent.After(newest) {
			newest = sent
		}
		msgs = append(msgs, domain.InboundMessage{
			ID:         *m.Sid,
			Phone:      deref(m.From),
			Text:       deref(m.Body),
			ReceivedAt: sent,
		})
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].ReceivedAt.Before(msgs[j].ReceivedAt)
	})

	if next := newest.Add(-t.overlap); next.After(since) {
		t.mu.Lock()
		t.since = next
		t.mu.Unlock()
	}
	return msgs, nil
}

// Send delivers one outbound part.
func (t *Transport) Send(ctx context.Context, msg domain.OutboundMessage) (domain.SendResult, error) {
	switch msg.Channel {
	case domain.ChannelSMS:
		params := &twilioApi.CreateMessageParams{}
		params.SetFrom(t.from)
		params.SetTo(msg.To)
		params.SetBody(msg.Text)
		return t.createMessage(msg.Channel, params)

	case domain.ChannelMMS:
		url, err := t.mediaURL(ctx, msg.Image)
		if err != nil {
			return domain.SendResult{}, &domain.SendError{Channel: msg.Channel, Reason: "media unavailable", Err: err}
		}
		params := &twilioApi.CreateMessageParams{}
		params.SetFrom(t.from)
		params.SetTo(msg.To)
		if msg.Text != "" {
			params.SetBody(msg.Text)
		}
		params.SetMediaUrl([]string{url})
		return t.createMessage(msg.Channel, params)

	case domain.ChannelVoice:
		url, err := t.mediaURL(ctx, msg.Audio)
		if err != nil {
			return domain.SendResult{}, &domain.SendError{Channel: msg.Channel, Reason: "media unavailable", Err: err}
		}
		twiml, err := playTwiML(url)
		if err != nil {
			return domain.SendResult{}, &domain.SendError{Channel: msg.Channel, Reason: "invalid media url", Err: err}
		}
		params := &twilioApi.CreateCallParams{}
		params.SetFrom(t.from)
		params.SetTo(msg.To)
		params.SetTwiml(twiml)
		call, err := t.api.CreateCall(params)
		if err != nil {
			return domain.SendResult{}, sendError(msg.Channel, err)
		}
		return domain.SendResult{MessageID: deref(call.Sid)}, nil
	}
	return domain.SendResult{}, &domain.SendError{Channel: msg.Channel, Reason: "unsupported channel"}
}

func (t *Transport) createMessage(ch domain.Channel, params *twilioApi.CreateMessageParams) (domain.SendResult, error) {
	resp, err := t.api.CreateMessage(params)
	if err != nil {
		return domain.SendResult{}, sendError(ch, err)
	}
	sid := deref(resp.Sid)
	t.logger.Debug("Twilio message created", "channel", ch, "sid", sid)
	return domain.SendResult{MessageID: sid}, nil
}

func (t *Transport) mediaURL(ctx context.Context, att *domain.Attachment) (string, error) {
	if att == nil {
		return "", errors.New("no attachment")
	}
	if t.publish == nil {
		return "", errors.New("no media publisher configured")
	}
	return t.publish(ctx, att)
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Play    string   `xml:"Play"`
}

func playTwiML(url string) (string, error) {
	out, err := xml.Marshal(twimlResponse{Play: url})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func classify(err error) error {
	var rest *twclient.TwilioRestError
	if errors.As(err, &rest) {
		if rest.Status == http.StatusUnauthorized || rest.Status == http.StatusForbidden {
			return fmt.Errorf("%w: %v", domain.ErrAuthExpired, err)
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrTransportUnavailable, err)
}

func sendError(ch domain.Channel, err error) error {
	reason := "request failed"
	var rest *twclient.TwilioRestError
	if errors.As(err, &rest) {
		reason = fmt.Sprintf("twilio error %d", rest.Code)
	}
	return &domain.SendError{Channel: ch, Reason: reason, Err: classify(err)}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func parseDate(s string) time.Time {
	t, err := time.Parse(time.RFC1123Z, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
