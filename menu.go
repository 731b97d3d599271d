package parley

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/expect"
	"github.com/aretw0/parley/pkg/pipeline"
)

// Menu defaults.
const (
	MenuKey             = "menu"
	DefaultMenuHeader   = "Please choose an option:"
	DefaultMenuFooter   = "Reply with the number of your choice."
	DefaultNumberFormat = "{n}. {option}"
	DefaultMenuTimeout  = 5 * time.Minute
	MinMenuTimeout      = 5 * time.Second
	MaxMenuTimeout      = time.Hour
)

// Menu is a numbered list of options sent as one SMS. The reply is captured
// by a choice expectation registered under MenuKey.
type Menu struct {
	Options []string

	// Header and Footer default to DefaultMenuHeader and DefaultMenuFooter
	// unless omitted explicitly.
	Header     string
	Footer     string
	OmitHeader bool
	OmitFooter bool

	// NumberFormat renders each line; {n} is the 1-based number and {option}
	// the option text.
	NumberFormat string

	// Timeout is both the expectation TTL and the wait limit.
	Timeout time.Duration

	// Wait blocks SendMenu until a reply arrives or Timeout elapses.
	Wait bool
}

// MenuResponse is the outcome of a waited menu.
type MenuResponse struct {
	Option      int    `json:"option"`
	OptionIndex int    `json:"option_index"`
	Value       string `json:"value"`
	RawText     string `json:"raw_text"`
	Phone       string `json:"phone"`
	ContactID   string `json:"contact_id,omitempty"`
	TimedOut    bool   `json:"timed_out"`
}

// ParseOptions splits multi-line text into options, one per non-blank line.
func ParseOptions(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Text renders the menu body.
func (m Menu) Text() string {
	format := m.NumberFormat
	if format == "" {
		format = DefaultNumberFormat
	}
	header, footer := m.Header, m.Footer
	if header == "" && !m.OmitHeader {
		header = DefaultMenuHeader
	}
	if footer == "" && !m.OmitFooter {
		footer = DefaultMenuFooter
	}

	var lines []string
	if header != "" && !m.OmitHeader {
		lines = append(lines, header, "")
	}
	for i, opt := range m.Options {
		r := strings.NewReplacer("{n}", strconv.Itoa(i+1), "{option}", opt)
		lines = append(lines, r.Replace(format))
	}
	if footer != "" && !m.OmitFooter {
		lines = append(lines, "", footer)
	}
	return strings.Join(lines, "\n")
}

func (m Menu) timeout() (time.Duration, error) {
	t := m.Timeout
	if t == 0 {
		t = DefaultMenuTimeout
	}
	if t < MinMenuTimeout || t > MaxMenuTimeout {
		return 0, fmt.Errorf("%w: menu timeout must be between %s and %s, got %s", domain.ErrInvalidTTL, MinMenuTimeout, MaxMenuTimeout, t)
	}
	return t, nil
}

// SendMenu sends the menu and registers the choice expectation. The
// expectation is registered only after the send succeeded. Without Wait the
// returned response is nil.
func (e *Engine) SendMenu(ctx context.Context, target string, m Menu) (*MenuResponse, error) {
	if len(m.Options) == 0 {
		return nil, fmt.Errorf("%w: menu needs at least one option", domain.ErrInvalidExpectation)
	}
	timeout, err := m.timeout()
	if err != nil {
		return nil, err
	}
	ref, err := e.Resolve(target)
	if err != nil {
		return nil, err
	}
	prompt := expect.Prompt{
		Key:     MenuKey,
		Kind:    domain.KindChoice,
		Grammar: domain.Grammar{Options: m.Options},
		TTL:     timeout,
	}
	if err := prompt.Validate(); err != nil {
		return nil, err
	}

	var replies <-chan domain.Event
	if m.Wait {
		ch, cancel := e.subscribeReply(ref, MenuKey)
		defer cancel()
		replies = ch
	}

	evs, err := e.pipeline.Send(ctx, ref, pipeline.Content{Text: m.Text()})
	e.broker.Publish(ctx, evs)
	if err != nil {
		return nil, err
	}
	if _, err := e.expect.Register(ctx, ref, prompt); err != nil {
		return nil, err
	}
	e.logger.Info("Menu sent", "contact_id", ref.ContactID, "options", len(m.Options))

	if !m.Wait {
		return nil, nil
	}

	rp, err := awaitReply(ctx, replies, timeout)
	if err != nil {
		return nil, err
	}
	if rp == nil {
		e.logger.Info("Menu response timed out", "contact_id", ref.ContactID, "timeout", timeout)
		return &MenuResponse{OptionIndex: -1, Phone: ref.Phone, ContactID: ref.ContactID, TimedOut: true}, nil
	}

	resp := &MenuResponse{
		RawText:   rp.RawText,
		Phone:     rp.Phone,
		ContactID: rp.ContactID,
	}
	if rp.OptionIndex != nil {
		resp.OptionIndex = *rp.OptionIndex
		resp.Option = *rp.OptionIndex + 1
	}
	if v, ok := rp.Value.(string); ok {
		resp.Value = v
	}
	return resp, nil
}
