package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/contacts"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/expect"
	"github.com/aretw0/parley/pkg/pipeline"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mitchellh/mapstructure"
)

// Tool arguments arrive as loosely typed JSON objects.

type contactArgs struct {
	ID    string  `mapstructure:"id"`
	Name  *string `mapstructure:"name"`
	Phone *string `mapstructure:"phone"`
}

type sendArgs struct {
	Target    string `mapstructure:"target"`
	Text      string `mapstructure:"text"`
	ImagePath string `mapstructure:"image_path"`
	AudioPath string `mapstructure:"audio_path"`
}

type menuArgs struct {
	Target         string   `mapstructure:"target"`
	Options        []string `mapstructure:"options"`
	OptionsText    string   `mapstructure:"options_text"`
	Header         string   `mapstructure:"header"`
	Footer         string   `mapstructure:"footer"`
	NumberFormat   string   `mapstructure:"number_format"`
	TimeoutSeconds float64  `mapstructure:"timeout_seconds"`
	Wait           bool     `mapstructure:"wait"`
}

type expectArgs struct {
	Target           string   `mapstructure:"target"`
	Key              string   `mapstructure:"key"`
	Kind             string   `mapstructure:"kind"`
	Options          []string `mapstructure:"options"`
	Pattern          string   `mapstructure:"pattern"`
	TTLSeconds       float64  `mapstructure:"ttl_seconds"`
	KeepAfterMatch   bool     `mapstructure:"keep_after_match"`
	ResponseVariable string   `mapstructure:"response_variable"`
}

type targetArgs struct {
	Target string `mapstructure:"target"`
	Key    string `mapstructure:"key"`
}

type contextArgs struct {
	Target  string         `mapstructure:"target"`
	Values  map[string]any `mapstructure:"values"`
	Replace bool           `mapstructure:"replace"`
}

// Results

type ContactsResult struct {
	Contacts []domain.Contact `json:"contacts"`
}

type EventsResult struct {
	Events []domain.Event `json:"events"`
}

type MenuResult struct {
	Sent     bool                 `json:"sent"`
	Response *parley.MenuResponse `json:"response,omitempty"`
}

type PendingResult struct {
	Pending []domain.Expectation `json:"pending"`
}

type ClearedResult struct {
	Removed []string `json:"removed"`
}

type ContextResult struct {
	Context map[string]any `json:"context"`
}

type OKResult struct {
	OK bool `json:"ok"`
}

func decodeArgs(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// handler adapts a typed tool function to the structured tool handler.
func handler[A, R any](fn func(context.Context, A) (R, error)) func(context.Context, mcp.CallToolRequest, map[string]any) (R, error) {
	return func(ctx context.Context, _ mcp.CallToolRequest, raw map[string]any) (R, error) {
		var args A
		if err := decodeArgs(raw, &args); err != nil {
			var zero R
			return zero, err
		}
		return fn(ctx, args)
	}
}

func target() mcp.ToolOption {
	return mcp.WithString("target", mcp.Required(), mcp.Description("Contact ID or phone number"))
}

func stringArray(name, desc string, opts ...mcp.PropertyOption) mcp.ToolOption {
	opts = append(opts, mcp.Description(desc), mcp.Items(map[string]any{"type": "string"}))
	return mcp.WithArray(name, opts...)
}

func (s *Server) registerTools() {
	// Contacts
	s.mcpServer.AddTool(mcp.NewTool("list_contacts",
		mcp.WithDescription("List every contact sorted by ID."),
	), mcp.NewStructuredToolHandler(handler(func(ctx context.Context, _ struct{}) (ContactsResult, error) {
		return ContactsResult{Contacts: s.engine.ListContacts()}, nil
	})))

	s.mcpServer.AddTool(mcp.NewTool("add_contact",
		mcp.WithDescription("Add a contact. The phone is normalized and must be unique."),
		mcp.WithString("name", mcp.Required()),
		mcp.WithString("phone", mcp.Required()),
	), mcp.NewStructuredToolHandler(handler(func(ctx context.Context, a contactArgs) (domain.Contact, error) {
		if a.Name == nil || a.Phone == nil {
			return domain.Contact{}, fmt.Errorf("%w: name and phone are required", domain.ErrInvalidContact)
		}
		return s.engine.AddContact(ctx, *a.Name, *a.Phone)
	})))

	s.mcpServer.AddTool(mcp.NewTool("update_contact",
		mcp.WithDescription("Change the name and/or phone of a contact. The ID never changes."),
		mcp.WithString("id", mcp.Required()),
		mcp.WithString("name"),
		mcp.WithString("phone"),
	), mcp.NewStructuredToolHandler(handler(func(ctx context.Context, a contactArgs) (domain.Contact, error) {
		return s.engine.UpdateContact(ctx, a.ID, contacts.Changes{Name: a.Name, Phone: a.Phone})
	})))

	s.mcpServer.AddTool(mcp.NewTool("delete_contact",
		mcp.WithDescription("Remove a contact. Its conversation record stays until forgotten."),
		mcp.WithString("id", mcp.Required()),
	), mcp.NewStructuredToolHandler(handler(func(ctx context.Context, a contactArgs) (domain.Contact, error) {
		return s.engine.DeleteContact(ctx, a.ID)
	})))

	// Messaging
	s.mcpServer.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send an SMS, optionally followed by an image (MMS) and an audio file (voice)."),
		target(),
		mcp.WithString("text"),
		mcp.WithString("image_path", mcp.Description("Local path of an image to attach")),
		mcp.WithString("audio_path", mcp.Description("Local path of an audio file to send as voice")),
	), mcp.NewStructuredToolHandler(handler(s.sendMessage)))

	s.mcpServer.AddTool(mcp.NewTool("send_menu",
		mcp.WithDescription("Send a numbered menu and capture the choice under the key \"menu\"."),
		target(),
		stringArray("options", "Menu options"),
		mcp.WithString("options_text", mcp.Description("Options one per line, used when options is empty")),
		mcp.WithString("header"),
		mcp.WithString("footer"),
		mcp.WithString("number_format", mcp.Description("Line format with {n} and {option}")),
		mcp.WithNumber("timeout_seconds", mcp.Description("Between 5 and 3600; default 300")),
		mcp.WithBoolean("wait", mcp.Description("Block until the reply arrives or the timeout elapses")),
	), mcp.NewStructuredToolHandler(handler(s.sendMenu)))

	s.mcpServer.AddTool(mcp.NewTool("poll",
		mcp.WithDescription("Fetch unread messages once and return the resulting events."),
	), mcp.NewStructuredToolHandler(handler(func(ctx context.Context, _ struct{}) (EventsResult, error) {
		evs, err := s.engine.Poll(ctx)
		return EventsResult{Events: orEmpty(evs)}, err
	})))

	// Expectations
	s.mcpServer.AddTool(mcp.NewTool("register_expectation",
		mcp.WithDescription("Wait for a reply of a given kind from the target."),
		target(),
		mcp.WithString("key", mcp.Required()),
		mcp.WithString("kind", mcp.Required(), mcp.Enum("choice", "text", "number", "boolean")),
		stringArray("options", "Options for kind=choice"),
		mcp.WithString("pattern", mcp.Description("Full-match regular expression for kind=text")),
		mcp.WithNumber("ttl_seconds", mcp.Required()),
		mcp.WithBoolean("keep_after_match"),
		mcp.WithString("response_variable"),
	), mcp.NewStructuredToolHandler(handler(s.registerExpectation)))

	s.mcpServer.AddTool(mcp.NewTool("list_pending",
		mcp.WithDescription("List live expectations of the target in registration order."),
		target(),
	), mcp.NewStructuredToolHandler(handler(func(ctx context.Context, a targetArgs) (PendingResult, error) {
		pending, err := s.engine.Pending(ctx, a.Target)
		if pending == nil {
			pending = []domain.Expectation{}
		}
		return PendingResult{Pending: pending}, err
	})))

	s.mcpServer.AddTool(mcp.NewTool("clear_pending",
		mcp.WithDescription("Remove one expectation, or all of them when key is omitted."),
		target(),
		mcp.WithString("key"),
	), mcp.NewStructuredToolHandler(handler(func(ctx context.Context, a targetArgs) (ClearedResult, error) {
		removed, err := s.engine.ClearPending(ctx, a.Target, a.Key)
		if removed == nil {
			removed = []string{}
		}
		return ClearedResult{Removed: removed}, err
	})))

	// Context
	s.mcpServer.AddTool(mcp.NewTool("get_context",
		mcp.WithDescription("Read the freeform context of the target."),
		target(),
	), mcp.NewStructuredToolHandler(handler(func(ctx context.Context, a contextArgs) (ContextResult, error) {
		values, err := s.engine.GetContext(ctx, a.Target)
		return ContextResult{Context: values}, err
	})))

	s.mcpServer.AddTool(mcp.NewTool("set_context",
		mcp.WithDescription("Merge values into the target's context, or replace it."),
		target(),
		mcp.WithObject("values", mcp.Required()),
		mcp.WithBoolean("replace"),
	), mcp.NewStructuredToolHandler(handler(func(ctx context.Context, a contextArgs) (ContextResult, error) {
		var (
			values map[string]any
			err    error
		)
		if a.Replace {
			values, err = s.engine.ReplaceContext(ctx, a.Target, a.Values)
		} else {
			values, err = s.engine.SetContext(ctx, a.Target, a.Values)
		}
		return ContextResult{Context: values}, err
	})))

	s.mcpServer.AddTool(mcp.NewTool("clear_context",
		mcp.WithDescription("Empty the target's context."),
		target(),
	), mcp.NewStructuredToolHandler(handler(func(ctx context.Context, a contextArgs) (OKResult, error) {
		return OKResult{OK: true}, s.engine.ClearContext(ctx, a.Target)
	})))

	// Conversations
	s.mcpServer.AddTool(mcp.NewTool("get_conversation",
		mcp.WithDescription("Read the full conversation record of the target."),
		target(),
	), mcp.NewStructuredToolHandler(handler(func(ctx context.Context, a targetArgs) (*domain.Conversation, error) {
		return s.engine.Conversation(ctx, a.Target)
	})))

	s.mcpServer.AddTool(mcp.NewTool("forget",
		mcp.WithDescription("Delete the conversation record of the target or of an orphaned key."),
		target(),
	), mcp.NewStructuredToolHandler(handler(func(ctx context.Context, a targetArgs) (OKResult, error) {
		return OKResult{OK: true}, s.engine.Forget(ctx, a.Target)
	})))
}

func (s *Server) sendMessage(ctx context.Context, a sendArgs) (EventsResult, error) {
	content := pipeline.Content{Text: a.Text}
	var err error
	if a.ImagePath != "" {
		if content.Image, err = pipeline.LoadAttachment(a.ImagePath); err != nil {
			return EventsResult{}, err
		}
	}
	if a.AudioPath != "" {
		if content.Audio, err = pipeline.LoadAttachment(a.AudioPath); err != nil {
			return EventsResult{}, err
		}
	}
	evs, err := s.engine.Send(ctx, a.Target, content)
	if err != nil {
		s.logger.Warn("MCP send failed", "target", a.Target, "err", err)
	}
	return EventsResult{Events: orEmpty(evs)}, err
}

func (s *Server) sendMenu(ctx context.Context, a menuArgs) (MenuResult, error) {
	options := a.Options
	if len(options) == 0 {
		options = parley.ParseOptions(a.OptionsText)
	}
	resp, err := s.engine.SendMenu(ctx, a.Target, parley.Menu{
		Options:      options,
		Header:       a.Header,
		Footer:       a.Footer,
		NumberFormat: a.NumberFormat,
		Timeout:      seconds(a.TimeoutSeconds),
		Wait:         a.Wait,
	})
	if err != nil {
		return MenuResult{}, err
	}
	return MenuResult{Sent: true, Response: resp}, nil
}

func (s *Server) registerExpectation(ctx context.Context, a expectArgs) (domain.Expectation, error) {
	kind, err := domain.ParseKind(a.Kind)
	if err != nil {
		return domain.Expectation{}, err
	}
	return s.engine.RegisterExpectation(ctx, a.Target, expect.Prompt{
		Key:              a.Key,
		Kind:             kind,
		Grammar:          domain.Grammar{Options: a.Options, Pattern: a.Pattern},
		TTL:              seconds(a.TTLSeconds),
		KeepAfterMatch:   a.KeepAfterMatch,
		ResponseVariable: a.ResponseVariable,
	})
}

func orEmpty(evs []domain.Event) []domain.Event {
	if evs == nil {
		return []domain.Event{}
	}
	return evs
}
