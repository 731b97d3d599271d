package mcp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/parley"
	parleymcp "github.com/aretw0/parley/pkg/adapters/mcp"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*client.Client, *memory.Transport) {
	t.Helper()
	transport := memory.NewTransport()
	eng := parley.New(memory.NewStore(), transport)
	require.NoError(t, eng.Start(context.Background()))

	c, err := client.NewInProcessClient(parleymcp.NewServer(eng).MCPServer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	var init mcp.InitializeRequest
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: "parley-test", Version: "0"}
	_, err = c.Initialize(ctx, init)
	require.NoError(t, err)
	return c, transport
}

func call(t *testing.T, c *client.Client, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(context.Background(), req)
	require.NoError(t, err)
	if out != nil && !res.IsError {
		require.NoError(t, json.Unmarshal(payload(t, res), out))
	}
	return res
}

func payload(t *testing.T, res *mcp.CallToolResult) []byte {
	t.Helper()
	if res.StructuredContent != nil {
		data, err := json.Marshal(res.StructuredContent)
		require.NoError(t, err)
		return data
	}
	for _, c := range res.Content {
		switch tc := c.(type) {
		case mcp.TextContent:
			return []byte(tc.Text)
		case *mcp.TextContent:
			return []byte(tc.Text)
		}
	}
	t.Fatal("tool result carries no payload")
	return nil
}

func TestTools_Listed(t *testing.T) {
	c, _ := setup(t)
	res, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.Subset(t, names, []string{
		"list_contacts", "add_contact", "update_contact", "delete_contact",
		"send_message", "send_menu", "poll",
		"register_expectation", "list_pending", "clear_pending",
		"get_context", "set_context", "clear_context",
		"get_conversation", "forget",
	})
}

func TestTools_ContactLifecycle(t *testing.T) {
	c, _ := setup(t)

	var amy domain.Contact
	res := call(t, c, "add_contact", map[string]any{"name": "Amy", "phone": "212-555-0001"}, &amy)
	require.False(t, res.IsError)
	assert.Equal(t, "contact_amy", amy.ID)

	res = call(t, c, "add_contact", map[string]any{"name": "Dup", "phone": "2125550001"}, nil)
	assert.True(t, res.IsError)

	var updated domain.Contact
	call(t, c, "update_contact", map[string]any{"id": amy.ID, "phone": "3105550100"}, &updated)
	assert.Equal(t, "+13105550100", updated.Phone)

	var list parleymcp.ContactsResult
	call(t, c, "list_contacts", nil, &list)
	assert.Len(t, list.Contacts, 1)

	call(t, c, "delete_contact", map[string]any{"id": amy.ID}, nil)
	call(t, c, "list_contacts", nil, &list)
	assert.Empty(t, list.Contacts)
}

func TestTools_ExpectationRoundTrip(t *testing.T) {
	c, transport := setup(t)

	var sent parleymcp.EventsResult
	res := call(t, c, "send_message", map[string]any{"target": "2125550001", "text": "Coming?"}, &sent)
	require.False(t, res.IsError)
	require.Len(t, transport.Sent(), 1)

	res = call(t, c, "register_expectation", map[string]any{
		"target":      "2125550001",
		"key":         "rsvp",
		"kind":        "boolean",
		"ttl_seconds": 60,
	}, nil)
	require.False(t, res.IsError)

	var pending parleymcp.PendingResult
	call(t, c, "list_pending", map[string]any{"target": "+12125550001"}, &pending)
	require.Len(t, pending.Pending, 1)
	assert.Equal(t, "rsvp", pending.Pending[0].Key)

	transport.Deliver(domain.InboundMessage{ID: "m1", Phone: "+12125550001", Text: "yep", ReceivedAt: time.Now()})
	var polled struct {
		Events []map[string]any `json:"events"`
	}
	call(t, c, "poll", nil, &polled)
	var parsed map[string]any
	for _, ev := range polled.Events {
		if ev["type"] == "reply_parsed" {
			parsed = ev
		}
	}
	require.NotNil(t, parsed)
	assert.Equal(t, true, parsed["value"])

	res = call(t, c, "register_expectation", map[string]any{
		"target": "2125550001", "key": "k", "kind": "date", "ttl_seconds": 60,
	}, nil)
	assert.True(t, res.IsError)
}

func TestTools_Context(t *testing.T) {
	c, _ := setup(t)

	var out parleymcp.ContextResult
	call(t, c, "set_context", map[string]any{"target": "2125550001", "values": map[string]any{"a": 1, "b": "x"}}, &out)
	call(t, c, "set_context", map[string]any{"target": "2125550001", "values": map[string]any{"a": 2}}, &out)
	assert.Equal(t, map[string]any{"a": 2.0, "b": "x"}, out.Context)

	call(t, c, "set_context", map[string]any{"target": "2125550001", "values": map[string]any{"c": true}, "replace": true}, &out)
	assert.Equal(t, map[string]any{"c": true}, out.Context)

	call(t, c, "clear_context", map[string]any{"target": "2125550001"}, nil)
	call(t, c, "get_context", map[string]any{"target": "2125550001"}, &out)
	assert.Empty(t, out.Context)
}

func TestTools_SendMenuFromText(t *testing.T) {
	c, transport := setup(t)

	var out parleymcp.MenuResult
	res := call(t, c, "send_menu", map[string]any{
		"target":       "2125550001",
		"options_text": "Open\n\nClose\n",
	}, &out)
	require.False(t, res.IsError)
	assert.True(t, out.Sent)
	require.Len(t, transport.Sent(), 1)
	assert.Contains(t, transport.Sent()[0].Text, "2. Close")
}

func TestResource_Contacts(t *testing.T) {
	c, _ := setup(t)
	call(t, c, "add_contact", map[string]any{"name": "Amy", "phone": "2125550001"}, nil)

	var req mcp.ReadResourceRequest
	req.Params.URI = "parley://contacts"
	res, err := c.ReadResource(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	text, ok := res.Contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Contains(t, text.Text, "contact_amy")
}
