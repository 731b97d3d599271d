// Package textnow implements ports.MessageTransport against the TextNow web API.
//
// The API is session based: a logged-in browser's "connect.sid" and "_csrf"
// cookies authorize every call. There is no programmatic login, so a stale
// session can only be refreshed from a CredentialSource.
package textnow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

const (
	DefaultBaseURL = "https://www.textnow.com"
	DefaultTimeout = 30 * time.Second

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	accept    = "application/json, text/javascript, */*; q=0.01"

	directionIncoming = 1
	directionOutgoing = 2
	contactTypePhone  = 2
	messageTypeMedia  = 2
)

// Credentials identify a TextNow web session.
type Credentials struct {
	Username   string `json:"username" mapstructure:"username"`
	ConnectSID string `json:"connect_sid" mapstructure:"connect_sid"`
	CSRF       string `json:"csrf" mapstructure:"csrf"`
}

// Validate reports missing fields.
func (c Credentials) Validate() error {
	if c.Username == "" || c.ConnectSID == "" {
		return fmt.Errorf("textnow: username and connect.sid are required")
	}
	return nil
}

// CredentialSource yields a fresh session, e.g. by re-reading a secrets file.
type CredentialSource func(ctx context.Context) (Credentials, error)

// Client is a TextNow transport.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	source  CredentialSource

	mu    sync.RWMutex
	creds Credentials
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL points the client at another host (tests, proxies).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger configures a logger for the Client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithCredentialSource enables Authenticate.
func WithCredentialSource(src CredentialSource) Option {
	return func(c *Client) {
		c.source = src
	}
}

// New creates a client for the given session.
func New(creds Credentials, opts ...Option) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  logging.NewNop(),
		creds:   creds,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Authenticate swaps in credentials from the configured source.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.source == nil {
		return fmt.Errorf("%w: no credential source configured", domain.ErrAuthExpired)
	}
	creds, err := c.source(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAuthExpired, err)
	}
	if err := creds.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
	c.logger.Info("TextNow session refreshed", "username", creds.Username)
	return nil
}

func (c *Client) session() Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

func (c *Client) userURL(creds Credentials, path string) string {
	return c.baseURL + "/api/users/" + url.PathEscape(creds.Username) + path
}

// newRequest builds an API request carrying the session cookies and headers.
func (c *Client) newRequest(ctx context.Context, creds Credentials, method, target string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.AddCookie(&http.Cookie{Name: "connect.sid", Value: creds.ConnectSID})
	if creds.CSRF != "" {
		req.AddCookie(&http.Cookie{Name: "_csrf", Value: creds.CSRF})
		req.Header.Set("X-CSRF-Token", creds.CSRF)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// statusError classifies a non-2xx response.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

func (e *statusError) Unwrap() error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return domain.ErrAuthExpired
	}
	return domain.ErrTransportUnavailable
}

// do executes req and decodes a JSON response body into out (may be nil).
func (c *Client) do(req *http.Request, out any, ok ...int) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	if !accepted(resp.StatusCode, ok) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("%w: decode response: %v", domain.ErrTransportUnavailable, err)
	}
	return nil
}

func accepted(status int, ok []int) bool {
	if len(ok) == 0 {
		return status == http.StatusOK
	}
	for _, s := range ok {
		if s == status {
			return true
		}
	}
	return false
}

func jsonBody(v any) (io.Reader, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return &buf, nil
}
