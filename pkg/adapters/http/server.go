// Package http exposes the parley engine as a JSON API with a server-sent
// event stream.
package http

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/contacts"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/events"
	"github.com/aretw0/parley/pkg/expect"
	"github.com/aretw0/parley/pkg/pipeline"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

//go:embed openapi.yaml
var rawSpec []byte

// Engine is the subset of *parley.Engine served over HTTP.
type Engine interface {
	AddContact(ctx context.Context, name, phone string) (domain.Contact, error)
	UpdateContact(ctx context.Context, id string, ch contacts.Changes) (domain.Contact, error)
	DeleteContact(ctx context.Context, id string) (domain.Contact, error)
	ListContacts() []domain.Contact
	Contact(id string) (domain.Contact, error)

	Send(ctx context.Context, target string, c pipeline.Content) ([]domain.Event, error)
	SendMenu(ctx context.Context, target string, m parley.Menu) (*parley.MenuResponse, error)
	Poll(ctx context.Context) ([]domain.Event, error)
	Subscribe(filter events.Filter) (<-chan domain.Event, func())
	Resolve(target string) (domain.ConversationRef, error)

	RegisterExpectation(ctx context.Context, target string, p expect.Prompt) (domain.Expectation, error)
	ClearPending(ctx context.Context, target, key string) ([]string, error)
	Pending(ctx context.Context, target string) ([]domain.Expectation, error)

	GetContext(ctx context.Context, target string) (map[string]any, error)
	SetContext(ctx context.Context, target string, updates map[string]any) (map[string]any, error)
	ReplaceContext(ctx context.Context, target string, values map[string]any) (map[string]any, error)
	ClearContext(ctx context.Context, target string) error

	Conversation(ctx context.Context, target string) (*domain.Conversation, error)
	Conversations(ctx context.Context) ([]string, error)
	Forget(ctx context.Context, target string) error
}

var _ Engine = (*parley.Engine)(nil)

// Server holds the handlers.
type Server struct {
	Engine Engine

	logger    *slog.Logger
	metrics   http.Handler
	keepalive time.Duration
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithKeepalive sets the SSE comment interval (default 15s).
func WithKeepalive(d time.Duration) Option {
	return func(s *Server) {
		s.keepalive = d
	}
}

// NewHandler creates a new HTTP handler for the engine. Requests to
// documented routes are validated against the embedded OpenAPI document.
func NewHandler(engine Engine, opts ...Option) (http.Handler, error) {
	s := &Server{
		Engine:    engine,
		logger:    logging.NewNop(),
		keepalive: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	validate, err := newValidator(rawSpec)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)
	r.Use(validate)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/contacts", func(r chi.Router) {
		r.Get("/", s.ListContacts)
		r.Post("/", s.AddContact)
		r.Get("/{id}", s.GetContact)
		r.Patch("/{id}", s.UpdateContact)
		r.Delete("/{id}", s.DeleteContact)
	})

	r.Post("/send", s.Send)
	r.Post("/menu", s.SendMenu)
	r.Post("/poll", s.Poll)
	r.Get("/events", s.SubscribeEvents)

	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", s.ListConversations)
		r.Route("/{target}", func(r chi.Router) {
			r.Get("/", s.GetConversation)
			r.Delete("/", s.ForgetConversation)

			r.Get("/expectations", s.ListPending)
			r.Post("/expectations", s.RegisterExpectation)
			r.Delete("/expectations", s.ClearPending)

			r.Get("/context", s.GetContext)
			r.Patch("/context", s.MergeContext)
			r.Put("/context", s.ReplaceContext)
			r.Delete("/context", s.ClearContext)
		})
	})
	return r, nil
}

// Spec returns the parsed OpenAPI document served at /openapi.yaml.
func Spec() (*openapi3.T, error) {
	return openapi3.NewLoader().LoadFromData(rawSpec)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if doc, err := Spec(); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "parley-http",
		"version":     strings.TrimSpace(parley.Version),
		"api_version": apiVersion,
	})
}

// -- Helpers --

// writeJSON encodes v before writing the header, so a value that cannot be
// encoded yields a 500 instead of a success status with an empty body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if v == nil {
		w.WriteHeader(status)
		return
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": fmt.Sprintf("encode response: %v", err)})
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
