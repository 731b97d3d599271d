package http

import (
	"net/http"
	"net/url"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/contacts"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/expect"
	"github.com/aretw0/parley/pkg/pipeline"
	"github.com/go-chi/chi/v5"
)

type contactRequest struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

type attachment struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

func (a *attachment) toDomain() *domain.Attachment {
	if a == nil {
		return nil
	}
	return &domain.Attachment{FileName: a.FileName, ContentType: a.ContentType, Data: a.Data}
}

type sendRequest struct {
	Target string      `json:"target"`
	Text   string      `json:"text"`
	Image  *attachment `json:"image"`
	Audio  *attachment `json:"audio"`
}

type menuRequest struct {
	Target         string   `json:"target"`
	Options        []string `json:"options"`
	Header         string   `json:"header"`
	Footer         string   `json:"footer"`
	OmitHeader     bool     `json:"omit_header"`
	OmitFooter     bool     `json:"omit_footer"`
	NumberFormat   string   `json:"number_format"`
	TimeoutSeconds float64  `json:"timeout_seconds"`
	Wait           bool     `json:"wait"`
}

type promptRequest struct {
	Key              string      `json:"key"`
	Kind             domain.Kind `json:"kind"`
	Options          []string    `json:"options"`
	Pattern          string      `json:"pattern"`
	TTLSeconds       float64     `json:"ttl_seconds"`
	KeepAfterMatch   bool        `json:"keep_after_match"`
	ResponseVariable string      `json:"response_variable"`
}

type eventsResponse struct {
	Events []domain.Event `json:"events"`
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// target returns the decoded {target} path parameter.
func target(r *http.Request) string {
	raw := chi.URLParam(r, "target")
	if t, err := url.PathUnescape(raw); err == nil {
		return t
	}
	return raw
}

// Contacts

func (s *Server) ListContacts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.ListContacts())
}

func (s *Server) AddContact(w http.ResponseWriter, r *http.Request) {
	var body contactRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	var name, phone string
	if body.Name != nil {
		name = *body.Name
	}
	if body.Phone != nil {
		phone = *body.Phone
	}
	c, err := s.Engine.AddContact(r.Context(), name, phone)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) GetContact(w http.ResponseWriter, r *http.Request) {
	c, err := s.Engine.Contact(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var body contactRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.Engine.UpdateContact(r.Context(), chi.URLParam(r, "id"), contacts.Changes{Name: body.Name, Phone: body.Phone})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) DeleteContact(w http.ResponseWriter, r *http.Request) {
	c, err := s.Engine.DeleteContact(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Messaging

func (s *Server) Send(w http.ResponseWriter, r *http.Request) {
	var body sendRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	evs, err := s.Engine.Send(r.Context(), body.Target, pipeline.Content{
		Text:  body.Text,
		Image: body.Image.toDomain(),
		Audio: body.Audio.toDomain(),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: orEmpty(evs)})
}

func (s *Server) SendMenu(w http.ResponseWriter, r *http.Request) {
	var body menuRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	resp, err := s.Engine.SendMenu(r.Context(), body.Target, parley.Menu{
		Options:      body.Options,
		Header:       body.Header,
		Footer:       body.Footer,
		OmitHeader:   body.OmitHeader,
		OmitFooter:   body.OmitFooter,
		NumberFormat: body.NumberFormat,
		Timeout:      seconds(body.TimeoutSeconds),
		Wait:         body.Wait,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": true, "response": resp})
}

func (s *Server) Poll(w http.ResponseWriter, r *http.Request) {
	evs, err := s.Engine.Poll(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: orEmpty(evs)})
}

// Conversations

func (s *Server) ListConversations(w http.ResponseWriter, r *http.Request) {
	keys, err := s.Engine.Conversations(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.Engine.Conversation(r.Context(), target(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) ForgetConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Forget(r.Context(), target(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Expectations

func (s *Server) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.Engine.Pending(r.Context(), target(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if pending == nil {
		pending = []domain.Expectation{}
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) RegisterExpectation(w http.ResponseWriter, r *http.Request) {
	var body promptRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	exp, err := s.Engine.RegisterExpectation(r.Context(), target(r), expect.Prompt{
		Key:              body.Key,
		Kind:             body.Kind,
		Grammar:          domain.Grammar{Options: body.Options, Pattern: body.Pattern},
		TTL:              seconds(body.TTLSeconds),
		KeepAfterMatch:   body.KeepAfterMatch,
		ResponseVariable: body.ResponseVariable,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, exp)
}

func (s *Server) ClearPending(w http.ResponseWriter, r *http.Request) {
	removed, err := s.Engine.ClearPending(r.Context(), target(r), r.URL.Query().Get("key"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if removed == nil {
		removed = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"removed": removed})
}

// Context

func (s *Server) GetContext(w http.ResponseWriter, r *http.Request) {
	values, err := s.Engine.GetContext(r.Context(), target(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (s *Server) MergeContext(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	values, err := s.Engine.SetContext(r.Context(), target(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (s *Server) ReplaceContext(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	values, err := s.Engine.ReplaceContext(r.Context(), target(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (s *Server) ClearContext(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.ClearContext(r.Context(), target(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func orEmpty(evs []domain.Event) []domain.Event {
	if evs == nil {
		return []domain.Event{}
	}
	return evs
}
