package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/events"
)

// SubscribeEvents handles the GET /events request (SSE).
// Query parameters: target narrows to one conversation, type to a comma
// separated list of event types.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	var filters []events.Filter
	if t := r.URL.Query().Get("target"); t != "" {
		ref, err := s.Engine.Resolve(t)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		filters = append(filters, events.ByConversation(ref.Key()))
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		var types []domain.EventType
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, domain.EventType(t))
			}
		}
		filters = append(filters, events.ByType(types...))
	}

	ch, cancel := s.Engine.Subscribe(events.All(filters...))
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("SSE client connected", "filters", len(filters))

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE client disconnected")
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("SSE: encode failed", "type", ev.Base().Type, "err", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Base().Type, data)
			flusher.Flush()
		}
	}
}
