package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/dlclark/regexp2"
)

// Mask replaces redacted context values.
const Mask = "***"

type piiMiddleware struct {
	next     ports.StateStore
	patterns []*regexp2.Regexp
}

// NewPIIMiddleware creates a middleware that masks conversation context
// values whose key matches one of the patterns. Masking is lossy: the
// redacted value is never written, so later loads see Mask.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp2.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp2.Compile(p, regexp2.IgnoreCase)
		if err != nil {
			return nil, fmt.Errorf("pii pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.StateStore) ports.StateStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, collection domain.Collection, id string, doc []byte) error {
	if collection != domain.CollectionConversations || len(m.patterns) == 0 {
		return m.next.Save(ctx, collection, id, doc)
	}

	var generic map[string]any
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return fmt.Errorf("pii: decode conversation: %w", err)
	}
	values, ok := generic["context"].(map[string]any)
	if !ok || !m.maskMap(values) {
		return m.next.Save(ctx, collection, id, doc)
	}

	masked, err := json.Marshal(generic)
	if err != nil {
		return fmt.Errorf("pii: encode conversation: %w", err)
	}
	return m.next.Save(ctx, collection, id, masked)
}

func (m *piiMiddleware) Load(ctx context.Context, collection domain.Collection, id string) ([]byte, error) {
	return m.next.Load(ctx, collection, id)
}

func (m *piiMiddleware) Delete(ctx context.Context, collection domain.Collection, id string) error {
	return m.next.Delete(ctx, collection, id)
}

func (m *piiMiddleware) List(ctx context.Context, collection domain.Collection) ([]string, error) {
	return m.next.List(ctx, collection)
}

func (m *piiMiddleware) sensitive(key string) bool {
	for _, p := range m.patterns {
		if ok, _ := p.MatchString(key); ok {
			return true
		}
	}
	return false
}

// maskMap redacts in place, recursing into nested maps, and reports
// whether anything changed.
func (m *piiMiddleware) maskMap(values map[string]any) bool {
	changed := false
	for k, v := range values {
		if m.sensitive(k) {
			if v != Mask {
				values[k] = Mask
				changed = true
			}
			continue
		}
		if sub, ok := v.(map[string]any); ok && m.maskMap(sub) {
			changed = true
		}
	}
	return changed
}
