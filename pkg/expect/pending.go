// Package expect registers, matches and expires the replies a controller is
// waiting for.
//
// The functions in this file operate on a single conversation in memory and
// take the current time as an argument; Engine applies them to durable
// conversations.
package expect

import (
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/reply"
)

// Prompt describes an expectation to register.
type Prompt struct {
	Key              string         `json:"key"`
	Kind             domain.Kind    `json:"kind"`
	Grammar          domain.Grammar `json:"grammar"`
	TTL              time.Duration  `json:"ttl"`
	KeepAfterMatch   bool           `json:"keep_after_match,omitempty"`
	ResponseVariable string         `json:"response_variable,omitempty"`
}

// Validate checks the prompt without touching any conversation.
func (p Prompt) Validate() error {
	if strings.TrimSpace(p.Key) == "" {
		return fmt.Errorf("%w: key is required", domain.ErrInvalidExpectation)
	}
	if p.TTL <= 0 {
		return fmt.Errorf("%w: must be positive, got %s", domain.ErrInvalidTTL, p.TTL)
	}
	if _, err := domain.ParseKind(string(p.Kind)); err != nil {
		return err
	}
	switch p.Kind {
	case domain.KindChoice:
		if len(p.Grammar.Options) == 0 {
			return fmt.Errorf("%w: choice requires at least one option", domain.ErrInvalidExpectation)
		}
		for i, o := range p.Grammar.Options {
			if strings.TrimSpace(o) == "" {
				return fmt.Errorf("%w: option %d is empty", domain.ErrInvalidExpectation, i+1)
			}
		}
	case domain.KindText:
		if p.Grammar.Pattern != "" {
			if _, err := reply.CompilePattern(p.Grammar.Pattern); err != nil {
				return err
			}
		}
	}
	return nil
}

// Register adds the prompt to conv. An existing expectation with the same key
// is replaced and the replacement takes the newest position.
func Register(conv *domain.Conversation, p Prompt, now time.Time) (domain.Expectation, error) {
	if err := p.Validate(); err != nil {
		return domain.Expectation{}, err
	}

	e := domain.Expectation{
		Key:              p.Key,
		Kind:             p.Kind,
		Grammar:          p.Grammar,
		CreatedAt:        now,
		ExpiresAt:        now.Add(p.TTL),
		KeepAfterMatch:   p.KeepAfterMatch,
		ResponseVariable: p.ResponseVariable,
	}
	if p.Kind != domain.KindChoice {
		e.Grammar.Options = nil
	}
	if p.Kind != domain.KindText {
		e.Grammar.Pattern = ""
	}

	remove(conv, p.Key)
	conv.Pending = append(conv.Pending, e)
	return e, nil
}

// Clear removes the expectation under key, or every expectation when key is
// empty. It returns the removed keys.
func Clear(conv *domain.Conversation, key string) []string {
	if key == "" {
		keys := make([]string, 0, len(conv.Pending))
		for _, e := range conv.Pending {
			keys = append(keys, e.Key)
		}
		conv.Pending = []domain.Expectation{}
		return keys
	}
	if remove(conv, key) {
		return []string{key}
	}
	return nil
}

// TryMatch offers text to the live expectations in registration order. The
// first one whose grammar accepts it wins and is removed unless it was
// registered with KeepAfterMatch. Non-matching text changes nothing.
func TryMatch(conv *domain.Conversation, text string, now time.Time) (*domain.MatchResult, bool) {
	for i, e := range conv.Pending {
		if e.Expired(now) {
			continue
		}
		r, ok := reply.Parse(e.Kind, e.Grammar, text)
		if !ok {
			continue
		}

		if !e.KeepAfterMatch {
			conv.Pending = append(conv.Pending[:i:i], conv.Pending[i+1:]...)
		}
		return &domain.MatchResult{
			Key:              e.Key,
			Kind:             e.Kind,
			Value:            r.Value,
			RawText:          text,
			OptionIndex:      r.OptionIndex,
			ResponseNumber:   reply.ResponseNumber(r),
			ResponseVariable: e.ResponseVariable,
		}, true
	}
	return nil, false
}

// Sweep removes every expectation with ExpiresAt <= now and returns them.
func Sweep(conv *domain.Conversation, now time.Time) []domain.Expectation {
	var expired []domain.Expectation
	kept := conv.Pending[:0:0]
	for _, e := range conv.Pending {
		if e.Expired(now) {
			expired = append(expired, e)
			continue
		}
		kept = append(kept, e)
	}
	if len(expired) > 0 {
		conv.Pending = kept
	}
	return expired
}

// Live returns the expectations that have not expired at now.
func Live(conv *domain.Conversation, now time.Time) []domain.Expectation {
	out := make([]domain.Expectation, 0, len(conv.Pending))
	for _, e := range conv.Pending {
		if !e.Expired(now) {
			out = append(out, e)
		}
	}
	return out
}

func remove(conv *domain.Conversation, key string) bool {
	for i, e := range conv.Pending {
		if e.Key == key {
			conv.Pending = append(conv.Pending[:i:i], conv.Pending[i+1:]...)
			return true
		}
	}
	return false
}
