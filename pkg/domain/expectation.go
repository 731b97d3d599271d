package domain

import (
	"fmt"
	"time"
)

// Kind tags the grammar used to parse a reply.
type Kind string

const (
	KindChoice  Kind = "choice"
	KindText    Kind = "text"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindChoice, KindText, KindNumber, KindBoolean:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidExpectation, s)
	}
}

// Grammar holds the kind-specific parameters of an expectation.
// Options applies to KindChoice, Pattern to KindText; the other kinds ignore both.
type Grammar struct {
	Options []string `json:"options,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
}

// Expectation is a registered, time-bounded description of an awaited reply.
type Expectation struct {
	Key            string    `json:"key"`
	Kind           Kind      `json:"kind"`
	Grammar        Grammar   `json:"grammar"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	KeepAfterMatch bool      `json:"keep_after_match,omitempty"`

	// ResponseVariable is an opaque label echoed back in ReplyParsed.
	ResponseVariable string `json:"response_variable,omitempty"`
}

// Expired reports whether the expectation is logically expired at now.
func (e Expectation) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// MatchResult is produced when an inbound text satisfies a pending expectation.
type MatchResult struct {
	Key              string `json:"key"`
	Kind             Kind   `json:"kind"`
	Value            any    `json:"value"`
	RawText          string `json:"raw_text"`
	OptionIndex      *int   `json:"option_index,omitempty"`
	ResponseNumber   string `json:"response_number"`
	ResponseVariable string `json:"response_variable,omitempty"`
}
