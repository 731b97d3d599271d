// Package reply turns raw inbound text into typed values according to an
// expectation's kind and grammar.
//
// Parsing never fails: input a grammar does not accept is reported as a
// non-match and the caller moves on to the next expectation.
package reply

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/dlclark/regexp2"
)

// PatternTimeout bounds evaluation of a single text pattern.
const PatternTimeout = 100 * time.Millisecond

// Result is a successful parse.
type Result struct {
	Kind  domain.Kind
	Value any
	// OptionIndex is the zero-based option chosen; set for choices only.
	OptionIndex *int
}

// Parse dispatches on kind. The second return value is false when raw does
// not satisfy the grammar.
func Parse(kind domain.Kind, g domain.Grammar, raw string) (Result, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Result{}, false
	}

	switch kind {
	case domain.KindChoice:
		idx, ok := Choice(g.Options, text)
		if !ok {
			return Result{}, false
		}
		return Result{Kind: kind, Value: g.Options[idx], OptionIndex: &idx}, true
	case domain.KindText:
		if !Text(g.Pattern, text) {
			return Result{}, false
		}
		return Result{Kind: kind, Value: text}, true
	case domain.KindNumber:
		n, ok := Number(text)
		if !ok {
			return Result{}, false
		}
		return Result{Kind: kind, Value: n}, true
	case domain.KindBoolean:
		b, ok := Boolean(text)
		if !ok {
			return Result{}, false
		}
		return Result{Kind: kind, Value: b}, true
	}
	return Result{}, false
}

// Choice resolves text against options and returns the zero-based index.
// A number in [1, len(options)] wins over any textual match; then a
// case-insensitive exact match; then the first option, in declaration order,
// that contains the reply or is contained in it.
func Choice(options []string, text string) (int, bool) {
	text = strings.TrimSpace(text)
	if text == "" || len(options) == 0 {
		return 0, false
	}

	if n, err := strconv.Atoi(text); err == nil {
		if n >= 1 && n <= len(options) {
			return n - 1, true
		}
	}

	lower := strings.ToLower(text)
	for i, opt := range options {
		if strings.ToLower(strings.TrimSpace(opt)) == lower {
			return i, true
		}
	}

	for i, opt := range options {
		o := strings.ToLower(strings.TrimSpace(opt))
		if o == "" {
			continue
		}
		if strings.Contains(o, lower) || strings.Contains(lower, o) {
			return i, true
		}
	}
	return 0, false
}

// Text reports whether text satisfies pattern. An empty pattern accepts any
// non-empty text; otherwise the whole text must match. An invalid pattern or
// an evaluation timeout is a non-match.
func Text(pattern, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if pattern == "" {
		return true
	}
	re, err := CompilePattern(pattern)
	if err != nil {
		return false
	}
	ok, err := re.MatchString(text)
	return err == nil && ok
}

// CompilePattern compiles a text grammar anchored to the whole input.
func CompilePattern(pattern string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(`\A(?:`+pattern+`)\z`, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("%w: pattern %q: %v", domain.ErrInvalidExpectation, pattern, err)
	}
	re.MatchTimeout = PatternTimeout
	return re, nil
}

var decimal = regexp.MustCompile(`^([+-]?)(\d*)(?:\.(\d*))?$`)

// Number accepts an optional sign, digits and an optional fraction. The value
// keeps the decimal digits as written, in canonical JSON form: no plus sign,
// no leading zeros in the integer part, a "0" before a bare fraction and no
// trailing point. ".5" becomes "0.5", "007" becomes "7", "3.50" stays "3.50".
func Number(text string) (json.Number, bool) {
	m := decimal.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}
	sign, whole, frac := m[1], m[2], m[3]
	if whole == "" && frac == "" {
		return "", false
	}
	if sign == "+" {
		sign = ""
	}
	whole = strings.TrimLeft(whole, "0")
	if whole == "" {
		whole = "0"
	}
	if frac == "" {
		return json.Number(sign + whole), true
	}
	return json.Number(sign + whole + "." + frac), true
}

var (
	truthy = map[string]bool{"yes": true, "y": true, "true": true, "1": true, "yeah": true, "yep": true}
	falsy  = map[string]bool{"no": true, "n": true, "false": true, "0": true, "nope": true}
)

// Boolean maps the affirmative and negative vocabularies, case-insensitively.
func Boolean(text string) (bool, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case truthy[t]:
		return true, true
	case falsy[t]:
		return false, true
	}
	return false, false
}

// ResponseNumber renders the short form of a parsed reply: the one-based
// option number for choices, the value as text otherwise.
func ResponseNumber(r Result) string {
	if r.OptionIndex != nil {
		return strconv.Itoa(*r.OptionIndex + 1)
	}
	switch v := r.Value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	return fmt.Sprint(r.Value)
}
