package reply

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxTextSize bounds the inbound text kept per message (bytes).
const MaxTextSize = 4096

// Sanitize cleans inbound text before it is parsed or stored: invalid UTF-8
// becomes U+FFFD, control characters other than newline, tab and carriage
// return are dropped, and the result is cut to MaxTextSize on a rune boundary.
func Sanitize(text string) string {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}

	// Fast path: if no control chars, only the size can change.
	clean := true
	for _, r := range text {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if !clean {
		var b strings.Builder
		b.Grow(len(text))
		for _, r := range text {
			if !unicode.IsControl(r) || isSafeControl(r) {
				b.WriteRune(r)
			}
		}
		text = b.String()
	}

	if len(text) > MaxTextSize {
		cut := MaxTextSize
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}
