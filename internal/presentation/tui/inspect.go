package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/domain"
)

// ConversationMarkdown renders a conversation record for `parley inspect`.
// Expectations already expired at now are flagged.
func ConversationMarkdown(conv *domain.Conversation, contact *domain.Contact, now time.Time) string {
	var b strings.Builder

	title := conv.Phone
	if contact != nil {
		title = fmt.Sprintf("%s (%s)", contact.Name, contact.Phone)
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- **Key:** `%s`\n", conv.Key)
	if !conv.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "- **Updated:** %s\n", conv.UpdatedAt.Format(time.RFC3339))
	}

	b.WriteString("\n## Pending\n\n")
	if len(conv.Pending) == 0 {
		b.WriteString("_none_\n")
	} else {
		b.WriteString("| Key | Kind | Grammar | Expires |\n|---|---|---|---|\n")
		for _, e := range conv.Pending {
			expires := e.ExpiresAt.Format(time.RFC3339)
			if e.Expired(now) {
				expires += " (expired)"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", e.Key, e.Kind, grammar(e), expires)
		}
	}

	b.WriteString("\n## Context\n\n")
	if len(conv.Context) == 0 {
		b.WriteString("_empty_\n")
	} else {
		keys := make([]string, 0, len(conv.Context))
		for k := range conv.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v, _ := json.Marshal(conv.Context[k])
			fmt.Fprintf(&b, "- `%s`: `%s`\n", k, v)
		}
	}

	a := conv.Activity
	b.WriteString("\n## Activity\n\n")
	if !a.LastInboundAt.IsZero() {
		fmt.Fprintf(&b, "- **In** %s: %s\n", a.LastInboundAt.Format(time.RFC3339), a.LastInbound)
	}
	if !a.LastOutboundAt.IsZero() {
		fmt.Fprintf(&b, "- **Out** %s: %s\n", a.LastOutboundAt.Format(time.RFC3339), a.LastOutbound)
	}
	if a.LastInboundAt.IsZero() && a.LastOutboundAt.IsZero() {
		b.WriteString("_no messages yet_\n")
	}
	return b.String()
}

func grammar(e domain.Expectation) string {
	switch e.Kind {
	case domain.KindChoice:
		return strings.Join(e.Grammar.Options, " / ")
	case domain.KindText:
		if e.Grammar.Pattern != "" {
			return "`" + e.Grammar.Pattern + "`"
		}
	}
	return "-"
}
