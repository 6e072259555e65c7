package render

import (
	"fmt"
	"strings"

	"github.com/aegisd/aegis/internal/suspend"
)

// PayloadMarkdown renders a suspension as a markdown document for human
// review, one section per pending call.
func PayloadMarkdown(rec suspend.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Suspension %s\n\n", rec.ID)
	fmt.Fprintf(&b, "- **Conversation:** %s\n", rec.ConversationID)
	if rec.Principal != "" {
		fmt.Fprintf(&b, "- **Principal:** %s\n", rec.Principal)
	}
	fmt.Fprintf(&b, "- **Status:** %s\n", rec.Status)
	fmt.Fprintf(&b, "- **Created:** %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
	if !rec.ExpiresAt.IsZero() {
		fmt.Fprintf(&b, "- **Expires:** %s\n", rec.ExpiresAt.Format("2006-01-02 15:04:05 UTC"))
	}
	b.WriteString("\n")

	if rec.Payload.SingleItem {
		b.WriteString("One call awaits review.\n\n")
	} else {
		fmt.Fprintf(&b, "%d calls await review.\n\n", len(rec.Payload.Items))
	}

	for _, item := range rec.Payload.Items {
		fmt.Fprintf(&b, "## %s\n\n", item.Summary)
		fmt.Fprintf(&b, "- **Call:** %s\n", item.CallID)
		fmt.Fprintf(&b, "- **Tool:** %s\n", item.Tool)
		fmt.Fprintf(&b, "- **Operation:** `%s`\n", item.OperationKey)
		fmt.Fprintf(&b, "- **Risk:** %s\n", item.Risk)
		fmt.Fprintf(&b, "- **Reversible:** %t\n", item.Reversible)
		if len(item.AffectedResources) > 0 {
			fmt.Fprintf(&b, "- **Affects:** %s\n", strings.Join(item.AffectedResources, ", "))
		}
		if len(item.AvailableScopes) > 0 {
			fmt.Fprintf(&b, "- **Scopes:** %s\n", strings.Join(item.AvailableScopes, ", "))
		}
		if args := strings.TrimSpace(item.Arguments); args != "" && args != "{}" {
			fmt.Fprintf(&b, "\n```json\n%s\n```\n", args)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// PayloadText renders a compact plain-text notification for chat
// channels that do not take markdown headings well.
func PayloadText(rec suspend.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Approval needed: suspension %s (conversation %s)\n", rec.ID, rec.ConversationID)
	for _, item := range rec.Payload.Items {
		fmt.Fprintf(&b, "• %s [%s]", item.Summary, item.Risk)
		if !item.Reversible {
			b.WriteString(" (irreversible)")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Resolve with: aegis approval review %s", rec.ID)
	return b.String()
}
