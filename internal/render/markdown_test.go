package render

import (
	"strings"
	"testing"
	"time"

	"github.com/aegisd/aegis/internal/suspend"
)

func sampleRecord() suspend.Record {
	return suspend.Record{
		ID:             "7",
		ConversationID: "thread-1",
		Principal:      "user-1",
		Status:         suspend.StatusPending,
		CreatedAt:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Payload: suspend.Payload{
			ConversationID: "thread-1",
			Items: []suspend.PendingItem{
				{
					CallID:            "call-1",
					Tool:              "obp_requests",
					OperationKey:      "obp_requests:POST:/banks/b1/accounts",
					Summary:           "POST request to /banks/b1/accounts",
					Risk:              "dangerous",
					Reversible:        false,
					AffectedResources: []string{"banks/b1", "accounts"},
					AvailableScopes:   []string{"once", "conversation"},
					Arguments:         `{"method":"POST","path":"/banks/b1/accounts"}`,
				},
			},
			SingleItem: true,
		},
	}
}

func TestPayloadMarkdown(t *testing.T) {
	md := PayloadMarkdown(sampleRecord())

	for _, want := range []string{
		"# Suspension 7",
		"## POST request to /banks/b1/accounts",
		"`obp_requests:POST:/banks/b1/accounts`",
		"**Risk:** dangerous",
		"**Reversible:** false",
		"banks/b1, accounts",
		"One call awaits review.",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestPayloadText(t *testing.T) {
	text := PayloadText(sampleRecord())

	if !strings.Contains(text, "suspension 7") {
		t.Errorf("text missing suspension id:\n%s", text)
	}
	if !strings.Contains(text, "(irreversible)") {
		t.Errorf("text missing irreversibility flag:\n%s", text)
	}
	if !strings.Contains(text, "aegis approval review 7") {
		t.Errorf("text missing resolve hint:\n%s", text)
	}
}
