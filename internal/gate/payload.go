package gate

import (
	"fmt"
	"strings"

	"github.com/aegisd/aegis/internal/policy"
	"github.com/aegisd/aegis/internal/suspend"
)

// buildItem enriches one unresolved call for human review: a one-line
// summary, the assessed risk, reversibility, the resources the call
// touches, and the scopes the approver may choose from.
func buildItem(action PendingAction, tool policy.ToolPolicy, known bool) suspend.PendingItem {
	item := suspend.PendingItem{
		CallID:       action.CallID,
		Tool:         action.Tool,
		OperationKey: action.OperationKey,
		Summary:      summarizeAction(action),
		Method:       action.Call.Method,
		Path:         action.Call.Path,
		Arguments:    action.Arguments,
	}

	if known {
		item.Risk = string(policy.AssessRisk(tool, action.Call))
		item.Reversible = policy.Reversible(tool, action.Call)
		item.AvailableScopes = availableScopes(tool)
	} else {
		// Unknown tools carry no policy; surface them at the highest risk
		// with no persistence options.
		item.Risk = string(policy.RiskCritical)
		item.Reversible = false
		item.AvailableScopes = []string{string(policy.ScopeOnce)}
	}

	item.AffectedResources = affectedResources(action.Call.Path)
	return item
}

func buildPayload(conversationID, principal, batchID string, items []suspend.PendingItem) suspend.Payload {
	return suspend.Payload{
		ConversationID: conversationID,
		Principal:      principal,
		BatchID:        batchID,
		Items:          items,
		SingleItem:     len(items) == 1,
	}
}

func summarizeAction(action PendingAction) string {
	if action.Call.Method != "" && action.Call.Path != "" {
		return fmt.Sprintf("%s request to %s", action.Call.Method, action.Call.Path)
	}
	if action.Call.OperationID != "" {
		return fmt.Sprintf("%s via %s", action.Call.OperationID, action.Tool)
	}
	return fmt.Sprintf("call to %s", action.Tool)
}

// affectedResources extracts resource/id pairs from a REST-style path, so
// "/banks/b1/accounts/a2/transactions" reads as banks/b1, accounts/a2,
// transactions.
func affectedResources(path string) []string {
	segments := make([]string, 0, 8)
	for _, seg := range strings.Split(path, "/") {
		if seg = strings.TrimSpace(seg); seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return nil
	}

	resources := make([]string, 0, (len(segments)+1)/2)
	for i := 0; i < len(segments); i += 2 {
		if i+1 < len(segments) {
			resources = append(resources, segments[i]+"/"+segments[i+1])
		} else {
			resources = append(resources, segments[i])
		}
	}
	return resources
}

func availableScopes(tool policy.ToolPolicy) []string {
	scopes := []string{string(policy.ScopeOnce)}
	for _, scope := range []policy.Scope{policy.ScopeConversation, policy.ScopePrincipal} {
		if tool.SupportsScope(scope) {
			scopes = append(scopes, string(scope))
		}
	}
	return scopes
}
