package gate

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/aegisd/aegis/internal/policy"
	"github.com/aegisd/aegis/internal/suspend"
)

// PendingAction is one tool call normalized for classification.
type PendingAction struct {
	CallID       string
	Tool         string
	Arguments    string
	Call         policy.Call
	OperationKey string
}

// ActionFromToolCall normalizes a model tool call into a pending action.
// Matcher fields come from the call arguments; malformed arguments leave
// them empty and the operation key falls back to the tool name.
func ActionFromToolCall(tc schema.ToolCall) PendingAction {
	tool := strings.TrimSpace(tc.Function.Name)
	call := policy.ParseCall(tc.Function.Arguments)
	return PendingAction{
		CallID:       strings.TrimSpace(tc.ID),
		Tool:         tool,
		Arguments:    tc.Function.Arguments,
		Call:         call,
		OperationKey: policy.OperationKey(tool, call),
	}
}

// ActionsFromToolCalls normalizes a whole batch.
func ActionsFromToolCalls(calls []schema.ToolCall) []PendingAction {
	actions := make([]PendingAction, 0, len(calls))
	for _, tc := range calls {
		actions = append(actions, ActionFromToolCall(tc))
	}
	return actions
}

// ActionFromBatchCall rebuilds a pending action from a persisted batch
// snapshot, re-deriving matcher fields so resumption classifies the exact
// calls that were suspended.
func ActionFromBatchCall(bc suspend.BatchCall) PendingAction {
	call := policy.ParseCall(bc.Arguments)
	return PendingAction{
		CallID:       bc.CallID,
		Tool:         bc.Tool,
		Arguments:    bc.Arguments,
		Call:         call,
		OperationKey: policy.OperationKey(bc.Tool, call),
	}
}

func snapshotBatch(actions []PendingAction) []suspend.BatchCall {
	batch := make([]suspend.BatchCall, 0, len(actions))
	for _, action := range actions {
		batch = append(batch, suspend.BatchCall{
			CallID:    action.CallID,
			Tool:      action.Tool,
			Arguments: action.Arguments,
		})
	}
	return batch
}
