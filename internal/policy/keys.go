package policy

import "strings"

// OperationKey builds the cache/approval granularity key for one call. The
// operation part prefers the semantic operation id supplied by the caller,
// falls back to "METHOD:path" when the arguments carry request fields, and
// finally to the tool identity itself. Two calls with the same key are the
// same decision point regardless of differing argument bodies.
func OperationKey(tool string, call Call) string {
	tool = strings.TrimSpace(tool)
	switch {
	case call.OperationID != "":
		return tool + ":" + call.OperationID
	case call.Method != "" && call.Path != "":
		return tool + ":" + call.Method + ":" + call.Path
	default:
		return tool + ":" + tool
	}
}
