package policy

import (
	"encoding/json"
	"strings"
)

// RiskLevel classifies how dangerous a tool operation is when no pattern
// matches it.
type RiskLevel string

const (
	RiskSafe      RiskLevel = "safe"
	RiskModerate  RiskLevel = "moderate"
	RiskDangerous RiskLevel = "dangerous"
	RiskCritical  RiskLevel = "critical"
)

var riskRank = map[RiskLevel]int{
	RiskSafe:      0,
	RiskModerate:  1,
	RiskDangerous: 2,
	RiskCritical:  3,
}

// Rank returns the ordering position of the risk level. Unknown levels rank
// above critical so malformed input fails closed.
func (r RiskLevel) Rank() int {
	if rank, ok := riskRank[normalizeRisk(r)]; ok {
		return rank
	}
	return riskRank[RiskCritical] + 1
}

// Action is the classification outcome for a tool call.
type Action string

const (
	ActionAutoApprove     Action = "auto_approve"
	ActionAlwaysDeny      Action = "always_deny"
	ActionRequireApproval Action = "require_approval"
)

// Scope is the durability tier of a cached approval decision, ordered by
// increasing blast radius.
type Scope string

const (
	ScopeOnce         Scope = "once"
	ScopeConversation Scope = "conversation"
	ScopePrincipal    Scope = "principal"
	ScopeDeployment   Scope = "deployment"
)

var scopeRank = map[Scope]int{
	ScopeOnce:         0,
	ScopeConversation: 1,
	ScopePrincipal:    2,
	ScopeDeployment:   3,
}

// Rank returns the ordering position of the scope, or -1 for unknown scopes.
func (s Scope) Rank() int {
	if rank, ok := scopeRank[normalizeScope(s)]; ok {
		return rank
	}
	return -1
}

// Valid reports whether the scope is one of the supported values.
func (s Scope) Valid() bool {
	return s.Rank() >= 0
}

// Pattern is one ordered match rule in a tool's approval policy. Method is
// compared case-insensitively; Path supports glob wildcards. "*" (or empty)
// matches anything.
type Pattern struct {
	Method string `json:"method" mapstructure:"method"`
	Path   string `json:"path" mapstructure:"path"`
	Action Action `json:"action" mapstructure:"action"`
	Reason string `json:"reason,omitempty" mapstructure:"reason"`
}

// Matches reports whether the pattern applies to the given call fields.
func (p Pattern) Matches(call Call) bool {
	if !matchMethod(p.Method, call.Method) {
		return false
	}
	return matchGlob(p.Path, call.Path)
}

// ToolPolicy is the registered approval metadata for one tool identity.
type ToolPolicy struct {
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	RequiresAuth bool      `json:"requires_auth,omitempty"`
	DefaultRisk  RiskLevel `json:"default_risk"`
	Patterns     []Pattern `json:"patterns,omitempty"`
	// Scopes lists the approval scopes a decision for this tool may be
	// persisted at. ScopeOnce is always implicitly available.
	Scopes []Scope `json:"scopes,omitempty"`
}

// SupportsScope reports whether decisions for this tool may be persisted at
// the given scope. ScopeOnce is always supported.
func (tp ToolPolicy) SupportsScope(s Scope) bool {
	s = normalizeScope(s)
	if s == ScopeOnce {
		return true
	}
	for _, allowed := range tp.Scopes {
		if normalizeScope(allowed) == s {
			return true
		}
	}
	return false
}

// HighestScopeAtMost returns the highest supported scope whose rank does not
// exceed the requested one, falling back to ScopeOnce.
func (tp ToolPolicy) HighestScopeAtMost(requested Scope) Scope {
	best := ScopeOnce
	for _, allowed := range tp.Scopes {
		allowed = normalizeScope(allowed)
		if !allowed.Valid() || allowed.Rank() > requested.Rank() {
			continue
		}
		if allowed.Rank() > best.Rank() {
			best = allowed
		}
	}
	return best
}

// Verdict is the result of classifying one tool call.
type Verdict struct {
	Action Action
	Reason string
}

// Call carries the small fixed set of fields pattern matching and operation
// key derivation work from. Arbitrary argument shapes are never reflected
// over; tools without these fields simply leave them empty.
type Call struct {
	OperationID string `json:"operation_id,omitempty"`
	Method      string `json:"method,omitempty"`
	Path        string `json:"path,omitempty"`
}

// ParseCall extracts the matcher fields from a raw tool-call argument
// payload. Malformed JSON yields an empty Call rather than an error: the
// caller still gets a usable (if coarse) classification.
func ParseCall(argsJSON string) Call {
	trimmed := strings.TrimSpace(argsJSON)
	if trimmed == "" {
		return Call{}
	}
	var call Call
	if err := json.Unmarshal([]byte(trimmed), &call); err != nil {
		return Call{}
	}
	call.OperationID = strings.TrimSpace(call.OperationID)
	call.Method = strings.ToUpper(strings.TrimSpace(call.Method))
	call.Path = strings.TrimSpace(call.Path)
	return call
}

func normalizeRisk(r RiskLevel) RiskLevel {
	return RiskLevel(strings.ToLower(strings.TrimSpace(string(r))))
}

func normalizeScope(s Scope) Scope {
	return Scope(strings.ToLower(strings.TrimSpace(string(s))))
}

func matchMethod(pattern, method string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || pattern == "*" {
		return true
	}
	return strings.EqualFold(pattern, strings.TrimSpace(method))
}
