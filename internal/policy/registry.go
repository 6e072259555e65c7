package policy

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
)

var (
	// ErrDuplicateTool is returned when a tool identity is registered twice.
	// Registration happens once at startup, so callers treat this as fatal.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrUnknownTool is returned when classifying a tool identity that was
	// never registered. Callers must fail closed and require approval.
	ErrUnknownTool = errors.New("unknown tool")
)

// Registry is the process-wide table of tool approval policies. It is
// populated at startup and read-only afterwards; Classify is a pure function
// over the registered state.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ToolPolicy
}

// NewRegistry creates an empty policy registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ToolPolicy)}
}

// Register adds a tool policy. Two tools must not share an identity.
func (r *Registry) Register(tp ToolPolicy) error {
	name := strings.TrimSpace(tp.Name)
	if name == "" {
		return fmt.Errorf("tool policy missing name")
	}
	tp.Name = name
	if tp.DefaultRisk == "" {
		tp.DefaultRisk = RiskModerate
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = tp
	return nil
}

// Get retrieves a tool policy by identity.
func (r *Registry) Get(name string) (ToolPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tp, ok := r.tools[strings.TrimSpace(name)]
	if !ok {
		return ToolPolicy{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return tp, nil
}

// List returns all registered policies. Order is not guaranteed; callers
// sort for display.
func (r *Registry) List() []ToolPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ToolPolicy, 0, len(r.tools))
	for _, tp := range r.tools {
		result = append(result, tp)
	}
	return result
}

// Classify evaluates the tool's pattern list top-to-bottom and returns the
// first match's action. With no match, tools riskier than safe require
// approval and safe tools are auto-approved. Unregistered tools return
// ErrUnknownTool; the gate treats that as require_approval.
func (r *Registry) Classify(name string, call Call) (Verdict, error) {
	tp, err := r.Get(name)
	if err != nil {
		return Verdict{Action: ActionRequireApproval}, err
	}

	for _, p := range tp.Patterns {
		if !p.Matches(call) {
			continue
		}
		return Verdict{Action: p.Action, Reason: p.Reason}, nil
	}

	if tp.DefaultRisk.Rank() > RiskSafe.Rank() {
		return Verdict{
			Action: ActionRequireApproval,
			Reason: fmt.Sprintf("default risk %s requires approval", tp.DefaultRisk),
		}, nil
	}
	return Verdict{Action: ActionAutoApprove, Reason: "default risk safe"}, nil
}

// FromToolInfo builds a tool policy skeleton from an eino tool descriptor.
// Risk, patterns and scopes are filled in by the caller.
func FromToolInfo(info *schema.ToolInfo) ToolPolicy {
	if info == nil {
		return ToolPolicy{}
	}
	return ToolPolicy{
		Name:        strings.TrimSpace(info.Name),
		Description: strings.TrimSpace(info.Desc),
	}
}
