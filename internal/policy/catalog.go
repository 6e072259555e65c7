package policy

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultCatalog returns the built-in banking tool policies. Deployments
// override or extend it with a policy file.
func DefaultCatalog() []ToolPolicy {
	return []ToolPolicy{
		{
			Name:         "obp_requests",
			Description:  "Executes requests against the Open Bank Project API",
			RequiresAuth: true,
			DefaultRisk:  RiskModerate,
			Patterns: []Pattern{
				{Method: "GET", Path: "*", Action: ActionAutoApprove, Reason: "read-only request"},
				{Method: "HEAD", Path: "*", Action: ActionAutoApprove, Reason: "read-only request"},
				{Method: "DELETE", Path: "/obp/*/banks/*", Action: ActionAlwaysDeny, Reason: "bank deletion is not allowed"},
			},
			Scopes: []Scope{ScopeConversation, ScopePrincipal},
		},
		{
			Name:        "endpoint_retrieval_tool",
			Description: "Retrieves matching API endpoint documentation",
			DefaultRisk: RiskSafe,
		},
		{
			Name:        "glossary_retrieval_tool",
			Description: "Retrieves banking glossary definitions",
			DefaultRisk: RiskSafe,
		},
	}
}

// LoadFile reads tool policies from a JSON file: a top-level array of
// tool policy objects.
func LoadFile(path string) ([]ToolPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var policies []ToolPolicy
	if err := json.Unmarshal(data, &policies); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	for i, tp := range policies {
		if tp.Name == "" {
			return nil, fmt.Errorf("policy file entry %d has no tool name", i)
		}
	}
	return policies, nil
}

// Seed registers a set of policies, overriding catalog entries with
// same-named file entries before registration.
func Seed(reg *Registry, catalog, overrides []ToolPolicy) error {
	byName := make(map[string]ToolPolicy, len(catalog)+len(overrides))
	order := make([]string, 0, len(catalog)+len(overrides))
	for _, tp := range catalog {
		if _, ok := byName[tp.Name]; !ok {
			order = append(order, tp.Name)
		}
		byName[tp.Name] = tp
	}
	for _, tp := range overrides {
		if _, ok := byName[tp.Name]; !ok {
			order = append(order, tp.Name)
		}
		byName[tp.Name] = tp
	}

	for _, name := range order {
		if err := reg.Register(byName[name]); err != nil {
			return err
		}
	}
	return nil
}
