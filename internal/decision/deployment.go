package decision

// DeploymentRule is one administrator-configured decision, keyed by
// operation key.
type DeploymentRule struct {
	OperationKey string `json:"operation_key" mapstructure:"operation_key"`
	Approved     bool   `json:"approved" mapstructure:"approved"`
	Reason       string `json:"reason,omitempty" mapstructure:"reason"`
}

// DeploymentStore is the read-only deployment tier. Rules come from
// configuration at startup and never change at runtime.
type DeploymentStore struct {
	rules map[string]DeploymentRule
}

// NewDeploymentStore builds the deployment tier from configured rules.
// Later duplicates of an operation key override earlier ones.
func NewDeploymentStore(rules []DeploymentRule) *DeploymentStore {
	indexed := make(map[string]DeploymentRule, len(rules))
	for _, rule := range rules {
		if rule.OperationKey == "" {
			continue
		}
		indexed[rule.OperationKey] = rule
	}
	return &DeploymentStore{rules: indexed}
}

// Get looks up the deployment decision for an operation key.
func (s *DeploymentStore) Get(opKey string) (DeploymentRule, bool) {
	rule, ok := s.rules[opKey]
	return rule, ok
}

// Len returns the number of configured rules.
func (s *DeploymentStore) Len() int {
	return len(s.rules)
}
