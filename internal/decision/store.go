package decision

import (
	"context"
	"log/slog"
	"time"

	"github.com/aegisd/aegis/internal/policy"
	"github.com/aegisd/aegis/internal/session"
)

// Store resolves and persists approval decisions across the three cache
// tiers. Check walks conversation, then principal, then deployment; the
// first tier holding a decision wins, approved or not.
type Store struct {
	principal  *PrincipalStore
	deployment *DeploymentStore
	logger     *slog.Logger
	now        func() time.Time
}

// NewStore wires the tiered decision store. principal may be nil when no
// shared backend is configured; the tier is then skipped entirely.
func NewStore(principal *PrincipalStore, deployment *DeploymentStore, logger *slog.Logger) *Store {
	if deployment == nil {
		deployment = NewDeploymentStore(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		principal:  principal,
		deployment: deployment,
		logger:     logger,
		now:        time.Now,
	}
}

// Check resolves an operation key against the cache tiers. A false second
// return means no tier holds a decision; the caller must escalate to a
// human. A non-nil error reports a principal-tier outage: the tier was
// skipped and left the operation unresolved rather than approving it, and
// lower tiers were still consulted.
func (s *Store) Check(ctx context.Context, conv *session.Conversation, principal, opKey string) (Resolution, bool, error) {
	if conv != nil {
		if entry, ok := conv.Decision(opKey); ok {
			return Resolution{Scope: policy.ScopeConversation, Approved: entry.Approved}, true, nil
		}
	}

	var tierErr error
	if s.principal != nil && principal != "" {
		rec, ok, err := s.principal.Get(ctx, principal, opKey)
		if err != nil {
			s.logger.Warn("principal decision tier unavailable, treating as unresolved",
				"operation_key", opKey, "error", err)
			tierErr = err
		} else if ok {
			return Resolution{Scope: policy.ScopePrincipal, Approved: rec.Approved}, true, nil
		}
	}

	if rule, ok := s.deployment.Get(opKey); ok {
		return Resolution{Scope: policy.ScopeDeployment, Approved: rule.Approved}, true, tierErr
	}

	return Resolution{}, false, tierErr
}

// Save persists a decision at the requested scope. Scopes the tool does
// not support are downgraded to its highest supported scope at or below
// the request; deployment is never writable at runtime and downgrades the
// same way. ScopeOnce is not a persistence scope and fails with
// ErrInvalidScope.
//
// A principal-tier write that fails lands at conversation scope instead,
// so the human's decision is never lost to a backend outage.
func (s *Store) Save(ctx context.Context, conv *session.Conversation, principal, opKey string, tool policy.ToolPolicy, scope policy.Scope, approved bool) (SaveResult, error) {
	if scope == policy.ScopeOnce {
		return SaveResult{}, ErrInvalidScope
	}
	if !scope.Valid() {
		return SaveResult{}, ErrInvalidScope
	}

	target := scope
	if target == policy.ScopeDeployment {
		target = policy.ScopePrincipal
	}
	effective := tool.HighestScopeAtMost(target)
	downgraded := effective != scope

	if effective == policy.ScopePrincipal && (s.principal == nil || principal == "") {
		effective = policy.ScopeConversation
		downgraded = true
	}

	switch effective {
	case policy.ScopePrincipal:
		if err := s.principal.Save(ctx, principal, opKey, approved); err != nil {
			s.logger.Warn("principal decision write failed, falling back to conversation scope",
				"operation_key", opKey, "error", err)
			effective = policy.ScopeConversation
			downgraded = true
		} else {
			// Promote into the conversation cache so later calls in this
			// conversation resolve without the backend round trip.
			if conv != nil {
				conv.SetDecision(opKey, approved, s.now())
			}
			return SaveResult{Scope: effective, Downgraded: downgraded}, nil
		}
	}

	if effective == policy.ScopeConversation {
		if conv == nil {
			return SaveResult{Scope: policy.ScopeOnce, Downgraded: true}, nil
		}
		conv.SetDecision(opKey, approved, s.now())
		return SaveResult{Scope: effective, Downgraded: downgraded}, nil
	}

	// The tool supports no persistence tier at all; the decision applies
	// to this call only.
	return SaveResult{Scope: policy.ScopeOnce, Downgraded: true}, nil
}

// Revoke removes a persisted decision from the conversation and principal
// tiers. Deployment rules are configuration and cannot be revoked here.
func (s *Store) Revoke(ctx context.Context, conv *session.Conversation, principal, opKey string) error {
	if conv != nil {
		conv.RemoveDecision(opKey)
	}
	if s.principal != nil && principal != "" {
		return s.principal.Delete(ctx, principal, opKey)
	}
	return nil
}

// PrincipalHealthy reports principal-tier backend reachability. Always
// true when no backend is configured.
func (s *Store) PrincipalHealthy(ctx context.Context) bool {
	if s.principal == nil {
		return true
	}
	return s.principal.Healthy(ctx)
}
