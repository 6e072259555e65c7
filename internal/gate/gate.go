package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/aegisd/aegis/internal/audit"
	"github.com/aegisd/aegis/internal/bus"
	"github.com/aegisd/aegis/internal/decision"
	"github.com/aegisd/aegis/internal/metrics"
	"github.com/aegisd/aegis/internal/policy"
	"github.com/aegisd/aegis/internal/session"
	"github.com/aegisd/aegis/internal/suspend"
)

// Notifier pushes a new suspension to a human channel. Delivery failures
// are logged, never fatal: the suspension is already durable.
type Notifier interface {
	NotifySuspension(ctx context.Context, rec suspend.Record) error
}

// Options wires a Gate's collaborators.
type Options struct {
	Registry    *policy.Registry
	Decisions   *decision.Store
	Suspensions *suspend.Service
	Sessions    *session.Manager
	Audit       *audit.Writer
	Metrics     *metrics.GateMetrics
	Notifier    Notifier
	Logger      *slog.Logger
}

// Gate authorizes batches of tool calls before they reach the banking
// API. Every batch either resolves fully from policy and cached decisions
// or suspends once for human review.
type Gate struct {
	registry    *policy.Registry
	decisions   *decision.Store
	suspensions *suspend.Service
	sessions    *session.Manager
	auditor     *audit.Writer
	metrics     *metrics.GateMetrics
	notifier    Notifier
	logger      *slog.Logger
	now         func() time.Time

	// Serializes batch admission so the one-outstanding-suspension
	// invariant holds under concurrent submissions.
	mu sync.Mutex
}

// New creates a gate.
func New(opts Options) (*Gate, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("policy registry is required")
	}
	if opts.Decisions == nil {
		return nil, fmt.Errorf("decision store is required")
	}
	if opts.Suspensions == nil {
		return nil, fmt.Errorf("suspension service is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		registry:    opts.Registry,
		decisions:   opts.Decisions,
		suspensions: opts.Suspensions,
		sessions:    opts.Sessions,
		auditor:     opts.Audit,
		metrics:     opts.Metrics,
		notifier:    opts.Notifier,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Authorize classifies a batch of tool calls. When every call resolves
// from policy rules and cached decisions, the batch returns resolved with
// a terminal disposition per call. Otherwise the whole batch suspends
// exactly once, with every unresolved call collected into one payload.
//
// A conversation with an outstanding suspension cannot admit a new batch.
func (g *Gate) Authorize(ctx context.Context, conversationID, principal string, calls []schema.ToolCall) (BatchResult, error) {
	if len(calls) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return BatchResult{}, fmt.Errorf("conversation id is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	conv := g.sessions.GetOrCreate(conversationID)
	if id := conv.ActiveSuspensionID(); id != "" {
		return BatchResult{}, fmt.Errorf("%w: %s", ErrSuspensionOutstanding, id)
	}

	batchID := bus.BatchIDFromContext(ctx)
	if batchID == "" {
		batchID = bus.NewBatchID()
	}

	actions := ActionsFromToolCalls(calls)
	results, items := g.classify(ctx, conv, conversationID, principal, batchID, actions, false)

	if len(items) == 0 {
		if err := g.sessions.Save(conv); err != nil {
			return BatchResult{}, err
		}
		g.recordBatch(false)
		return BatchResult{BatchID: batchID, Results: results}, nil
	}

	rec, err := g.suspensions.Create(suspend.CreateInput{
		ConversationID: conversationID,
		Principal:      principal,
		BatchID:        batchID,
		Batch:          snapshotBatch(actions),
		Payload:        buildPayload(conversationID, principal, batchID, items),
	})
	if err != nil {
		return BatchResult{}, err
	}

	conv.SetActiveSuspension(rec.ID)
	if err := g.sessions.Save(conv); err != nil {
		return BatchResult{}, err
	}

	g.appendAudit(ctx, audit.Event{
		Type:           audit.TypeSuspended,
		BatchID:        batchID,
		ConversationID: conversationID,
		Principal:      principal,
		SuspensionID:   rec.ID,
		Result:         fmt.Sprintf("%d of %d calls await review", len(items), len(actions)),
	})
	g.recordBatch(true)

	if g.notifier != nil {
		if err := g.notifier.NotifySuspension(ctx, rec); err != nil {
			g.logger.Warn("suspension notification failed", "suspension_id", rec.ID, "error", err)
		}
	}

	payload := rec.Payload
	return BatchResult{
		BatchID:      batchID,
		Suspended:    true,
		SuspensionID: rec.ID,
		Results:      results,
		Payload:      &payload,
	}, nil
}

// Resume applies human decisions to a suspended batch and re-runs
// classification over the persisted snapshot. Items resolved by rules or
// caches resolve the same way again; items covered by a human decision
// take it, persisting any scope beyond once; items covered by neither are
// denied for this batch only.
func (g *Gate) Resume(ctx context.Context, input ResumeInput) (BatchResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, err := g.suspensions.Get(input.SuspensionID)
	if err != nil {
		return BatchResult{}, err
	}
	if rec.Status != suspend.StatusPending {
		return BatchResult{}, fmt.Errorf("%w: %s is %s", suspend.ErrNotPending, rec.ID, rec.Status)
	}

	conv := g.sessions.GetOrCreate(rec.ConversationID)

	actions := make([]PendingAction, 0, len(rec.Batch))
	for _, bc := range rec.Batch {
		actions = append(actions, ActionFromBatchCall(bc))
	}

	results, _ := g.classify(ctx, conv, rec.ConversationID, rec.Principal, rec.BatchID, actions, true)

	for i := range results {
		if results[i].Disposition != DispositionPending {
			continue
		}
		dec, ok := decisionFor(input, results[i].CallID)
		if !ok {
			// No decision reached this item. Fail closed for this batch
			// without poisoning any cache tier.
			results[i].Disposition = DispositionDenied
			results[i].Source = SourceFailClosed
			results[i].Reason = "no decision provided"
			g.recordCall(metrics.CallHumanDenied)
			continue
		}
		results[i] = g.applyDecision(ctx, conv, rec, actions, results[i], dec, input.DecidedBy)
	}

	if _, err := g.suspensions.Resolve(rec.ID); err != nil {
		return BatchResult{}, err
	}
	conv.SetActiveSuspension("")
	if err := g.sessions.Save(conv); err != nil {
		return BatchResult{}, err
	}

	g.appendAudit(ctx, audit.Event{
		Type:           audit.TypeResumed,
		BatchID:        rec.BatchID,
		ConversationID: rec.ConversationID,
		Principal:      rec.Principal,
		SuspensionID:   rec.ID,
		Result:         fmt.Sprintf("resumed by %s", strings.TrimSpace(input.DecidedBy)),
	})
	if g.metrics != nil {
		if _, err := g.metrics.RecordResume(); err != nil {
			g.logger.Warn("failed to persist gate metrics", "error", err)
		}
	}

	return BatchResult{BatchID: rec.BatchID, Results: results}, nil
}

// ExpireSweep expires overdue suspensions and unblocks their
// conversations so new batches can be admitted.
func (g *Gate) ExpireSweep(ctx context.Context) ([]suspend.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	expired, err := g.suspensions.ExpirePending()
	if err != nil {
		return nil, err
	}

	for _, rec := range expired {
		conv := g.sessions.GetOrCreate(rec.ConversationID)
		if conv.ActiveSuspensionID() == rec.ID {
			conv.SetActiveSuspension("")
			if err := g.sessions.Save(conv); err != nil {
				return expired, err
			}
		}
		g.appendAudit(ctx, audit.Event{
			Type:           audit.TypeExpired,
			BatchID:        rec.BatchID,
			ConversationID: rec.ConversationID,
			SuspensionID:   rec.ID,
			Result:         "suspension expired",
		})
	}

	if g.metrics != nil && len(expired) > 0 {
		if _, err := g.metrics.RecordExpired(len(expired)); err != nil {
			g.logger.Warn("failed to persist gate metrics", "error", err)
		}
	}
	return expired, nil
}

// classify runs every action through policy rules and the decision tiers.
// It returns one result per action plus the enriched payload items for
// those still pending. A replay pass (resumption over a persisted batch)
// suppresses per-call metrics and audit events, which were already emitted
// when the batch first arrived.
func (g *Gate) classify(ctx context.Context, conv *session.Conversation, conversationID, principal, batchID string, actions []PendingAction, replay bool) ([]CallResult, []suspend.PendingItem) {
	results := make([]CallResult, 0, len(actions))
	items := make([]suspend.PendingItem, 0)

	for _, action := range actions {
		result := CallResult{
			CallID:       action.CallID,
			Tool:         action.Tool,
			OperationKey: action.OperationKey,
		}

		verdict, classifyErr := g.registry.Classify(action.Tool, action.Call)
		tool, known := g.lookupTool(action.Tool)

		switch {
		case classifyErr != nil:
			// Unknown tool: never auto-approve, always escalate.
			result.Disposition = DispositionPending
			result.Reason = "tool has no registered policy"
			items = append(items, buildItem(action, tool, false))
			if !replay {
				g.recordCall(metrics.CallEscalated)
			}

		case verdict.Action == policy.ActionAutoApprove:
			result.Disposition = DispositionApproved
			result.Source = SourceRule
			result.Reason = verdict.Reason
			if !replay {
				g.recordCall(metrics.CallAutoApproved)
				g.appendAudit(ctx, g.callEvent(audit.TypeAutoApproved, conversationID, principal, batchID, action, verdict.Reason))
			}

		case verdict.Action == policy.ActionAlwaysDeny:
			result.Disposition = DispositionDenied
			result.Source = SourceRule
			result.Reason = verdict.Reason
			if !replay {
				g.recordCall(metrics.CallAutoDenied)
				g.appendAudit(ctx, g.callEvent(audit.TypeAutoDenied, conversationID, principal, batchID, action, verdict.Reason))
			}

		default:
			res, ok, checkErr := g.decisions.Check(ctx, conv, principal, action.OperationKey)
			if checkErr != nil && g.metrics != nil {
				if _, err := g.metrics.RecordPrincipalError(); err != nil {
					g.logger.Warn("failed to persist gate metrics", "error", err)
				}
			}
			if ok {
				result.Source = sourceForScope(res.Scope)
				result.Reason = fmt.Sprintf("cached decision at %s scope", res.Scope)
				if res.Approved {
					result.Disposition = DispositionApproved
				} else {
					result.Disposition = DispositionDenied
				}
				if !replay {
					g.recordTierHit(res.Scope)
					g.appendAudit(ctx, g.callEvent(audit.TypeCacheHit, conversationID, principal, batchID, action, string(result.Disposition)))
				}
			} else {
				result.Disposition = DispositionPending
				result.Reason = verdict.Reason
				items = append(items, buildItem(action, tool, known))
				if !replay {
					g.recordCall(metrics.CallEscalated)
				}
			}
		}

		results = append(results, result)
	}

	return results, items
}

// applyDecision resolves one pending item with a human decision and
// persists it at the decided scope.
func (g *Gate) applyDecision(ctx context.Context, conv *session.Conversation, rec suspend.Record, actions []PendingAction, result CallResult, dec Decision, decidedBy string) CallResult {
	result.Source = SourceHuman
	result.Reason = dec.Reason
	if dec.Approved {
		result.Disposition = DispositionApproved
	} else {
		result.Disposition = DispositionDenied
		if result.Reason == "" {
			result.Reason = fmt.Sprintf("denied by %s", strings.TrimSpace(decidedBy))
		}
		g.recordCall(metrics.CallHumanDenied)
	}

	scope := dec.Scope
	if scope == "" {
		scope = policy.ScopeOnce
	}

	scopeNote := string(scope)
	if scope != policy.ScopeOnce && scope.Valid() {
		action := findAction(actions, result.CallID)
		tool, _ := g.lookupTool(result.Tool)
		saved, err := g.decisions.Save(ctx, conv, rec.Principal, action.OperationKey, tool, scope, dec.Approved)
		if err != nil {
			g.logger.Warn("failed to persist human decision", "operation_key", action.OperationKey, "error", err)
			scopeNote = string(policy.ScopeOnce)
		} else {
			scopeNote = string(saved.Scope)
			if saved.Downgraded {
				g.logger.Info("decision scope downgraded",
					"operation_key", action.OperationKey,
					"requested", string(scope), "applied", string(saved.Scope))
			}
		}
	}

	g.appendAudit(ctx, audit.Event{
		Type:           audit.TypeHumanDecision,
		BatchID:        rec.BatchID,
		ConversationID: rec.ConversationID,
		Principal:      rec.Principal,
		Tool:           result.Tool,
		OperationKey:   result.OperationKey,
		SuspensionID:   rec.ID,
		Result:         string(result.Disposition),
		Scope:          scopeNote,
		Reason:         fmt.Sprintf("decided by %s", strings.TrimSpace(decidedBy)),
	})
	return result
}

func (g *Gate) lookupTool(name string) (policy.ToolPolicy, bool) {
	tool, err := g.registry.Get(name)
	if err != nil {
		return policy.ToolPolicy{Name: name}, false
	}
	return tool, true
}

func (g *Gate) callEvent(eventType, conversationID, principal, batchID string, action PendingAction, result string) audit.Event {
	return audit.Event{
		Type:           eventType,
		BatchID:        batchID,
		ConversationID: conversationID,
		Principal:      principal,
		Tool:           action.Tool,
		OperationKey:   action.OperationKey,
		Result:         result,
	}
}

func (g *Gate) appendAudit(ctx context.Context, event audit.Event) {
	if g.auditor == nil {
		return
	}
	event.Time = g.now().UTC()
	if event.RequestID == "" {
		event.RequestID = bus.RequestIDFromContext(ctx)
	}
	if err := g.auditor.Append(event); err != nil {
		g.logger.Warn("failed to append audit event", "type", event.Type, "error", err)
	}
}

func (g *Gate) recordBatch(suspended bool) {
	if g.metrics == nil {
		return
	}
	if _, err := g.metrics.RecordBatch(suspended); err != nil {
		g.logger.Warn("failed to persist gate metrics", "error", err)
	}
}

func (g *Gate) recordCall(outcome string) {
	if g.metrics == nil {
		return
	}
	if _, err := g.metrics.RecordCall(outcome); err != nil {
		g.logger.Warn("failed to persist gate metrics", "error", err)
	}
}

func (g *Gate) recordTierHit(scope policy.Scope) {
	if g.metrics == nil {
		return
	}
	if _, err := g.metrics.RecordTierHit(string(scope)); err != nil {
		g.logger.Warn("failed to persist gate metrics", "error", err)
	}
}

func decisionFor(input ResumeInput, callID string) (Decision, bool) {
	if dec, ok := input.PerCall[callID]; ok {
		return dec, true
	}
	if input.Uniform != nil {
		return *input.Uniform, true
	}
	return Decision{}, false
}

func findAction(actions []PendingAction, callID string) PendingAction {
	for _, action := range actions {
		if action.CallID == callID {
			return action
		}
	}
	return PendingAction{}
}

func sourceForScope(scope policy.Scope) Source {
	switch scope {
	case policy.ScopeConversation:
		return SourceConversation
	case policy.ScopePrincipal:
		return SourcePrincipal
	case policy.ScopeDeployment:
		return SourceDeployment
	default:
		return SourceRule
	}
}
