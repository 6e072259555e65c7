package gate

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/aegisd/aegis/internal/decision"
	"github.com/aegisd/aegis/internal/metrics"
	"github.com/aegisd/aegis/internal/policy"
	"github.com/aegisd/aegis/internal/session"
	"github.com/aegisd/aegis/internal/suspend"
)

type fakeKV struct {
	data map[string][]byte
	down bool
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string][]byte)}
}

var errKVDown = errors.New("connection refused")

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, error) {
	if f.down {
		return nil, errKVDown
	}
	data, ok := f.data[key]
	if !ok {
		return nil, decision.ErrKeyNotFound
	}
	return data, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if f.down {
		return errKVDown
	}
	f.data[key] = value
	return nil
}

func (f *fakeKV) Del(_ context.Context, keys ...string) error {
	if f.down {
		return errKVDown
	}
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeKV) Ping(context.Context) error {
	if f.down {
		return errKVDown
	}
	return nil
}

type captureNotifier struct {
	records []suspend.Record
}

func (n *captureNotifier) NotifySuspension(_ context.Context, rec suspend.Record) error {
	n.records = append(n.records, rec)
	return nil
}

type harness struct {
	gate        *Gate
	registry    *policy.Registry
	suspensions *suspend.Service
	sessions    *session.Manager
	kv          *fakeKV
	notifier    *captureNotifier
	metrics     *metrics.GateMetrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	workspace := t.TempDir()

	registry := policy.NewRegistry()
	err := registry.Register(policy.ToolPolicy{
		Name:        "obp_requests",
		DefaultRisk: policy.RiskModerate,
		Patterns: []policy.Pattern{
			{Method: "DELETE", Path: "/banks/*", Action: policy.ActionAlwaysDeny, Reason: "bank deletion is not allowed"},
			{Method: "GET", Path: "*", Action: policy.ActionAutoApprove, Reason: "reads are safe"},
		},
		Scopes: []policy.Scope{policy.ScopeConversation, policy.ScopePrincipal},
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := registry.Register(policy.ToolPolicy{Name: "glossary_retrieval", DefaultRisk: policy.RiskSafe}); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	kv := newFakeKV()
	logger := slog.New(slog.DiscardHandler)
	decisions := decision.NewStore(decision.NewPrincipalStore(kv, time.Hour), nil, logger)
	suspensions := suspend.NewService(workspace)
	sessions := session.NewManager(workspace)
	notifier := &captureNotifier{}
	gateMetrics := metrics.NewGateMetrics(workspace)

	g, err := New(Options{
		Registry:    registry,
		Decisions:   decisions,
		Suspensions: suspensions,
		Sessions:    sessions,
		Metrics:     gateMetrics,
		Notifier:    notifier,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	return &harness{
		gate:        g,
		registry:    registry,
		suspensions: suspensions,
		sessions:    sessions,
		kv:          kv,
		notifier:    notifier,
		metrics:     gateMetrics,
	}
}

func toolCall(id, name, args string) schema.ToolCall {
	return schema.ToolCall{
		ID:       id,
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}
}

func getCall(id, path string) schema.ToolCall {
	return toolCall(id, "obp_requests", `{"method":"GET","path":"`+path+`"}`)
}

func postCall(id, path string) schema.ToolCall {
	return toolCall(id, "obp_requests", `{"method":"POST","path":"`+path+`"}`)
}

func resultFor(t *testing.T, res BatchResult, callID string) CallResult {
	t.Helper()
	for _, r := range res.Results {
		if r.CallID == callID {
			return r
		}
	}
	t.Fatalf("no result for call %q in %+v", callID, res.Results)
	return CallResult{}
}

func TestAuthorize_AutoResolvedBatchNeverSuspends(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{
		getCall("call-1", "/banks"),
		toolCall("call-2", "obp_requests", `{"method":"DELETE","path":"/banks/b1"}`),
	})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if res.Suspended {
		t.Fatal("fully rule-resolved batch must not suspend")
	}
	if got := resultFor(t, res, "call-1"); got.Disposition != DispositionApproved || got.Source != SourceRule {
		t.Fatalf("unexpected result for call-1: %+v", got)
	}
	if got := resultFor(t, res, "call-2"); got.Disposition != DispositionDenied || got.Reason != "bank deletion is not allowed" {
		t.Fatalf("unexpected result for call-2: %+v", got)
	}

	pending, err := h.suspensions.List(suspend.Query{Status: suspend.StatusPending})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no suspensions, got %d", len(pending))
	}
	if len(h.notifier.records) != 0 {
		t.Fatal("no notification expected for auto-resolved batch")
	}
}

func TestAuthorize_MixedBatchSuspendsExactlyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{
		getCall("call-1", "/banks"),
		postCall("call-2", "/banks/b1/accounts"),
		postCall("call-3", "/banks/b1/accounts/a1/views"),
	})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if !res.Suspended || res.SuspensionID == "" {
		t.Fatalf("expected suspension, got %+v", res)
	}
	if res.Payload == nil || len(res.Payload.Items) != 2 {
		t.Fatalf("payload must hold only the unresolved calls: %+v", res.Payload)
	}
	if got := resultFor(t, res, "call-1"); got.Disposition != DispositionApproved {
		t.Fatalf("resolved call must keep its disposition: %+v", got)
	}
	if got := resultFor(t, res, "call-2"); got.Disposition != DispositionPending {
		t.Fatalf("unresolved call must be pending: %+v", got)
	}

	// The conversation is blocked until the suspension resolves.
	_, err = h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{getCall("call-4", "/banks")})
	if !errors.Is(err, ErrSuspensionOutstanding) {
		t.Fatalf("expected ErrSuspensionOutstanding, got %v", err)
	}

	// Other conversations are not.
	if _, err := h.gate.Authorize(ctx, "thread-2", "user-1", []schema.ToolCall{getCall("call-5", "/banks")}); err != nil {
		t.Fatalf("Authorize on other conversation error: %v", err)
	}

	if len(h.notifier.records) != 1 {
		t.Fatalf("expected one notification, got %d", len(h.notifier.records))
	}
}

func TestResume_OnceScopeDoesNotPersist(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{postCall("call-1", "/banks/b1/accounts")})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}

	resumed, err := h.gate.Resume(ctx, ResumeInput{
		SuspensionID: first.SuspensionID,
		DecidedBy:    "operator",
		Uniform:      &Decision{Approved: true, Scope: policy.ScopeOnce},
	})
	if err != nil {
		t.Fatalf("Resume error: %v", err)
	}
	if got := resultFor(t, resumed, "call-1"); got.Disposition != DispositionApproved || got.Source != SourceHuman {
		t.Fatalf("unexpected resumed result: %+v", got)
	}

	// The identical call suspends again: once means once.
	second, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{postCall("call-2", "/banks/b1/accounts")})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if !second.Suspended {
		t.Fatal("once-scoped approval must not carry to the next batch")
	}
}

func TestResume_ConversationScopeResolvesNextBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{postCall("call-1", "/banks/b1/accounts")})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if _, err := h.gate.Resume(ctx, ResumeInput{
		SuspensionID: first.SuspensionID,
		DecidedBy:    "operator",
		Uniform:      &Decision{Approved: true, Scope: policy.ScopeConversation},
	}); err != nil {
		t.Fatalf("Resume error: %v", err)
	}

	second, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{postCall("call-2", "/banks/b1/accounts")})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if second.Suspended {
		t.Fatal("conversation-scoped approval must resolve the repeat call")
	}
	if got := resultFor(t, second, "call-2"); got.Source != SourceConversation || got.Disposition != DispositionApproved {
		t.Fatalf("expected conversation cache hit, got %+v", got)
	}

	// A different conversation still escalates.
	third, err := h.gate.Authorize(ctx, "thread-2", "user-1", []schema.ToolCall{postCall("call-3", "/banks/b1/accounts")})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if !third.Suspended {
		t.Fatal("conversation-scoped approval must not leak across conversations")
	}
}

func TestResume_PrincipalScopeCrossesConversations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{postCall("call-1", "/banks/b1/accounts")})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if _, err := h.gate.Resume(ctx, ResumeInput{
		SuspensionID: first.SuspensionID,
		DecidedBy:    "operator",
		Uniform:      &Decision{Approved: true, Scope: policy.ScopePrincipal},
	}); err != nil {
		t.Fatalf("Resume error: %v", err)
	}

	second, err := h.gate.Authorize(ctx, "thread-2", "user-1", []schema.ToolCall{postCall("call-2", "/banks/b1/accounts")})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if second.Suspended {
		t.Fatal("principal-scoped approval must carry across conversations")
	}
	if got := resultFor(t, second, "call-2"); got.Source != SourcePrincipal {
		t.Fatalf("expected principal cache hit, got %+v", got)
	}

	// A different principal still escalates.
	third, err := h.gate.Authorize(ctx, "thread-3", "user-2", []schema.ToolCall{postCall("call-3", "/banks/b1/accounts")})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if !third.Suspended {
		t.Fatal("principal-scoped approval must not leak across principals")
	}
}

func TestResume_PerCallDecisionsDoNotLeak(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{
		postCall("call-a", "/banks/b1/accounts"),
		postCall("call-b", "/banks/b1/accounts/a1/views"),
		postCall("call-c", "/banks/b1/web-hooks"),
	})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}

	resumed, err := h.gate.Resume(ctx, ResumeInput{
		SuspensionID: res.SuspensionID,
		DecidedBy:    "operator",
		PerCall: map[string]Decision{
			"call-a": {Approved: true, Scope: policy.ScopeConversation},
			"call-b": {Approved: false, Scope: policy.ScopeConversation, Reason: "not on my watch"},
		},
	})
	if err != nil {
		t.Fatalf("Resume error: %v", err)
	}

	if got := resultFor(t, resumed, "call-a"); got.Disposition != DispositionApproved {
		t.Fatalf("call-a: %+v", got)
	}
	if got := resultFor(t, resumed, "call-b"); got.Disposition != DispositionDenied || got.Reason != "not on my watch" {
		t.Fatalf("call-b: %+v", got)
	}
	got := resultFor(t, resumed, "call-c")
	if got.Disposition != DispositionDenied || got.Source != SourceFailClosed {
		t.Fatalf("undecided call must be denied fail-closed: %+v", got)
	}

	// The fail-closed denial applies to this batch only.
	next, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{postCall("call-c2", "/banks/b1/web-hooks")})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if !next.Suspended {
		t.Fatal("undecided denial must not be cached")
	}

	// The per-call denial for call-b was persisted and now denies from cache.
	if got := resultFor(t, next, "call-c2"); got.Disposition != DispositionPending {
		t.Fatalf("call-c2 should escalate again: %+v", got)
	}
}

func TestResume_CachedDenialResolvesWithoutSuspension(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{postCall("call-1", "/banks/b1/accounts")})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if _, err := h.gate.Resume(ctx, ResumeInput{
		SuspensionID: first.SuspensionID,
		DecidedBy:    "operator",
		Uniform:      &Decision{Approved: false, Scope: policy.ScopeConversation, Reason: "denied"},
	}); err != nil {
		t.Fatalf("Resume error: %v", err)
	}

	// A cached denial is a resolution: no new suspension.
	second, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{postCall("call-2", "/banks/b1/accounts")})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if second.Suspended {
		t.Fatal("cached denial must resolve the batch without suspension")
	}
	if got := resultFor(t, second, "call-2"); got.Disposition != DispositionDenied || got.Source != SourceConversation {
		t.Fatalf("expected cached denial, got %+v", got)
	}
}

func TestResume_TwiceFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{postCall("call-1", "/banks/b1/accounts")})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}

	input := ResumeInput{
		SuspensionID: res.SuspensionID,
		DecidedBy:    "operator",
		Uniform:      &Decision{Approved: true, Scope: policy.ScopeOnce},
	}
	if _, err := h.gate.Resume(ctx, input); err != nil {
		t.Fatalf("Resume error: %v", err)
	}
	if _, err := h.gate.Resume(ctx, input); !errors.Is(err, suspend.ErrNotPending) {
		t.Fatalf("expected ErrNotPending on second resume, got %v", err)
	}
}

func TestAuthorize_UnknownToolFailsClosed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{
		toolCall("call-1", "mystery_tool", `{"method":"POST","path":"/whatever"}`),
	})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if !res.Suspended {
		t.Fatal("unknown tool must escalate, never auto-approve")
	}
	item := res.Payload.Items[0]
	if item.Risk != string(policy.RiskCritical) {
		t.Fatalf("unknown tool must surface at critical risk, got %q", item.Risk)
	}
	if len(item.AvailableScopes) != 1 || item.AvailableScopes[0] != string(policy.ScopeOnce) {
		t.Fatalf("unknown tool must offer only once scope, got %v", item.AvailableScopes)
	}
}

func TestAuthorize_PrincipalOutageEscalatesInsteadOfApproving(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Seed a principal-tier approval, then take the backend down.
	first, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{postCall("call-1", "/banks/b1/accounts")})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if _, err := h.gate.Resume(ctx, ResumeInput{
		SuspensionID: first.SuspensionID,
		DecidedBy:    "operator",
		Uniform:      &Decision{Approved: true, Scope: policy.ScopePrincipal},
	}); err != nil {
		t.Fatalf("Resume error: %v", err)
	}

	h.kv.down = true
	second, err := h.gate.Authorize(ctx, "thread-2", "user-1", []schema.ToolCall{postCall("call-2", "/banks/b1/accounts")})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}
	if !second.Suspended {
		t.Fatal("backend outage must escalate, never silently approve")
	}
}

func TestExpireSweep_UnblocksConversation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{postCall("call-1", "/banks/b1/accounts")}); err != nil {
		t.Fatalf("Authorize error: %v", err)
	}

	// Nothing is overdue yet.
	expired, err := h.gate.ExpireSweep(ctx)
	if err != nil {
		t.Fatalf("ExpireSweep error: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("expected nothing to expire, got %d", len(expired))
	}

	h.suspensions.SetClock(func() time.Time { return time.Now().Add(48 * time.Hour) })
	expired, err = h.gate.ExpireSweep(ctx)
	if err != nil {
		t.Fatalf("ExpireSweep error: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expected one expired suspension, got %d", len(expired))
	}

	// The conversation admits batches again.
	if _, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{getCall("call-2", "/banks")}); err != nil {
		t.Fatalf("Authorize after expiry error: %v", err)
	}
}

func TestResume_ExpiredSuspensionRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{postCall("call-1", "/banks/b1/accounts")})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}

	h.suspensions.SetClock(func() time.Time { return time.Now().Add(48 * time.Hour) })

	_, err = h.gate.Resume(ctx, ResumeInput{
		SuspensionID: res.SuspensionID,
		DecidedBy:    "operator",
		Uniform:      &Decision{Approved: true, Scope: policy.ScopeOnce},
	})
	if !errors.Is(err, suspend.ErrNotPending) {
		t.Fatalf("expected ErrNotPending for expired suspension, got %v", err)
	}

	rec, err := h.suspensions.Get(res.SuspensionID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec.Status != suspend.StatusExpired {
		t.Fatalf("expected expired status, got %s", rec.Status)
	}
}

func TestResume_HumanDenialAlwaysCarriesReason(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{postCall("call-1", "/banks/b1/accounts")})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}

	final, err := h.gate.Resume(ctx, ResumeInput{
		SuspensionID: res.SuspensionID,
		DecidedBy:    "reviewer",
		Uniform:      &Decision{Approved: false, Scope: policy.ScopeOnce},
	})
	if err != nil {
		t.Fatalf("Resume error: %v", err)
	}

	got := resultFor(t, final, "call-1")
	if got.Disposition != DispositionDenied {
		t.Fatalf("expected denied, got %s", got.Disposition)
	}
	if got.Reason == "" {
		t.Fatal("denied result must carry a reason")
	}
	if got.Reason != "denied by reviewer" {
		t.Fatalf("expected default denial reason, got %q", got.Reason)
	}
}

func TestResume_DoesNotDoubleCountCalls(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.gate.Authorize(ctx, "thread-1", "user-1", []schema.ToolCall{
		getCall("call-1", "/banks"),
		postCall("call-2", "/banks/b1/accounts"),
	})
	if err != nil {
		t.Fatalf("Authorize error: %v", err)
	}

	before := h.metrics.Snapshot()
	if before.Calls.Total != 2 || before.Calls.Escalated != 1 || before.Calls.AutoApproved != 1 {
		t.Fatalf("unexpected call stats after authorize: %+v", before.Calls)
	}

	if _, err := h.gate.Resume(ctx, ResumeInput{
		SuspensionID: res.SuspensionID,
		DecidedBy:    "operator",
		Uniform:      &Decision{Approved: true, Scope: policy.ScopeOnce},
	}); err != nil {
		t.Fatalf("Resume error: %v", err)
	}

	after := h.metrics.Snapshot()
	if after.Calls.Total != before.Calls.Total {
		t.Fatalf("resume re-counted calls: before %d, after %d", before.Calls.Total, after.Calls.Total)
	}
	if after.Calls.Escalated != before.Calls.Escalated {
		t.Fatalf("resume re-counted escalations: before %d, after %d", before.Calls.Escalated, after.Calls.Escalated)
	}
	if after.Calls.AutoApproved != before.Calls.AutoApproved {
		t.Fatalf("resume re-counted auto approvals: before %d, after %d", before.Calls.AutoApproved, after.Calls.AutoApproved)
	}
	if after.Batches.Resumed != 1 {
		t.Fatalf("expected one resume recorded, got %d", after.Batches.Resumed)
	}
}
