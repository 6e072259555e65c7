package policy

import "testing"

func TestPatternMatches_GlobAcrossSegments(t *testing.T) {
	p := Pattern{Method: "POST", Path: "/obp/*/accounts/*/views", Action: ActionRequireApproval}

	if !p.Matches(Call{Method: "POST", Path: "/obp/v5.1.0/accounts/abc-123/views"}) {
		t.Fatal("expected pattern to match")
	}
	if p.Matches(Call{Method: "POST", Path: "/obp/v5.1.0/accounts/abc-123/transactions"}) {
		t.Fatal("expected pattern not to match different suffix")
	}
	if p.Matches(Call{Method: "GET", Path: "/obp/v5.1.0/accounts/abc-123/views"}) {
		t.Fatal("expected pattern not to match different method")
	}
}

func TestPatternMatches_WildcardsMatchEverything(t *testing.T) {
	p := Pattern{Method: "*", Path: "*", Action: ActionAutoApprove}
	if !p.Matches(Call{Method: "DELETE", Path: "/anything"}) {
		t.Fatal("expected catch-all to match")
	}
	if !p.Matches(Call{}) {
		t.Fatal("expected catch-all to match empty call")
	}
}

func TestParseCall_ExtractsMatcherFields(t *testing.T) {
	call := ParseCall(`{"method":"get","path":" /banks/1 ","operation_id":"getBankById","body":{"x":1}}`)
	if call.Method != "GET" {
		t.Fatalf("expected upper-cased method, got %q", call.Method)
	}
	if call.Path != "/banks/1" {
		t.Fatalf("unexpected path: %q", call.Path)
	}
	if call.OperationID != "getBankById" {
		t.Fatalf("unexpected operation id: %q", call.OperationID)
	}
}

func TestParseCall_MalformedJSONYieldsEmptyCall(t *testing.T) {
	call := ParseCall("{not json")
	if call != (Call{}) {
		t.Fatalf("expected empty call, got %+v", call)
	}
}

func TestOperationKey_FallbackChain(t *testing.T) {
	if got := OperationKey("obp_requests", Call{OperationID: "getBankById", Method: "GET", Path: "/banks/1"}); got != "obp_requests:getBankById" {
		t.Fatalf("expected semantic id key, got %q", got)
	}
	if got := OperationKey("obp_requests", Call{Method: "GET", Path: "/banks/1"}); got != "obp_requests:GET:/banks/1" {
		t.Fatalf("expected method+path key, got %q", got)
	}
	if got := OperationKey("obp_requests", Call{}); got != "obp_requests:obp_requests" {
		t.Fatalf("expected tool fallback key, got %q", got)
	}
}

func TestScopeRanking(t *testing.T) {
	if ScopeOnce.Rank() >= ScopeConversation.Rank() {
		t.Fatal("once must rank below conversation")
	}
	if ScopeConversation.Rank() >= ScopePrincipal.Rank() {
		t.Fatal("conversation must rank below principal")
	}
	if ScopePrincipal.Rank() >= ScopeDeployment.Rank() {
		t.Fatal("principal must rank below deployment")
	}
	if Scope("weekly").Valid() {
		t.Fatal("unknown scope must be invalid")
	}
}

func TestHighestScopeAtMost_DowngradesUnsupported(t *testing.T) {
	tp := ToolPolicy{Name: "obp_requests", Scopes: []Scope{ScopeConversation}}

	if got := tp.HighestScopeAtMost(ScopePrincipal); got != ScopeConversation {
		t.Fatalf("expected downgrade to %q, got %q", ScopeConversation, got)
	}
	if got := tp.HighestScopeAtMost(ScopeConversation); got != ScopeConversation {
		t.Fatalf("expected %q, got %q", ScopeConversation, got)
	}

	bare := ToolPolicy{Name: "ephemeral"}
	if got := bare.HighestScopeAtMost(ScopeDeployment); got != ScopeOnce {
		t.Fatalf("expected %q, got %q", ScopeOnce, got)
	}
}

func TestAssessRisk_MethodDriven(t *testing.T) {
	tp := ToolPolicy{Name: "obp_requests", DefaultRisk: RiskModerate}

	if got := AssessRisk(tp, Call{Method: "GET"}); got != RiskSafe {
		t.Fatalf("expected %q, got %q", RiskSafe, got)
	}
	if got := AssessRisk(tp, Call{Method: "POST"}); got != RiskDangerous {
		t.Fatalf("expected %q, got %q", RiskDangerous, got)
	}
	if got := AssessRisk(tp, Call{Method: "DELETE"}); got != RiskCritical {
		t.Fatalf("expected %q, got %q", RiskCritical, got)
	}
	if got := AssessRisk(tp, Call{}); got != RiskModerate {
		t.Fatalf("expected default risk, got %q", got)
	}
}

func TestReversible_WritesAreNot(t *testing.T) {
	tp := ToolPolicy{Name: "obp_requests", DefaultRisk: RiskModerate}

	if Reversible(tp, Call{Method: "DELETE"}) {
		t.Fatal("DELETE must not be reversible")
	}
	if Reversible(tp, Call{Method: "POST"}) {
		t.Fatal("POST must not be reversible")
	}
	if !Reversible(tp, Call{Method: "PUT"}) {
		t.Fatal("PUT should be reversible")
	}
	if !Reversible(tp, Call{Method: "GET"}) {
		t.Fatal("GET should be reversible")
	}
}
