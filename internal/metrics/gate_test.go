package metrics

import (
	"testing"
)

func TestGateMetrics_RecordsAndPersists(t *testing.T) {
	workspace := t.TempDir()
	m := NewGateMetrics(workspace)

	if _, err := m.RecordBatch(false); err != nil {
		t.Fatalf("RecordBatch: %v", err)
	}
	if _, err := m.RecordBatch(true); err != nil {
		t.Fatalf("RecordBatch suspended: %v", err)
	}
	if _, err := m.RecordCall(CallAutoApproved); err != nil {
		t.Fatalf("RecordCall: %v", err)
	}
	if _, err := m.RecordCall(CallEscalated); err != nil {
		t.Fatalf("RecordCall escalated: %v", err)
	}
	if _, err := m.RecordTierHit(TierPrincipal); err != nil {
		t.Fatalf("RecordTierHit: %v", err)
	}
	snapshot, err := m.RecordResume()
	if err != nil {
		t.Fatalf("RecordResume: %v", err)
	}

	if snapshot.Batches.Total != 2 || snapshot.Batches.Suspended != 1 || snapshot.Batches.AutoResolved != 1 {
		t.Fatalf("unexpected batch stats: %+v", snapshot.Batches)
	}
	if snapshot.Calls.Total != 2 || snapshot.Calls.AutoApproved != 1 || snapshot.Calls.Escalated != 1 {
		t.Fatalf("unexpected call stats: %+v", snapshot.Calls)
	}
	if snapshot.Tiers.PrincipalHits != 1 {
		t.Fatalf("unexpected tier stats: %+v", snapshot.Tiers)
	}
	if snapshot.Batches.Resumed != 1 {
		t.Fatalf("expected one resume, got %+v", snapshot.Batches)
	}

	// Snapshot survives a fresh read from disk.
	stored, err := ReadGateSnapshot(workspace)
	if err != nil {
		t.Fatalf("ReadGateSnapshot: %v", err)
	}
	if !stored.HasData() {
		t.Fatal("expected persisted data")
	}
	if stored.Batches.Total != snapshot.Batches.Total {
		t.Fatalf("persisted %d batches, want %d", stored.Batches.Total, snapshot.Batches.Total)
	}
}

func TestGateMetrics_NilSafe(t *testing.T) {
	var m *GateMetrics
	if _, err := m.RecordBatch(true); err != nil {
		t.Fatalf("nil RecordBatch: %v", err)
	}
	if _, err := m.RecordCall(CallAutoDenied); err != nil {
		t.Fatalf("nil RecordCall: %v", err)
	}
}

func TestReadGateSnapshot_Empty(t *testing.T) {
	snapshot, err := ReadGateSnapshot(t.TempDir())
	if err != nil {
		t.Fatalf("ReadGateSnapshot: %v", err)
	}
	if snapshot.HasData() {
		t.Fatal("expected empty snapshot")
	}
}
