package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const gateMetricsFileName = "gate_metrics.json"

// GateSnapshot contains aggregated authorization gate metrics.
type GateSnapshot struct {
	UpdatedAt time.Time  `json:"updated_at"`
	Batches   BatchStats `json:"batches"`
	Calls     CallStats  `json:"calls"`
	Tiers     TierStats  `json:"tiers"`
}

// BatchStats tracks batch-level outcomes.
type BatchStats struct {
	Total        int64 `json:"total"`
	AutoResolved int64 `json:"auto_resolved"`
	Suspended    int64 `json:"suspended"`
	Resumed      int64 `json:"resumed"`
	Expired      int64 `json:"expired"`
}

// SuspensionRatio returns suspended/total in [0,1].
func (b BatchStats) SuspensionRatio() float64 {
	if b.Total <= 0 {
		return 0
	}
	return float64(b.Suspended) / float64(b.Total)
}

// CallStats tracks per-call classification outcomes.
type CallStats struct {
	Total        int64 `json:"total"`
	AutoApproved int64 `json:"auto_approved"`
	AutoDenied   int64 `json:"auto_denied"`
	Escalated    int64 `json:"escalated"`
	HumanDenied  int64 `json:"human_denied"`
}

// TierStats tracks where cached decisions resolve.
type TierStats struct {
	ConversationHits int64 `json:"conversation_hits"`
	PrincipalHits    int64 `json:"principal_hits"`
	DeploymentHits   int64 `json:"deployment_hits"`
	PrincipalErrors  int64 `json:"principal_errors"`
}

// HasData reports whether any gate metrics were recorded.
func (s GateSnapshot) HasData() bool {
	return s.Batches.Total > 0 || s.Calls.Total > 0
}

// GateMetrics records and persists authorization gate metrics.
type GateMetrics struct {
	path string

	mu   sync.Mutex
	snap GateSnapshot
}

// NewGateMetrics creates a metrics recorder rooted at <workspace>/state/gate_metrics.json.
func NewGateMetrics(workspacePath string) *GateMetrics {
	return &GateMetrics{path: gateMetricsPath(workspacePath)}
}

// Snapshot returns the latest in-memory snapshot.
func (m *GateMetrics) Snapshot() GateSnapshot {
	if m == nil {
		return GateSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// RecordBatch updates batch counters and persists the snapshot.
func (m *GateMetrics) RecordBatch(suspended bool) (GateSnapshot, error) {
	if m == nil {
		return GateSnapshot{}, nil
	}

	m.mu.Lock()
	m.snap.UpdatedAt = time.Now().UTC()
	m.snap.Batches.Total++
	if suspended {
		m.snap.Batches.Suspended++
	} else {
		m.snap.Batches.AutoResolved++
	}
	snapshot := m.snap
	m.mu.Unlock()

	return snapshot, persistGateSnapshot(m.path, snapshot)
}

// RecordResume counts one completed resumption.
func (m *GateMetrics) RecordResume() (GateSnapshot, error) {
	if m == nil {
		return GateSnapshot{}, nil
	}

	m.mu.Lock()
	m.snap.UpdatedAt = time.Now().UTC()
	m.snap.Batches.Resumed++
	snapshot := m.snap
	m.mu.Unlock()

	return snapshot, persistGateSnapshot(m.path, snapshot)
}

// RecordExpired counts expired suspensions.
func (m *GateMetrics) RecordExpired(count int) (GateSnapshot, error) {
	if m == nil || count <= 0 {
		return m.Snapshot(), nil
	}

	m.mu.Lock()
	m.snap.UpdatedAt = time.Now().UTC()
	m.snap.Batches.Expired += int64(count)
	snapshot := m.snap
	m.mu.Unlock()

	return snapshot, persistGateSnapshot(m.path, snapshot)
}

// Call outcomes fed to RecordCall.
const (
	CallAutoApproved = "auto_approved"
	CallAutoDenied   = "auto_denied"
	CallEscalated    = "escalated"
	CallHumanDenied  = "human_denied"
)

// RecordCall updates per-call counters and persists the snapshot.
func (m *GateMetrics) RecordCall(outcome string) (GateSnapshot, error) {
	if m == nil {
		return GateSnapshot{}, nil
	}

	m.mu.Lock()
	m.snap.UpdatedAt = time.Now().UTC()
	m.snap.Calls.Total++
	switch outcome {
	case CallAutoApproved:
		m.snap.Calls.AutoApproved++
	case CallAutoDenied:
		m.snap.Calls.AutoDenied++
	case CallEscalated:
		m.snap.Calls.Escalated++
	case CallHumanDenied:
		m.snap.Calls.HumanDenied++
	}
	snapshot := m.snap
	m.mu.Unlock()

	return snapshot, persistGateSnapshot(m.path, snapshot)
}

// Decision tiers fed to RecordTierHit.
const (
	TierConversation = "conversation"
	TierPrincipal    = "principal"
	TierDeployment   = "deployment"
)

// RecordTierHit counts a cache resolution at the given tier.
func (m *GateMetrics) RecordTierHit(tier string) (GateSnapshot, error) {
	if m == nil {
		return GateSnapshot{}, nil
	}

	m.mu.Lock()
	m.snap.UpdatedAt = time.Now().UTC()
	switch tier {
	case TierConversation:
		m.snap.Tiers.ConversationHits++
	case TierPrincipal:
		m.snap.Tiers.PrincipalHits++
	case TierDeployment:
		m.snap.Tiers.DeploymentHits++
	}
	snapshot := m.snap
	m.mu.Unlock()

	return snapshot, persistGateSnapshot(m.path, snapshot)
}

// RecordPrincipalError counts a principal-tier backend failure.
func (m *GateMetrics) RecordPrincipalError() (GateSnapshot, error) {
	if m == nil {
		return GateSnapshot{}, nil
	}

	m.mu.Lock()
	m.snap.UpdatedAt = time.Now().UTC()
	m.snap.Tiers.PrincipalErrors++
	snapshot := m.snap
	m.mu.Unlock()

	return snapshot, persistGateSnapshot(m.path, snapshot)
}

// ReadGateSnapshot reads the persisted snapshot from workspace state.
// If no file exists yet, it returns a zero-value snapshot and nil error.
func ReadGateSnapshot(workspacePath string) (GateSnapshot, error) {
	path := gateMetricsPath(workspacePath)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return GateSnapshot{}, nil
		}
		return GateSnapshot{}, fmt.Errorf("read gate metrics: %w", err)
	}

	var snap GateSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return GateSnapshot{}, fmt.Errorf("decode gate metrics: %w", err)
	}
	return snap, nil
}

func gateMetricsPath(workspacePath string) string {
	return filepath.Join(workspacePath, "state", gateMetricsFileName)
}

func persistGateSnapshot(path string, snapshot GateSnapshot) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create gate metrics dir: %w", err)
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode gate metrics: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, payload, 0o644); err != nil {
		return fmt.Errorf("write gate metrics temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename gate metrics file: %w", err)
	}
	return nil
}
