package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	auditFileMode = 0644
	auditDirMode  = 0755
)

// Event is one audit record written as a single JSON line. Every gate
// decision leaves exactly one event.
type Event struct {
	Time           time.Time `json:"time"`
	Type           string    `json:"type"`
	RequestID      string    `json:"request_id,omitempty"`
	BatchID        string    `json:"batch_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Principal      string    `json:"principal,omitempty"`
	Tool           string    `json:"tool,omitempty"`
	OperationKey   string    `json:"operation_key,omitempty"`
	Result         string    `json:"result,omitempty"`
	Scope          string    `json:"scope,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	SuspensionID   string    `json:"suspension_id,omitempty"`
}

// Event types recorded by the gate.
const (
	TypeAutoApproved  = "auto_approved"
	TypeAutoDenied    = "auto_denied"
	TypeCacheHit      = "cache_hit"
	TypeSuspended     = "suspended"
	TypeResumed       = "resumed"
	TypeHumanDecision = "human_decision"
	TypeRevoked       = "revoked"
	TypeExpired       = "expired"
)

// Writer appends audit events to <workspace>/state/audit.jsonl.
type Writer struct {
	path string
	mu   sync.Mutex
}

// NewWriter creates an append-only audit writer rooted at workspace state.
func NewWriter(workspace string) *Writer {
	return &Writer{
		path: filepath.Join(workspace, "state", "audit.jsonl"),
	}
}

// Append writes one event as one JSONL line.
func (w *Writer) Append(event Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), auditDirMode); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, auditFileMode)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	encoded = append(encoded, '\n')

	if _, err := file.Write(encoded); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit file: %w", err)
	}
	return nil
}
