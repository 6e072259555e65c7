package suspend

import (
	"errors"
	"time"
)

// Status tracks a suspension through its life.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusExpired  Status = "expired"
)

var (
	ErrNotFound    = errors.New("suspension not found")
	ErrNotPending  = errors.New("suspension is not pending")
	ErrOutstanding = errors.New("conversation already has an outstanding suspension")
)

// BatchCall is the snapshot of one tool call from the suspended batch,
// enough to re-run classification verbatim on resume.
type BatchCall struct {
	CallID    string `json:"call_id"`
	Tool      string `json:"tool"`
	Arguments string `json:"arguments"`
}

// PendingItem is one unresolved call surfaced to the approver.
type PendingItem struct {
	CallID            string   `json:"call_id"`
	Tool              string   `json:"tool"`
	OperationKey      string   `json:"operation_key"`
	Summary           string   `json:"summary"`
	Method            string   `json:"method,omitempty"`
	Path              string   `json:"path,omitempty"`
	Risk              string   `json:"risk"`
	Reversible        bool     `json:"reversible"`
	AffectedResources []string `json:"affected_resources,omitempty"`
	AvailableScopes   []string `json:"available_scopes"`
	Arguments         string   `json:"arguments,omitempty"`
}

// Payload is the human-facing description of a suspension: every
// unresolved call in the batch, enriched for review.
type Payload struct {
	ConversationID string        `json:"conversation_id"`
	Principal      string        `json:"principal"`
	BatchID        string        `json:"batch_id"`
	Items          []PendingItem `json:"items"`
	SingleItem     bool          `json:"single_item"`
}

// Record is one persisted suspension: the continuation token for a batch
// that stopped mid-flight waiting on a human.
type Record struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Principal      string      `json:"principal"`
	BatchID        string      `json:"batch_id"`
	Batch          []BatchCall `json:"batch"`
	Payload        Payload     `json:"payload"`
	Status         Status      `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	ExpiresAt      time.Time   `json:"expires_at,omitempty"`
	ResolvedAt     time.Time   `json:"resolved_at,omitempty"`
}
