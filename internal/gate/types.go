package gate

import (
	"errors"

	"github.com/aegisd/aegis/internal/policy"
	"github.com/aegisd/aegis/internal/suspend"
)

var (
	// ErrSuspensionOutstanding is returned when a conversation submits a
	// new batch while a previous one is still waiting on a human.
	ErrSuspensionOutstanding = errors.New("conversation has an outstanding suspension")

	// ErrEmptyBatch is returned for a batch with no tool calls.
	ErrEmptyBatch = errors.New("batch contains no tool calls")
)

// Disposition is the final state of one call in a batch.
type Disposition string

const (
	DispositionApproved Disposition = "approved"
	DispositionDenied   Disposition = "denied"
	DispositionPending  Disposition = "pending"
)

// Source names what resolved a call.
type Source string

const (
	SourceRule         Source = "rule"
	SourceConversation Source = "conversation"
	SourcePrincipal    Source = "principal"
	SourceDeployment   Source = "deployment"
	SourceHuman        Source = "human"
	SourceFailClosed   Source = "fail_closed"
)

// CallResult is the gate's verdict on one tool call.
type CallResult struct {
	CallID       string      `json:"call_id"`
	Tool         string      `json:"tool"`
	OperationKey string      `json:"operation_key"`
	Disposition  Disposition `json:"disposition"`
	Source       Source      `json:"source,omitempty"`
	Reason       string      `json:"reason,omitempty"`
}

// BatchResult is the outcome of authorizing one batch. Either every call
// carries a terminal disposition, or the batch is suspended and the caller
// must collect a human decision before resuming.
type BatchResult struct {
	BatchID      string           `json:"batch_id"`
	Suspended    bool             `json:"suspended"`
	SuspensionID string           `json:"suspension_id,omitempty"`
	Results      []CallResult     `json:"results"`
	Payload      *suspend.Payload `json:"payload,omitempty"`
}

// Decision is one human decision applied during resumption.
type Decision struct {
	Approved bool         `json:"approved"`
	Scope    policy.Scope `json:"scope"`
	Reason   string       `json:"reason,omitempty"`
}

// ResumeInput carries human decisions back into a suspended batch.
// PerCall entries win over the Uniform decision; items covered by neither
// are denied for this batch only.
type ResumeInput struct {
	SuspensionID string              `json:"suspension_id"`
	DecidedBy    string              `json:"decided_by"`
	Uniform      *Decision           `json:"uniform,omitempty"`
	PerCall      map[string]Decision `json:"per_call,omitempty"`
}
