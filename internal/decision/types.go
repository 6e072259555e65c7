package decision

import (
	"errors"
	"time"

	"github.com/aegisd/aegis/internal/policy"
)

var (
	// ErrInvalidScope is returned when asked to persist a decision at a
	// scope that holds nothing (once) at save time. Unsupported scopes are
	// downgraded instead, never rejected.
	ErrInvalidScope = errors.New("invalid persistence scope")

	// ErrStoreUnavailable wraps principal-tier backend failures. A failed
	// tier resolves as unresolved, never as approved.
	ErrStoreUnavailable = errors.New("decision store unavailable")
)

// Record is one persisted approval decision.
type Record struct {
	Approved   bool         `json:"approved"`
	Scope      policy.Scope `json:"scope"`
	RecordedAt time.Time    `json:"recorded_at"`
	ExpiresAt  time.Time    `json:"expires_at,omitempty"`
}

// Expired reports whether the record has outlived its TTL.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Resolution is a cache hit: the tier that resolved the operation and the
// decision it holds.
type Resolution struct {
	Scope    policy.Scope
	Approved bool
}

// SaveResult reports where a decision actually landed. Scope may be lower
// than requested when the tool does not support the requested tier or the
// principal backend is degraded.
type SaveResult struct {
	Scope      policy.Scope
	Downgraded bool
}
