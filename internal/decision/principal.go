package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aegisd/aegis/internal/policy"
)

const (
	principalKeyPrefix = "aegis:approval:"

	// DefaultPrincipalTTL bounds how long a principal-tier decision lives.
	DefaultPrincipalTTL = 7 * 24 * time.Hour
)

// PrincipalStore holds principal-tier decisions in a shared key/value
// backend so they survive across conversations and gate restarts.
type PrincipalStore struct {
	kv  KV
	ttl time.Duration
	now func() time.Time
}

// NewPrincipalStore creates a principal-tier store. A non-positive ttl
// falls back to DefaultPrincipalTTL.
func NewPrincipalStore(kv KV, ttl time.Duration) *PrincipalStore {
	if ttl <= 0 {
		ttl = DefaultPrincipalTTL
	}
	return &PrincipalStore{kv: kv, ttl: ttl, now: time.Now}
}

func principalKey(principal, opKey string) string {
	return principalKeyPrefix + principal + ":" + opKey
}

// Get looks up the decision for an operation key. Records past their
// embedded expiry are evicted lazily and reported as absent, covering
// backends that do not enforce TTLs themselves.
func (s *PrincipalStore) Get(ctx context.Context, principal, opKey string) (Record, bool, error) {
	key := principalKey(principal, opKey)
	data, err := s.kv.Get(ctx, key)
	if err == ErrKeyNotFound {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// Unreadable records fail closed: treat as absent and evict.
		s.kv.Del(ctx, key)
		return Record{}, false, nil
	}
	if rec.Expired(s.now()) {
		s.kv.Del(ctx, key)
		return Record{}, false, nil
	}
	return rec, true, nil
}

// Save writes a decision. Rewriting an identical decision is a no-op so
// resumption replay never extends an existing record's lifetime.
func (s *PrincipalStore) Save(ctx context.Context, principal, opKey string, approved bool) error {
	if existing, ok, err := s.Get(ctx, principal, opKey); err == nil && ok && existing.Approved == approved {
		return nil
	}

	now := s.now()
	rec := Record{
		Approved:   approved,
		Scope:      policy.ScopePrincipal,
		RecordedAt: now,
		ExpiresAt:  now.Add(s.ttl),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal decision record: %w", err)
	}
	if err := s.kv.Set(ctx, principalKey(principal, opKey), data, s.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes a persisted decision.
func (s *PrincipalStore) Delete(ctx context.Context, principal, opKey string) error {
	if err := s.kv.Del(ctx, principalKey(principal, opKey)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Healthy reports whether the backend answers.
func (s *PrincipalStore) Healthy(ctx context.Context) bool {
	return s.kv.Ping(ctx) == nil
}
