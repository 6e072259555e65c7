package suspend

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultTTL = 24 * time.Hour

// CreateInput describes a new suspension.
type CreateInput struct {
	ConversationID string
	Principal      string
	BatchID        string
	Batch          []BatchCall
	Payload        Payload
	TTL            time.Duration
}

// Query filters listed suspensions.
type Query struct {
	ID             string
	ConversationID string
	Status         Status
}

// Service orchestrates the suspension lifecycle.
type Service struct {
	store      *Store
	defaultTTL time.Duration
	now        func() time.Time
	mu         sync.Mutex
}

// NewService creates a service backed by <workspace>/state/suspensions.json.
func NewService(workspace string) *Service {
	return &Service{
		store:      NewStore(workspace),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// SetClock overrides the service time source. Tests use it to drive TTL
// expiry deterministically.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.now = now
	}
}

// SetDefaultTTL overrides how long new suspensions stay pending before
// they expire.
func (s *Service) SetDefaultTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl > 0 {
		s.defaultTTL = ttl
	}
}

// Create inserts a new pending suspension. A conversation holds at most
// one pending suspension at a time.
func (s *Service) Create(input CreateInput) (Record, error) {
	conversationID := strings.TrimSpace(input.ConversationID)
	if conversationID == "" {
		return Record{}, fmt.Errorf("conversation_id is required")
	}
	if len(input.Batch) == 0 {
		return Record{}, fmt.Errorf("batch is required")
	}

	now := s.now().UTC()
	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Load()
	if err != nil {
		return Record{}, err
	}

	for i := range data.Suspensions {
		rec := &data.Suspensions[i]
		expireDue(rec, now)
		if rec.ConversationID == conversationID && rec.Status == StatusPending {
			return Record{}, fmt.Errorf("%w: %s", ErrOutstanding, rec.ID)
		}
	}

	record := Record{
		ID:             strconv.FormatInt(data.NextID, 10),
		ConversationID: conversationID,
		Principal:      strings.TrimSpace(input.Principal),
		BatchID:        strings.TrimSpace(input.BatchID),
		Batch:          input.Batch,
		Payload:        input.Payload,
		Status:         StatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}

	data.NextID++
	data.Suspensions = append(data.Suspensions, record)

	if err := s.store.Save(data); err != nil {
		return Record{}, err
	}
	return record, nil
}

// Get returns one suspension by id. A pending suspension past its TTL is
// flipped to expired before it is returned.
func (s *Service) Get(id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Load()
	if err != nil {
		return Record{}, err
	}
	now := s.now().UTC()
	for i := range data.Suspensions {
		rec := &data.Suspensions[i]
		if rec.ID != strings.TrimSpace(id) {
			continue
		}
		if expireDue(rec, now) {
			if err := s.store.Save(data); err != nil {
				return Record{}, err
			}
		}
		return *rec, nil
	}
	return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List returns suspensions filtered by query values.
func (s *Service) List(query Query) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	changed := false
	for i := range data.Suspensions {
		if expireDue(&data.Suspensions[i], now) {
			changed = true
		}
	}
	if changed {
		if err := s.store.Save(data); err != nil {
			return nil, err
		}
	}

	idFilter := strings.TrimSpace(query.ID)
	convFilter := strings.TrimSpace(query.ConversationID)
	statusFilter := strings.TrimSpace(string(query.Status))

	result := make([]Record, 0, len(data.Suspensions))
	for _, rec := range data.Suspensions {
		if idFilter != "" && rec.ID != idFilter {
			continue
		}
		if convFilter != "" && rec.ConversationID != convFilter {
			continue
		}
		if statusFilter != "" && string(rec.Status) != statusFilter {
			continue
		}
		result = append(result, rec)
	}
	return result, nil
}

// Resolve marks a pending suspension as resolved. Resuming the same
// suspension twice fails on the status check.
func (s *Service) Resolve(id string) (Record, error) {
	return s.transition(id, StatusResolved)
}

// ExpirePending marks pending suspensions as expired when their TTL has
// elapsed. Expired suspensions can no longer be resumed.
func (s *Service) ExpirePending() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	expired := make([]Record, 0)
	changed := false

	for i := range data.Suspensions {
		rec := &data.Suspensions[i]
		if !expireDue(rec, now) {
			continue
		}
		expired = append(expired, *rec)
		changed = true
	}

	if changed {
		if err := s.store.Save(data); err != nil {
			return nil, err
		}
	}

	return expired, nil
}

func (s *Service) transition(id string, status Status) (Record, error) {
	recordID := strings.TrimSpace(id)
	if recordID == "" {
		return Record{}, fmt.Errorf("id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Load()
	if err != nil {
		return Record{}, err
	}

	now := s.now().UTC()
	for i := range data.Suspensions {
		rec := &data.Suspensions[i]
		if rec.ID != recordID {
			continue
		}
		if expireDue(rec, now) {
			if err := s.store.Save(data); err != nil {
				return Record{}, err
			}
		}
		if rec.Status != StatusPending {
			return Record{}, fmt.Errorf("%w: %s is %s", ErrNotPending, recordID, rec.Status)
		}

		rec.Status = status
		rec.ResolvedAt = now

		if err := s.store.Save(data); err != nil {
			return Record{}, err
		}
		return *rec, nil
	}

	return Record{}, fmt.Errorf("%w: %s", ErrNotFound, recordID)
}

// expireDue flips a pending record past its TTL to expired. Returns true
// when the record changed and needs persisting.
func expireDue(rec *Record, now time.Time) bool {
	if rec.Status != StatusPending {
		return false
	}
	if rec.ExpiresAt.IsZero() || rec.ExpiresAt.After(now) {
		return false
	}
	rec.Status = StatusExpired
	rec.ResolvedAt = now
	return true
}
