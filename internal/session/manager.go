package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const conversationFileMode = 0644

// DecisionEntry is one cached conversation-tier approval decision.
type DecisionEntry struct {
	Approved   bool      `json:"approved"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Conversation is the durable per-conversation state the gate operates on:
// the conversation-tier decision cache plus the id of the suspension
// currently blocking the conversation, if any.
type Conversation struct {
	ID               string                   `json:"id"`
	Decisions        map[string]DecisionEntry `json:"decisions"`
	ActiveSuspension string                   `json:"active_suspension,omitempty"`
	UpdatedAt        time.Time                `json:"updated_at"`

	mu sync.RWMutex
}

// Decision looks up a cached decision by operation key.
func (c *Conversation) Decision(opKey string) (DecisionEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.Decisions[opKey]
	return entry, ok
}

// SetDecision records a conversation-tier decision. Rewriting the same
// decision is a no-op so writes stay idempotent under resumption replay.
func (c *Conversation) SetDecision(opKey string, approved bool, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Decisions == nil {
		c.Decisions = make(map[string]DecisionEntry)
	}
	if existing, ok := c.Decisions[opKey]; ok && existing.Approved == approved {
		return
	}
	c.Decisions[opKey] = DecisionEntry{Approved: approved, RecordedAt: at}
	c.UpdatedAt = at
}

// RemoveDecision drops a cached decision, if present.
func (c *Conversation) RemoveDecision(opKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Decisions, opKey)
}

// ClearDecisions drops every conversation-tier decision.
func (c *Conversation) ClearDecisions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Decisions = make(map[string]DecisionEntry)
}

// DecisionCount returns the number of cached decisions.
func (c *Conversation) DecisionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Decisions)
}

// ActiveSuspensionID returns the id of the outstanding suspension, or "".
func (c *Conversation) ActiveSuspensionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ActiveSuspension
}

// SetActiveSuspension marks the conversation as blocked on a suspension.
// An empty id unblocks it.
func (c *Conversation) SetActiveSuspension(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ActiveSuspension = strings.TrimSpace(id)
}

// Manager loads and persists conversation state under
// <workspace>/conversations/<id>.json.
type Manager struct {
	dir           string
	conversations map[string]*Conversation
	mu            sync.Mutex
}

// NewManager creates a conversation state manager.
func NewManager(baseDir string) *Manager {
	dir := filepath.Join(baseDir, "conversations")
	os.MkdirAll(dir, 0755)
	return &Manager{
		dir:           dir,
		conversations: make(map[string]*Conversation),
	}
}

// GetOrCreate returns the conversation with the given id, loading it from
// disk on first access.
func (m *Manager) GetOrCreate(id string) *Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conv, ok := m.conversations[id]; ok {
		return conv
	}

	conv := &Conversation{ID: id, Decisions: make(map[string]DecisionEntry)}
	m.loadFromDisk(conv)
	m.conversations[id] = conv
	return conv
}

// Save persists conversation state to disk synchronously. Conversation-tier
// decisions live exactly as long as this snapshot does.
func (m *Manager) Save(conv *Conversation) error {
	conv.mu.RLock()
	data, err := json.MarshalIndent(conv, "", "  ")
	conv.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	path := m.conversationPath(conv.ID)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, conversationFileMode); err != nil {
		return fmt.Errorf("write conversation temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace conversation file: %w", err)
	}
	return nil
}

func (m *Manager) loadFromDisk(conv *Conversation) {
	data, err := os.ReadFile(m.conversationPath(conv.ID))
	if err != nil {
		return
	}

	var stored Conversation
	if err := json.Unmarshal(data, &stored); err != nil {
		return
	}
	if stored.Decisions != nil {
		conv.Decisions = stored.Decisions
	}
	conv.ActiveSuspension = stored.ActiveSuspension
	conv.UpdatedAt = stored.UpdatedAt
}

func (m *Manager) conversationPath(id string) string {
	safeID := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(id)
	return filepath.Join(m.dir, safeID+".json")
}
