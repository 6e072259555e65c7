package suspend

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

const (
	storeVersion        = 1
	suspensionsFileMode = 0644
	suspensionsDirMode  = 0755
	defaultStartingID   = int64(1)
)

type fileData struct {
	Version     int      `json:"version"`
	NextID      int64    `json:"next_id"`
	Suspensions []Record `json:"suspensions"`
}

// Store persists suspensions to disk.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a suspension store under <workspace>/state/suspensions.json.
func NewStore(workspace string) *Store {
	return &Store{path: filepath.Join(workspace, "state", "suspensions.json")}
}

// Load reads persisted data from disk.
func (s *Store) Load() (fileData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadLocked()
}

// Save writes persisted data to disk.
func (s *Store) Save(data fileData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveLocked(data)
}

func (s *Store) loadLocked() (fileData, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultFileData(), nil
		}
		return fileData{}, fmt.Errorf("read suspension store: %w", err)
	}

	var parsed fileData
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fileData{}, fmt.Errorf("parse suspension store: %w", err)
	}

	return normalizeFileData(parsed), nil
}

func (s *Store) saveLocked(data fileData) error {
	normalized := normalizeFileData(data)

	encoded, err := json.MarshalIndent(normalized, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal suspension store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), suspensionsDirMode); err != nil {
		return fmt.Errorf("create suspension store dir: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmpFile, err := os.CreateTemp(dir, "suspensions-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp suspension store: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(encoded); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp suspension store: %w", err)
	}
	if err := tmpFile.Chmod(suspensionsFileMode); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp suspension store: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp suspension store: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		if removeErr := os.Remove(s.path); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("replace suspension store: rename failed (%v), remove failed (%v)", err, removeErr)
		}
		if retryErr := os.Rename(tmpPath, s.path); retryErr != nil {
			return fmt.Errorf("replace suspension store after remove: %w", retryErr)
		}
	}
	return nil
}

func defaultFileData() fileData {
	return fileData{
		Version:     storeVersion,
		NextID:      defaultStartingID,
		Suspensions: []Record{},
	}
}

func normalizeFileData(data fileData) fileData {
	if data.Version <= 0 {
		data.Version = storeVersion
	}
	if data.Suspensions == nil {
		data.Suspensions = []Record{}
	}
	if data.NextID <= 0 {
		data.NextID = nextIDFromRecords(data.Suspensions)
	}
	return data
}

func nextIDFromRecords(records []Record) int64 {
	maxID := int64(0)
	for _, rec := range records {
		id, err := strconv.ParseInt(rec.ID, 10, 64)
		if err != nil {
			continue
		}
		if id > maxID {
			maxID = id
		}
	}
	if maxID < defaultStartingID {
		return defaultStartingID
	}
	return maxID + 1
}
