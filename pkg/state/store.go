// Package state persists job records so running jobs survive process
// restarts. The whole file is rewritten atomically on every change.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"botinsta/pkg/bot"
	"botinsta/pkg/logger"
)

// Store is a file-backed bot.RecordStore
type Store struct {
	path   string
	logger logger.Logger
	mu     sync.Mutex
}

// stateFile is the on-disk layout
type stateFile struct {
	Version   int                      `json:"version"`
	UpdatedAt time.Time                `json:"updated_at"`
	Jobs      map[string]bot.JobRecord `json:"jobs"`
}

// NewStore creates a store at path, creating parent directories as
// needed.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	return &Store{
		path:   path,
		logger: logger.GetLogger(),
	}, nil
}

// Save writes or replaces the record for its account
func (s *Store) Save(record bot.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}

	state.Jobs[record.Account] = record
	if err := s.write(state); err != nil {
		return err
	}

	s.logger.DebugWithFields("job record saved", map[string]interface{}{
		"account": record.Account,
		"mode":    string(record.Mode),
	})
	return nil
}

// Delete removes the record for an account. Deleting a record that
// does not exist is not an error.
func (s *Store) Delete(account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}

	if _, ok := state.Jobs[account]; !ok {
		return nil
	}
	delete(state.Jobs, account)

	// Drop the file entirely once the last record is gone
	if len(state.Jobs) == 0 {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove state file: %w", err)
		}
		return nil
	}

	return s.write(state)
}

// List returns all persisted records sorted by account
func (s *Store) List() ([]bot.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return nil, err
	}

	records := make([]bot.JobRecord, 0, len(state.Jobs))
	for _, record := range state.Jobs {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Account < records[j].Account
	})
	return records, nil
}

// load reads the state file, returning an empty state when the file
// does not exist yet.
func (s *Store) load() (*stateFile, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &stateFile{Version: 1, Jobs: make(map[string]bot.JobRecord)}, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state stateFile
	if err := json.Unmarshal(content, &state); err != nil {
		return nil, fmt.Errorf("failed to decode state file: %w", err)
	}
	if state.Jobs == nil {
		state.Jobs = make(map[string]bot.JobRecord)
	}
	return &state, nil
}

// write replaces the state file atomically: write a temp file, sync
// it, then rename over the old one.
func (s *Store) write(state *stateFile) error {
	state.Version = 1
	state.UpdatedAt = time.Now()

	tempPath := s.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(state); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync state file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}
