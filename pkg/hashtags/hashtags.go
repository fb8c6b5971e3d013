// Package hashtags keeps the list of hashtags the dashboard offers as
// job targets.
package hashtags

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	errs "botinsta/pkg/errors"
)

// Store is a file-backed hashtag list. Names are normalized before
// storage so "#Sunset " and "sunset" are the same entry.
type Store struct {
	path string
	mu   sync.Mutex
}

type hashtagFile struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Hashtags  []string  `json:"hashtags"`
}

// NewStore creates a store at path, creating parent directories as
// needed.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create hashtag directory: %w", err)
		}
	}
	return &Store{path: path}, nil
}

// Normalize canonicalizes a hashtag: trim whitespace, strip a leading
// '#', and lowercase. Returns an error for empty or whitespace-only
// input.
func Normalize(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "#")
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return "", errs.New(errs.ErrorTypeInvalidInput, "hashtag is empty")
	}
	if strings.ContainsAny(tag, " \t\n") {
		return "", errs.Newf(errs.ErrorTypeInvalidInput, "hashtag %q contains whitespace", tag)
	}
	return tag, nil
}

// Add stores a hashtag and returns its normalized form. Adding a
// hashtag that already exists is not an error.
func (s *Store) Add(tag string) (string, error) {
	normalized, err := Normalize(tag)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tags, err := s.load()
	if err != nil {
		return "", err
	}

	for _, existing := range tags {
		if existing == normalized {
			return normalized, nil
		}
	}

	tags = append(tags, normalized)
	sort.Strings(tags)
	if err := s.write(tags); err != nil {
		return "", err
	}
	return normalized, nil
}

// Remove deletes a hashtag
func (s *Store) Remove(tag string) error {
	normalized, err := Normalize(tag)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tags, err := s.load()
	if err != nil {
		return err
	}

	kept := tags[:0]
	found := false
	for _, existing := range tags {
		if existing == normalized {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	if !found {
		return errs.Newf(errs.ErrorTypeInvalidInput, "hashtag %q not found", normalized)
	}

	return s.write(kept)
}

// List returns all hashtags in sorted order
func (s *Store) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() ([]string, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read hashtag file: %w", err)
	}

	var file hashtagFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to decode hashtag file: %w", err)
	}
	return file.Hashtags, nil
}

func (s *Store) write(tags []string) error {
	file := hashtagFile{
		Version:   1,
		UpdatedAt: time.Now(),
		Hashtags:  tags,
	}

	content, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode hashtags: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write hashtag file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace hashtag file: %w", err)
	}
	return nil
}
