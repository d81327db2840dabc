package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxItemChars is the per-item length cap applied after whitespace
// normalization.
const MaxItemChars = 400

// MaxItems caps the total item count; the oldest items are dropped first.
const MaxItems = 120

type fileShape struct {
	Items []string `json:"items"`
}

// Store holds the persistent system-prompt memory items backed by a JSON
// file. Every mutation is a read-modify-write under the lock, so concurrent
// turns see a consistent file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a store backed by the JSON file at path. The file is
// created lazily on first write.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Normalize collapses all whitespace runs to single spaces, trims, and
// truncates to MaxItemChars.
func Normalize(item string) string {
	normalized := strings.Join(strings.Fields(item), " ")
	// Truncate on a rune boundary; a byte slice could split a multi-byte
	// character and store invalid UTF-8.
	if runes := []rune(normalized); len(runes) > MaxItemChars {
		normalized = string(runes[:MaxItemChars])
	}
	return normalized
}

// Add appends a normalized item unless it is already present. Returns the
// stored item and whether the file changed.
func (s *Store) Add(item string) (string, bool, error) {
	normalized := Normalize(item)
	if normalized == "" {
		return "", false, fmt.Errorf("memory item is empty after normalization")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return "", false, err
	}
	for _, existing := range items {
		if existing == normalized {
			return normalized, false, nil
		}
	}

	items = append(items, normalized)
	if len(items) > MaxItems {
		items = items[len(items)-MaxItems:]
	}
	if err := s.save(items); err != nil {
		return "", false, err
	}
	return normalized, true, nil
}

// List returns the current items oldest first.
func (s *Store) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Clear removes all items.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(nil)
}

func (s *Store) load() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read memory file: %w", err)
	}
	var shape fileShape
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("failed to parse memory file: %w", err)
	}
	return shape.Items, nil
}

func (s *Store) save(items []string) error {
	if items == nil {
		items = []string{}
	}
	data, err := json.MarshalIndent(fileShape{Items: items}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode memory file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create memory directory: %w", err)
	}

	// Write to a sibling temp file first so readers never see a torn file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write memory file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace memory file: %w", err)
	}
	return nil
}
