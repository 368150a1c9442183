package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"
)

// DefaultHistoryLimit is the number of sessions kept when no limit is set.
const DefaultHistoryLimit = 30

// History is a fixed-capacity FIFO of session snapshots. When full, each
// append evicts the oldest entry.
type History struct {
	mu      sync.RWMutex
	entries []HistoryEntry
	head    int // next write position
	count   int
}

// NewHistory creates a history holding at most capacity entries.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryLimit
	}
	return &History{entries: make([]HistoryEntry, capacity)}
}

// Append adds e as the most recent entry.
func (h *History) Append(e HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.head] = e
	h.head = (h.head + 1) % len(h.entries)
	if h.count < len(h.entries) {
		h.count++
	}
}

// Entries returns a copy of the entries, oldest first.
func (h *History) Entries() []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]HistoryEntry, 0, h.count)
	start := (h.head - h.count + len(h.entries)) % len(h.entries)
	for i := 0; i < h.count; i++ {
		out = append(out, h.entries[(start+i)%len(h.entries)])
	}
	return out
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Cap returns the capacity.
func (h *History) Cap() int {
	return len(h.entries)
}

// HistoryStore persists a History as a JSON array, oldest entry first.
type HistoryStore struct {
	path    string
	history *History
	mu      sync.Mutex // serialises append+save
}

// Open loads the history file at path. A missing file yields an empty
// history; a file holding more than capacity entries keeps the newest ones.
// Malformed files are rejected.
func Open(path string, capacity int) (*HistoryStore, error) {
	s := &HistoryStore{path: path, history: NewHistory(capacity)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read history %s: %w", path, err)
	}

	var entries []HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}
	for i, e := range entries {
		if err := validateEntry(e); err != nil {
			return nil, fmt.Errorf("parse history %s: entry %d: %w", path, i, err)
		}
		s.history.Append(e)
	}

	return s, nil
}

func validateEntry(e HistoryEntry) error {
	if e.Timestamp.IsZero() {
		return errors.New("missing timestamp")
	}
	if e.Duration < 0 {
		return fmt.Errorf("negative duration %v", e.Duration)
	}
	for name, v := range map[string]*float64{"passRate": e.PassRate, "visualCompliance": e.VisualCompliance} {
		if v != nil && (*v < 0 || *v > 100) {
			return fmt.Errorf("%s %v out of range [0,100]", name, *v)
		}
	}
	return nil
}

// Path returns the backing file.
func (s *HistoryStore) Path() string {
	return s.path
}

// Entries returns the stored entries, oldest first.
func (s *HistoryStore) Entries() []HistoryEntry {
	return s.history.Entries()
}

// Record appends the summary's headline numbers taken at now and persists
// the history.
func (s *HistoryStore) Record(summary *SessionSummary, now time.Time) (HistoryEntry, error) {
	entry := summary.HistoryEntry(now)
	return entry, s.Append(entry)
}

// Append adds e and rewrites the history file atomically. The in-memory
// history only changes once the file has been written, so a failed write
// leaves both as they were.
func (s *HistoryStore) Append(e HistoryEntry) error {
	if err := validateEntry(e); err != nil {
		return fmt.Errorf("history entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(s.history.Entries(), e)
	if over := len(next) - s.history.Cap(); over > 0 {
		next = next[over:]
	}

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}

	s.history.Append(e)
	return nil
}
