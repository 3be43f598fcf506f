// ABOUTME: Append-only status history log stored as JSON lines
// ABOUTME: Resolves the status that was active at a past timestamp for late fixes

package status

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Entry records that status became active at Timestamp.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
}

// History is the append-only status log. Entries are kept in append order,
// which is the order transitions happened and may differ from timestamp order.
type History struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	entries []Entry
	logger  *log.Logger
}

// OpenHistory loads the log at path and opens it for appending. A truncated
// trailing line left by a crash is dropped with a warning. An empty path
// keeps the history in memory only.
func OpenHistory(path string, logger *log.Logger) (*History, error) {
	h := &History{path: path, logger: logger.WithPrefix("history")}
	if path == "" {
		return h, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil { //nolint:gosec // 0750 is appropriate for user data directory
		return nil, fmt.Errorf("create directory: %w", err)
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from config
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read history: %w", err)
	}

	good := h.load(data)
	if good < len(data) {
		h.logger.Warn("dropping truncated history line", "path", path, "bytes", len(data)-good)
		if err := os.Truncate(path, int64(good)); err != nil {
			return nil, fmt.Errorf("truncate history: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600) //nolint:gosec // path comes from config
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	h.file = f
	return h, nil
}

// load parses complete lines and returns the length of the valid prefix.
func (h *History) load(data []byte) int {
	offset := 0
	lineNo := 0
	for offset < len(data) {
		nl := bytes.IndexByte(data[offset:], '\n')
		if nl < 0 {
			// no newline: the write was interrupted
			return offset
		}
		line := data[offset : offset+nl]
		offset += nl + 1
		lineNo++
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			h.logger.Warn("skipping corrupt history line", "line", lineNo, "err", err)
			continue
		}
		h.entries = append(h.entries, e)
	}
	return offset
}

// Append adds an entry to the in-memory log and persists it with fsync. The
// in-memory log is updated even when persisting fails.
func (h *History) Append(e Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, e)
	if h.file == nil {
		return nil
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	line = append(line, '\n')
	if _, err := h.file.Write(line); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := h.file.Sync(); err != nil {
		return fmt.Errorf("sync history: %w", err)
	}
	return nil
}

// StatusAt returns the status of the most recently appended entry whose
// timestamp is strictly before t, or Stopped if there is none.
func (h *History) StatusAt(t time.Time) Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].Timestamp.Before(t) {
			return h.entries[i].Status
		}
	}
	return Stopped()
}

// StatusThrough is StatusAt with the boundary included: an entry appended
// exactly at t counts. A transition at t that differs from StatusAt(t) means
// t sits on the edge between two statuses.
func (h *History) StatusThrough(t time.Time) Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := len(h.entries) - 1; i >= 0; i-- {
		if !h.entries[i].Timestamp.After(t) {
			return h.entries[i].Status
		}
	}
	return Stopped()
}

// Last returns the most recently appended entry.
func (h *History) Last() (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) == 0 {
		return Entry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Entries returns a copy of the log in append order.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// RecordingRefs returns every recording referenced by the log, in order of
// first appearance. Entries that were immediately reverted do not count.
func (h *History) RecordingRefs() []uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[uuid.UUID]bool)
	var refs []uuid.UUID
	for i, e := range h.entries {
		id, ok := e.Status.RecordingRef()
		if !ok || seen[id] || h.revertedLocked(i) {
			continue
		}
		seen[id] = true
		refs = append(refs, id)
	}
	return refs
}

// revertedLocked reports whether entry i was undone by the next entry: same
// timestamp, back to the status that preceded it. A transition whose store
// effect failed leaves this pair behind.
func (h *History) revertedLocked(i int) bool {
	if i+1 >= len(h.entries) {
		return false
	}
	prev := Stopped()
	if i > 0 {
		prev = h.entries[i-1].Status
	}
	next := h.entries[i+1]
	return next.Timestamp.Equal(h.entries[i].Timestamp) && next.Status == prev
}

// Close closes the underlying file.
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	return err
}
