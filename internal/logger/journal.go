package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"
)

const defaultJournalLimit = 1000

// Journal keeps the most recent log entries as raw JSON lines so they can be
// shipped to the cold update helper and replayed into its log file.
type Journal struct {
	mu      sync.Mutex
	limit   int
	entries []json.RawMessage
}

// NewJournal creates a journal with the provided capacity (defaults to 1000).
func NewJournal(limit int) *Journal {
	if limit <= 0 {
		limit = defaultJournalLimit
	}
	return &Journal{
		limit:   limit,
		entries: make([]json.RawMessage, 0, limit),
	}
}

// Write implements io.Writer. zerolog emits exactly one JSON document per call.
func (j *Journal) Write(p []byte) (int, error) {
	line := bytes.TrimSpace(p)
	if len(line) == 0 {
		return len(p), nil
	}
	entry := make(json.RawMessage, len(line))
	copy(entry, line)
	j.add(entry)
	return len(p), nil
}

func (j *Journal) add(entry json.RawMessage) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.entries) == j.limit {
		copy(j.entries, j.entries[1:])
		j.entries[len(j.entries)-1] = entry
		return
	}
	j.entries = append(j.entries, entry)
}

// Entries returns a copy of the buffered entries, oldest first.
func (j *Journal) Entries() []json.RawMessage {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]json.RawMessage, len(j.entries))
	copy(out, j.entries)
	return out
}

// Append adds previously captured entries, e.g. entries received from another process.
func (j *Journal) Append(entries []json.RawMessage) {
	for _, entry := range entries {
		if len(entry) == 0 {
			continue
		}
		j.add(entry)
	}
}

// Replay writes every buffered entry to w, one per line, preserving order.
func (j *Journal) Replay(w io.Writer) error {
	for _, entry := range j.Entries() {
		if _, err := w.Write(append(append([]byte{}, entry...), '\n')); err != nil {
			return err
		}
	}
	return nil
}
