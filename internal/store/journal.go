package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event types written to the journal
const (
	EventConnectStarted   = "connect_started"
	EventConnected        = "connected"
	EventConnectFailed    = "connect_failed"
	EventSessionResumed   = "session_resumed"
	EventSessionDiscarded = "session_discarded"
	EventSigned           = "signed"
	EventSent             = "sent"
	EventDisconnected     = "disconnected"
)

// Event is one journal line
type Event struct {
	TS        string         `json:"ts"`
	Type      string         `json:"type"`
	AttemptID string         `json:"attempt_id,omitempty"`
	Provider  string         `json:"provider,omitempty"`
	ChainID   uint64         `json:"chain_id,omitempty"`
	Address   string         `json:"address,omitempty"`
	Error     string         `json:"error,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Journal appends connection events to a JSONL file.
type Journal struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenJournal opens dataDir/journal/connections.jsonl for appending.
func OpenJournal(dataDir string) (*Journal, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data dir not configured")
	}
	dir := filepath.Join(dataDir, "journal")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, "connections.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &Journal{path: path, f: f}, nil
}

// Path returns the journal file path
func (j *Journal) Path() string {
	return j.path
}

// Close is safe on a nil journal
func (j *Journal) Close() {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f != nil {
		_ = j.f.Close()
		j.f = nil
	}
}

// Record writes ev as one line. Detail fields are redacted. A nil journal
// drops the event.
func (j *Journal) Record(ev Event) {
	if j == nil {
		return
	}
	if ev.TS == "" {
		ev.TS = time.Now().UTC().Format(time.RFC3339Nano)
	}
	ev.Detail = RedactMap(ev.Detail)

	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	b = append(b, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return
	}
	_, _ = j.f.Write(b)
}

// ReadJournal returns the last n events from the journal at path, or all
// events when n <= 0.
func ReadJournal(path string, n int) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}
