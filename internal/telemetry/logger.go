package telemetry

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Journal appends one JSON object per domain event. A nil Journal or one
// opened with an empty path discards everything.
type Journal struct {
	mu  sync.Mutex
	w   io.WriteCloser
	now func() time.Time
}

func NewJournal(path string) (*Journal, error) {
	if path == "" {
		return &Journal{w: nopCloser{Writer: io.Discard}, now: time.Now}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Journal{w: f, now: time.Now}, nil
}

// NewWriterJournal journals to w; used by tests and by stdout mirroring.
func NewWriterJournal(w io.Writer) *Journal {
	return &Journal{w: nopCloser{Writer: w}, now: time.Now}
}

func (j *Journal) Record(event, sessionID string, fields map[string]any) {
	j.write("info", event, sessionID, fields)
}

func (j *Journal) Failure(event, sessionID string, err error) {
	j.write("error", event, sessionID, map[string]any{"error": err.Error()})
}

func (j *Journal) write(level, event, sessionID string, fields map[string]any) {
	if j == nil || j.w == nil {
		return
	}
	entry := map[string]any{
		"ts":    j.now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"event": event,
	}
	if sessionID != "" {
		entry["session"] = sessionID
	}
	for k, v := range fields {
		entry[k] = v
	}
	b, _ := json.Marshal(entry)
	j.mu.Lock()
	defer j.mu.Unlock()
	_, _ = j.w.Write(append(b, '\n'))
}

func (j *Journal) Close() error {
	if j == nil || j.w == nil {
		return nil
	}
	return j.w.Close()
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
