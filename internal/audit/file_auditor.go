// Package audit persists a record of every check query the monitor issues.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/guillermoBallester/dqmon/internal/core/domain"
	"github.com/guillermoBallester/dqmon/internal/core/port"
)

var _ port.QueryAuditor = (*FileAuditor)(nil)

// record is one NDJSON line.
type record struct {
	Timestamp    string  `json:"ts"`
	ScanID       string  `json:"scan_id"`
	Check        string  `json:"check"`
	SQL          string  `json:"sql"`
	QueryID      string  `json:"query_id,omitempty"`
	RowsReturned int     `json:"rows_returned"`
	Polls        int     `json:"polls"`
	DurationMS   int64   `json:"duration_ms"`
	ErrorType    string  `json:"error_type,omitempty"`
	Error        *string `json:"error"`
}

// FileAuditor appends one JSON object per executed check query to a file.
type FileAuditor struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	now  func() time.Time
}

// NewFileAuditor opens (or creates) path for append-only writing.
func NewFileAuditor(path string) (*FileAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &FileAuditor{
		file: f,
		enc:  json.NewEncoder(f),
		now:  time.Now,
	}, nil
}

func (a *FileAuditor) Record(_ context.Context, entry port.AuditEntry) {
	rec := record{
		Timestamp:    a.now().UTC().Format(time.RFC3339Nano),
		ScanID:       entry.ScanID,
		Check:        entry.Check,
		SQL:          entry.SQL,
		QueryID:      entry.QueryID,
		RowsReturned: entry.RowsReturned,
		Polls:        entry.Polls,
		DurationMS:   entry.DurationMS,
	}
	if entry.Err != nil {
		msg := entry.Err.Error()
		rec.Error = &msg
		rec.ErrorType = domain.ErrorType(entry.Err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(rec) // best-effort; a scan never fails on audit I/O
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
