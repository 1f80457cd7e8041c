package port

import "context"

// AuditEntry represents a single executed check query.
type AuditEntry struct {
	ScanID       string
	Check        string
	SQL          string
	QueryID      string
	RowsReturned int
	Polls        int
	DurationMS   int64
	Err          error
}

// QueryAuditor records query audit events.
type QueryAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}

// NoopAuditor discards all audit entries.
type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, AuditEntry) {}
func (NoopAuditor) Close() error                       { return nil }
