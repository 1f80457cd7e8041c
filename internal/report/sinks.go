package report

import (
	"context"
	"errors"
	"sync"

	"github.com/guillermoBallester/dqmon/internal/core/domain"
	"github.com/guillermoBallester/dqmon/internal/core/port"
)

var (
	_ port.ScanReporter = (*Latest)(nil)
	_ port.ScanReporter = Tee(nil)
)

// Latest keeps the most recent scan in memory. Older scans are dropped.
type Latest struct {
	mu     sync.RWMutex
	result *domain.ScanResult
}

func NewLatest() *Latest {
	return &Latest{}
}

func (l *Latest) Report(_ context.Context, res domain.ScanResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.result = &res
	return nil
}

// Get returns the most recent scan, if any.
func (l *Latest) Get() (domain.ScanResult, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.result == nil {
		return domain.ScanResult{}, false
	}
	return *l.result, true
}

// Tee publishes each scan to every reporter in order. All reporters run even
// when one fails; the errors are joined.
type Tee []port.ScanReporter

func (t Tee) Report(ctx context.Context, res domain.ScanResult) error {
	var errs []error
	for _, r := range t {
		if err := r.Report(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
