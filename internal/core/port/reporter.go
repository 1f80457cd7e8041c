package port

import (
	"context"

	"github.com/guillermoBallester/dqmon/internal/core/domain"
)

// ScanReporter publishes a finished scan.
type ScanReporter interface {
	Report(ctx context.Context, result domain.ScanResult) error
}
