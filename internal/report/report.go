// Package report renders scan results for humans and machines.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/guillermoBallester/dqmon/internal/core/domain"
	"github.com/guillermoBallester/dqmon/internal/core/port"
	"github.com/jedib0t/go-pretty/v6/table"
)

const bannerWidth = 60

// Render formats a scan as a text report. It has no side effects.
func Render(res domain.ScanResult) string {
	var b strings.Builder
	rule := strings.Repeat("=", bannerWidth)

	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "DATA QUALITY SCAN  %s\n", res.StartedAt.UTC().Format(time.RFC3339))
	if res.ID != "" {
		fmt.Fprintf(&b, "scan %s\n", res.ID)
	}
	fmt.Fprintln(&b, rule)

	if res.Total() > 0 {
		b.WriteString(outcomeTable(res.Outcomes))
		b.WriteString("\n")
	}

	passed, total := res.PassedCount(), res.Total()
	fmt.Fprintf(&b, "SCAN SUMMARY: %d/%d checks passed\n", passed, total)

	failed := res.NotPassed()
	if len(failed) == 0 {
		b.WriteString("All data quality checks PASSED\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%d checks FAILED\n", len(failed))
	b.WriteString("Failed checks:\n")
	for _, o := range failed {
		fmt.Fprintf(&b, "  ✗ %s\n", o.Name)
		if o.Error != "" {
			fmt.Fprintf(&b, "      %s\n", o.Error)
		}
	}
	return b.String()
}

func outcomeTable(outcomes []domain.CheckOutcome) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Check", "Severity", "Observed", "Verdict"})
	for i, o := range outcomes {
		t.AppendRow(table.Row{i + 1, o.Name, string(o.Severity), domain.FormatObserved(o.Observed), string(o.Verdict)})
	}
	return t.Render()
}

// Summary is the machine-readable form of a scan.
type Summary struct {
	domain.ScanResult
	Total  int      `json:"total"`
	Passed int      `json:"passed"`
	Failed []string `json:"failed"`
}

// RenderJSON returns the scan as indented JSON with summary counts.
func RenderJSON(res domain.ScanResult) ([]byte, error) {
	// encoding/json refuses NaN and infinities; report them as unobserved
	// rather than losing the whole scan.
	if len(res.Outcomes) > 0 {
		outcomes := make([]domain.CheckOutcome, len(res.Outcomes))
		copy(outcomes, res.Outcomes)
		for i, o := range outcomes {
			if o.Observed != nil && !domain.IsFinite(*o.Observed) {
				outcomes[i].Observed = nil
			}
		}
		res.Outcomes = outcomes
	}
	s := Summary{
		ScanResult: res,
		Total:      res.Total(),
		Passed:     res.PassedCount(),
		Failed:     []string{},
	}
	for _, o := range res.NotPassed() {
		s.Failed = append(s.Failed, o.Name)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding scan result: %w", err)
	}
	return data, nil
}

// Format selects the output encoding of a Writer.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name; empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("invalid report format %q (valid: text, json)", s)
	}
}

var _ port.ScanReporter = (*Writer)(nil)

// Writer publishes every scan to an io.Writer, typically stdout.
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	format Format
}

func NewWriter(out io.Writer, format Format) *Writer {
	return &Writer{out: out, format: format}
}

func (w *Writer) Report(_ context.Context, res domain.ScanResult) error {
	var payload []byte
	switch w.format {
	case FormatJSON:
		data, err := RenderJSON(res)
		if err != nil {
			return err
		}
		payload = append(data, '\n')
	default:
		payload = []byte(Render(res))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(payload); err != nil {
		return fmt.Errorf("writing scan report: %w", err)
	}
	return nil
}
