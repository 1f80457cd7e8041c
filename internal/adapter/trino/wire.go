package trino

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/guillermoBallester/dqmon/internal/core/domain"
)

// Protocol headers.
const (
	headerUser    = "X-Trino-User"
	headerCatalog = "X-Trino-Catalog"
	headerSchema  = "X-Trino-Schema"
	headerSource  = "X-Trino-Source"
)

// statementResponse is the JSON document returned by both the submission and
// the continuation endpoints.
type statementResponse struct {
	ID      string          `json:"id"`
	InfoURI string          `json:"infoUri"`
	NextURI string          `json:"nextUri"`
	Columns []column        `json:"columns"`
	Data    [][]any         `json:"data"`
	Stats   statementStats  `json:"stats"`
	Error   *statementError `json:"error"`
}

type column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type statementStats struct {
	State           string `json:"state"`
	Queued          bool   `json:"queued"`
	Scheduled       bool   `json:"scheduled"`
	ProcessedRows   int64  `json:"processedRows"`
	ElapsedTimeMS   int64  `json:"elapsedTimeMillis"`
	CompletedSplits int    `json:"completedSplits"`
	TotalSplits     int    `json:"totalSplits"`
}

type statementError struct {
	Message   string `json:"message"`
	ErrorCode int    `json:"errorCode"`
	ErrorName string `json:"errorName"`
	ErrorType string `json:"errorType"`
}

// decodeStatement parses a response body. Numbers stay json.Number so large
// counts are not rounded.
func decodeStatement(body []byte) (*statementResponse, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var resp statementResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding statement response: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decoding statement response: trailing data after JSON document")
	}
	return &resp, nil
}

// page converts the wire document into the domain's page.
func (r *statementResponse) page() domain.Page {
	p := domain.Page{
		ID:      r.ID,
		NextURI: r.NextURI,
		State:   domain.ParseQueryState(r.Stats.State),
	}
	if len(r.Columns) > 0 {
		p.Columns = make([]string, len(r.Columns))
		for i, c := range r.Columns {
			p.Columns[i] = c.Name
		}
	}
	if len(r.Data) > 0 {
		p.Rows = make([]domain.Row, len(r.Data))
		for i, d := range r.Data {
			p.Rows[i] = domain.Row(d)
		}
	}
	if r.Error != nil {
		p.Diagnostics = r.Error.diagnostics()
		// An error document without an explicit terminal state is still a failure.
		if !p.State.Terminal() {
			p.State = domain.StateFailed
		}
	}
	return p
}

func (e *statementError) diagnostics() string {
	switch {
	case e.ErrorName != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.ErrorName, e.Message)
	case e.Message != "":
		return e.Message
	default:
		return e.ErrorName
	}
}

// infoResponse is the subset of /v1/info the liveness probe reads.
type infoResponse struct {
	Starting bool `json:"starting"`
}

// starting reports whether an info document says the coordinator is still
// starting. Bodies that are not JSON are not treated as starting.
func starting(body []byte) bool {
	var info infoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return false
	}
	return info.Starting
}
