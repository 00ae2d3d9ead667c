// Package replay serves a recorded execution dump through the same source
// interface as the live API, so offline analysis runs the live ingestion path.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/studiowebux/perfwatch/internal/client"
	"github.com/studiowebux/perfwatch/internal/types"
	"github.com/tidwall/jsonc"
)

// Dump is a recorded execution. Comments and trailing commas are allowed.
type Dump struct {
	Execution     types.ExecutionDetail     `json:"execution"`
	Samples       []types.SampleRow         `json:"samples"`
	Summary       []types.SampleRow         `json:"summary,omitempty"`
	ErrorCounters []types.ErrorCounter      `json:"errorCounters,omitempty"`
	ErrorSamples  []types.ErrorSample       `json:"errorSamples,omitempty"`
	StatusCodes   []types.StatusCodeCounter `json:"statusCodes,omitempty"`
}

// Source answers source queries from a dump held in memory
type Source struct {
	dump Dump
}

// Load reads a JSONC dump file
func Load(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dump: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSONC dump
func Parse(data []byte) (*Source, error) {
	var dump Dump
	if err := json.Unmarshal(jsonc.ToJSON(data), &dump); err != nil {
		return nil, fmt.Errorf("failed to parse dump: %w", err)
	}
	if dump.Execution.ID == "" {
		return nil, fmt.Errorf("dump has no execution id")
	}
	// replays are never live
	if dump.Execution.Status.IsActive() || dump.Execution.Status == "" {
		dump.Execution.Status = types.StatusCompleted
	}
	sort.SliceStable(dump.Samples, func(i, j int) bool {
		return dump.Samples[i].Timestamp < dump.Samples[j].Timestamp
	})
	sort.SliceStable(dump.ErrorSamples, func(i, j int) bool {
		return dump.ErrorSamples[i].Timestamp < dump.ErrorSamples[j].Timestamp
	})
	return &Source{dump: dump}, nil
}

// ExecutionID returns the id of the recorded execution
func (s *Source) ExecutionID() string {
	return s.dump.Execution.ID
}

func (s *Source) check(execID string) error {
	if execID != s.dump.Execution.ID {
		return &client.APIError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf("execution %s not in dump", execID)}
	}
	return nil
}

// Execution returns the recorded detail
func (s *Source) Execution(ctx context.Context, execID string) (*types.ExecutionDetail, error) {
	if err := s.check(execID); err != nil {
		return nil, err
	}
	d := s.dump.Execution
	d.Pipelines = append([]types.Pipeline(nil), s.dump.Execution.Pipelines...)
	return &d, nil
}

// Samples pages through the recorded rows with timestamp >= cursor
func (s *Source) Samples(ctx context.Context, execID string, q types.PageQuery) (*types.Page[types.SampleRow], error) {
	if err := s.check(execID); err != nil {
		return nil, err
	}
	var rows []types.SampleRow
	for _, r := range s.dump.Samples {
		if q.Cursor == "" || r.Timestamp >= q.Cursor {
			rows = append(rows, r)
		}
	}
	return page(rows, q), nil
}

// LatestSummary returns the recorded summary, or the last tick of the samples
func (s *Source) LatestSummary(ctx context.Context, execID string) ([]types.SampleRow, error) {
	if err := s.check(execID); err != nil {
		return nil, err
	}
	if len(s.dump.Summary) > 0 {
		return append([]types.SampleRow(nil), s.dump.Summary...), nil
	}
	n := len(s.dump.Samples)
	if n == 0 {
		return nil, nil
	}
	last := s.dump.Samples[n-1].Timestamp
	var rows []types.SampleRow
	for _, r := range s.dump.Samples {
		if r.Timestamp == last {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

// ErrorCounters returns the recorded counters
func (s *Source) ErrorCounters(ctx context.Context, execID string) ([]types.ErrorCounter, error) {
	if err := s.check(execID); err != nil {
		return nil, err
	}
	return append([]types.ErrorCounter(nil), s.dump.ErrorCounters...), nil
}

// ErrorSamples pages through the recorded error samples with timestamp >= cursor
func (s *Source) ErrorSamples(ctx context.Context, execID string, q types.PageQuery) (*types.Page[types.ErrorSample], error) {
	if err := s.check(execID); err != nil {
		return nil, err
	}
	var samples []types.ErrorSample
	for _, e := range s.dump.ErrorSamples {
		if q.Cursor == "" || !types.ParseTime(e.Timestamp).Before(types.ParseTime(q.Cursor)) {
			samples = append(samples, e)
		}
	}
	return page(samples, q), nil
}

// StatusCodes returns the recorded status code snapshot
func (s *Source) StatusCodes(ctx context.Context, execID string) ([]types.StatusCodeCounter, error) {
	if err := s.check(execID); err != nil {
		return nil, err
	}
	return append([]types.StatusCodeCounter(nil), s.dump.StatusCodes...), nil
}

func page[T any](items []T, q types.PageQuery) *types.Page[T] {
	size := q.PageSize
	if size <= 0 {
		size = len(items)
	}
	no := q.PageNo
	if no < 1 {
		no = 1
	}
	start := (no - 1) * size
	if start > len(items) {
		start = len(items)
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return &types.Page[T]{List: items[start:end], Total: int64(len(items))}
}
