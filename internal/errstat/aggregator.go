package errstat

import (
	"context"
	"fmt"
	"sync"

	"github.com/studiowebux/perfwatch/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultPageSize is used when the aggregator is created without a page size
const DefaultPageSize = 500

// Source provides the error and status snapshots of an execution
type Source interface {
	ErrorCounters(ctx context.Context, execID string) ([]types.ErrorCounter, error)
	LatestSummary(ctx context.Context, execID string) ([]types.SampleRow, error)
	ErrorSamples(ctx context.Context, execID string, q types.PageQuery) (*types.Page[types.ErrorSample], error)
	StatusCodes(ctx context.Context, execID string) ([]types.StatusCodeCounter, error)
}

// Aggregator holds the error tab and status code tab state of one execution
type Aggregator struct {
	src      Source
	execID   string
	pageSize int
	log      *zap.Logger

	// loadMu serializes error sample pulls so two pulls never start from the same cursor
	loadMu sync.Mutex

	mu           sync.RWMutex
	errCountList []types.ErrorCountListItem
	execCounts   map[string]Counts
	samples      []types.ErrorSample
	cursor       string
	seenAtCursor map[string]bool
	statusCodes  types.StatusCodeData
	errLoaded    bool
	codesLoaded  bool
}

// NewAggregator creates an empty aggregator for one execution
func NewAggregator(src Source, execID string, pageSize int, log *zap.Logger) *Aggregator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		src:          src,
		execID:       execID,
		pageSize:     pageSize,
		log:          log,
		execCounts:   make(map[string]Counts),
		seenAtCursor: make(map[string]bool),
	}
}

// LoadErrorCount fetches the error counters and the latest sample summary
// concurrently and rebuilds the error count list
func (a *Aggregator) LoadErrorCount(ctx context.Context) error {
	var (
		counters []types.ErrorCounter
		summary  []types.SampleRow
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counters, err = a.src.ErrorCounters(gctx, a.execID)
		if err != nil {
			return fmt.Errorf("failed to load error counters: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		summary, err = a.src.LatestSummary(gctx, a.execID)
		if err != nil {
			return fmt.Errorf("failed to load sample summary: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	counts := ExecCounts(summary)
	list := GetErrCountList(counters, counts)

	a.mu.Lock()
	a.execCounts = counts
	a.errCountList = list
	a.errLoaded = true
	a.mu.Unlock()
	return nil
}

// LoadSampleErrorContent pulls every error sample newer than or equal to the
// cursor. Rows already seen at the cursor timestamp are skipped, so the
// accumulated list only grows. Concurrent calls run one after the other.
// Returns the number of rows added.
func (a *Aggregator) LoadSampleErrorContent(ctx context.Context) (int, error) {
	a.loadMu.Lock()
	defer a.loadMu.Unlock()

	a.mu.RLock()
	cursor := a.cursor
	seen := make(map[string]bool, len(a.seenAtCursor))
	for id := range a.seenAtCursor {
		seen[id] = true
	}
	a.mu.RUnlock()

	var added []types.ErrorSample
	q := types.PageQuery{Cursor: cursor, PageNo: 1, PageSize: a.pageSize}
	for {
		page, err := a.src.ErrorSamples(ctx, a.execID, q)
		if err != nil {
			return 0, fmt.Errorf("failed to load error samples page %d: %w", q.PageNo, err)
		}
		if page == nil || len(page.List) == 0 {
			break
		}

		for _, row := range page.List {
			if row.Timestamp == cursor {
				if seen[row.ID] {
					continue
				}
				seen[row.ID] = true
			} else if cursor == "" || types.ParseTime(row.Timestamp).After(types.ParseTime(cursor)) {
				cursor = row.Timestamp
				seen = map[string]bool{row.ID: true}
			}
			added = append(added, row)
		}

		if len(page.List) < q.PageSize || (page.Total > 0 && int64(q.PageNo*q.PageSize) >= page.Total) {
			break
		}
		q.PageNo++
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	a.mu.Lock()
	a.samples = append(a.samples, added...)
	a.cursor = cursor
	a.seenAtCursor = seen
	a.mu.Unlock()

	if len(added) > 0 {
		a.log.Debug("error samples loaded",
			zap.String("execution", a.execID),
			zap.Int("added", len(added)),
			zap.String("cursor", cursor))
	}
	return len(added), nil
}

// LoadStatusCodes fetches the latest status code snapshot and regroups it
func (a *Aggregator) LoadStatusCodes(ctx context.Context, detail *types.ExecutionDetail) error {
	counters, err := a.src.StatusCodes(ctx, a.execID)
	if err != nil {
		return fmt.Errorf("failed to load status codes: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data := SetStatusCodeData(counters, detail)

	a.mu.Lock()
	a.statusCodes = data
	a.codesLoaded = true
	a.mu.Unlock()
	return nil
}

// Loaded reports which snapshots have been fetched at least once
func (a *Aggregator) Loaded() (errorCounts, statusCodes bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.errLoaded, a.codesLoaded
}

// ErrCountList returns a copy of the error count rows
func (a *Aggregator) ErrCountList() []types.ErrorCountListItem {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]types.ErrorCountListItem, len(a.errCountList))
	for i, item := range a.errCountList {
		item.List = append([]types.ErrorKindCount{}, item.List...)
		out[i] = item
	}
	return out
}

// ExecCounts returns a copy of the latest per-target sample counts
func (a *Aggregator) ExecCounts() map[string]Counts {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]Counts, len(a.execCounts))
	for k, v := range a.execCounts {
		out[k] = v
	}
	return out
}

// ErrorSamples returns a copy of the accumulated error samples
func (a *Aggregator) ErrorSamples() []types.ErrorSample {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]types.ErrorSample{}, a.samples...)
}

// Cursor returns the timestamp the next error sample pull starts from
func (a *Aggregator) Cursor() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cursor
}

// StatusCodeData returns a copy of the grouped status codes
func (a *Aggregator) StatusCodeData() types.StatusCodeData {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(types.StatusCodeData, len(a.statusCodes))
	for i, g := range a.statusCodes {
		g.Children = append([]types.StatusCodeEntry(nil), g.Children...)
		out[i] = g
	}
	return out
}
