package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/studiowebux/perfwatch/internal/errstat"
	"github.com/studiowebux/perfwatch/internal/monitoring"
	"github.com/studiowebux/perfwatch/internal/perfdata"
	"github.com/studiowebux/perfwatch/internal/poller"
	"github.com/studiowebux/perfwatch/internal/types"
	"go.uber.org/zap"
)

// Source is the API surface a session reads from
type Source interface {
	errstat.Source
	Execution(ctx context.Context, execID string) (*types.ExecutionDetail, error)
	Samples(ctx context.Context, execID string, q types.PageQuery) (*types.Page[types.SampleRow], error)
}

// Recorder persists a summary of runs that reached a terminal status
type Recorder interface {
	RecordRun(ctx context.Context, snap *Snapshot) error
}

// Options configures a session
type Options struct {
	PageSize    int
	MinInterval time.Duration
	Keys        []string
	Logger      *zap.Logger
	Recorder    Recorder
}

// Session owns the aggregation state of one open view: the ingestor,
// the error and status aggregator and the poller feeding them.
type Session struct {
	src  Source
	opts Options
	log  *zap.Logger

	mu         sync.RWMutex
	execID     string
	gen        uint64
	detail     *types.ExecutionDetail
	ingestor   *perfdata.Ingestor
	errs       *errstat.Aggregator
	poller     *poller.Poller
	tab        poller.Tab
	loading    bool
	err        error
	updatedAt  time.Time
	done       chan struct{}
	doneClosed bool
	subs       map[int]chan struct{}
	nextSub    int
	closed     bool
}

// New creates an idle session
func New(src Source, opts Options) *Session {
	if opts.PageSize <= 0 {
		opts.PageSize = errstat.DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	log := opts.Logger.Named("session")
	monitoring.ActiveSessions.Inc()
	return &Session{
		src:      src,
		opts:     opts,
		log:      log,
		ingestor: perfdata.NewIngestor(opts.Keys, log.Named("ingest")),
		tab:      poller.TabSamples,
		done:     make(chan struct{}),
		subs:     make(map[int]chan struct{}),
	}
}

// Open resets all state and starts following an execution.
// Results of a previously opened execution are discarded.
func (s *Session) Open(ctx context.Context, execID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session is closed")
	}
	if s.poller != nil {
		s.poller.Close()
	}
	s.gen++
	gen := s.gen
	s.execID = execID
	s.detail = nil
	s.ingestor.Reset()
	s.errs = errstat.NewAggregator(s.src, execID, s.opts.PageSize, s.log.Named("errstat"))
	s.loading = true
	s.err = nil
	s.updatedAt = time.Time{}
	if s.doneClosed {
		s.done = make(chan struct{})
		s.doneClosed = false
	}
	p := poller.New(ctx, &tickHandler{s: s, gen: gen}, poller.Options{
		MinInterval: s.opts.MinInterval,
		Logger:      s.log.Named("poller").With(zap.String("execution", execID)),
	})
	s.poller = p
	tab := s.tab
	s.mu.Unlock()

	detail, err := s.src.Execution(ctx, execID)
	if err != nil {
		err = fmt.Errorf("failed to load execution %s: %w", execID, err)
		s.finish(gen, err)
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	s.detail = detail
	s.updatedAt = time.Now()
	s.notifyLocked()
	s.mu.Unlock()

	s.log.Info("execution opened",
		zap.String("execution", execID),
		zap.String("status", string(detail.Status)),
		zap.Bool("active", poller.IsActive(detail, time.Now())))

	if tab != poller.TabSamples {
		p.SetTab(tab)
	}
	p.OnDetailChange(detail)
	return nil
}

// SetTab switches the panel whose data is refreshed along with the samples
func (s *Session) SetTab(tab poller.Tab) {
	s.mu.Lock()
	s.tab = tab
	p := s.poller
	s.notifyLocked()
	s.mu.Unlock()
	if p != nil {
		p.SetTab(tab)
	}
}

// Subscribe returns a channel signalled whenever the state changes.
// Signals coalesce: a slow reader only sees that something changed and
// reads the latest state with Snapshot.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{}, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

// Done is closed when polling of the current execution stops
func (s *Session) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// Err returns the error that stopped polling, if any
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Close stops polling and releases subscribers. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	if s.poller != nil {
		s.poller.Close()
	}
	s.loading = false
	if !s.doneClosed {
		close(s.done)
		s.doneClosed = true
	}
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()

	monitoring.ActiveSessions.Dec()
}

// notifyLocked signals subscribers without blocking; must hold mu
func (s *Session) notifyLocked() {
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// finish marks polling as stopped and records terminal runs
func (s *Session) finish(gen uint64, err error) {
	s.mu.Lock()
	if s.gen != gen || s.closed {
		s.mu.Unlock()
		return
	}
	execID := s.execID
	s.loading = false
	if err != nil {
		s.err = err
	}
	if !s.doneClosed {
		close(s.done)
		s.doneClosed = true
	}
	s.notifyLocked()

	var snap *Snapshot
	if err == nil && s.opts.Recorder != nil && s.detail != nil && !s.detail.Status.IsActive() {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("polling stopped", zap.String("execution", execID), zap.Error(err))
		return
	}
	if snap != nil {
		if rerr := s.opts.Recorder.RecordRun(context.Background(), snap); rerr != nil {
			s.log.Warn("failed to record run", zap.String("execution", snap.ExecutionID), zap.Error(rerr))
		}
	}
}

// tickHandler binds poller callbacks to the session generation that created them
type tickHandler struct {
	s   *Session
	gen uint64
}

func (h *tickHandler) current() (string, bool) {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	return h.s.execID, h.s.gen == h.gen && !h.s.closed
}

func (h *tickHandler) RefreshDetail(ctx context.Context) (*types.ExecutionDetail, error) {
	execID, ok := h.current()
	if !ok {
		return nil, context.Canceled
	}
	detail, err := h.s.src.Execution(ctx, execID)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh execution %s: %w", execID, err)
	}

	h.s.mu.Lock()
	if h.s.gen == h.gen {
		h.s.detail = detail
		h.s.updatedAt = time.Now()
		h.s.notifyLocked()
	}
	h.s.mu.Unlock()
	return detail, nil
}

// PullSamples fetches every page since the last accepted timestamp and
// ingests them as one batch so a tick split across pages stays whole
func (h *tickHandler) PullSamples(ctx context.Context) error {
	h.s.mu.RLock()
	execID := h.s.execID
	cursor := h.s.ingestor.LastTimestamp()
	detail := h.s.detail
	h.s.mu.RUnlock()

	var rows []types.SampleRow
	q := types.PageQuery{Cursor: cursor, PageNo: 1, PageSize: h.s.opts.PageSize}
	for {
		page, err := h.s.src.Samples(ctx, execID, q)
		if err != nil {
			return fmt.Errorf("failed to load samples page %d: %w", q.PageNo, err)
		}
		if page == nil || len(page.List) == 0 {
			break
		}
		rows = append(rows, page.List...)
		if len(page.List) < q.PageSize || (page.Total > 0 && int64(q.PageNo*q.PageSize) >= page.Total) {
			break
		}
		q.PageNo++
	}
	if len(rows) == 0 {
		return nil
	}

	keys := h.s.opts.Keys
	if len(keys) == 0 {
		keys = perfdata.MetricKeys
	}
	ticks := perfdata.GroupTicks(rows)
	batch := perfdata.ConvertCvsValue(ticks, keys, expectedTargets(detail, rows))

	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.s.gen != h.gen || h.s.closed {
		return nil
	}
	res := h.s.ingestor.Ingest(batch)
	h.s.updatedAt = time.Now()
	h.s.notifyLocked()

	monitoring.IngestedTicks.Add(float64(res.Accepted))
	for _, p := range res.Promotions {
		monitoring.UnitPromotions.WithLabelValues(p.Metric).Inc()
	}
	h.s.log.Debug("samples ingested",
		zap.String("execution", execID),
		zap.Int("rows", len(rows)),
		zap.Int("ticks", res.Accepted),
		zap.Bool("replaced", res.Replaced))
	return nil
}

func (h *tickHandler) RefreshTab(ctx context.Context, tab poller.Tab) error {
	h.s.mu.RLock()
	errs := h.s.errs
	detail := h.s.detail
	h.s.mu.RUnlock()
	if errs == nil {
		return nil
	}

	var err error
	switch tab {
	case poller.TabError:
		if err = errs.LoadErrorCount(ctx); err == nil {
			_, err = errs.LoadSampleErrorContent(ctx)
		}
	case poller.TabHTTPCode:
		err = errs.LoadStatusCodes(ctx, detail)
	}
	if err != nil {
		return err
	}

	h.s.mu.Lock()
	if h.s.gen == h.gen {
		h.s.updatedAt = time.Now()
		h.s.notifyLocked()
	}
	h.s.mu.Unlock()
	return nil
}

func (h *tickHandler) Finished(err error) {
	h.s.finish(h.gen, err)
}

// expectedTargets lists the declared targets followed by any undeclared
// target present in the rows, Total always last
func expectedTargets(detail *types.ExecutionDetail, rows []types.SampleRow) []string {
	declared := detail.TargetNames()
	known := make(map[string]bool, len(declared))
	for _, name := range declared {
		known[name] = true
	}

	targets := append([]string{}, declared[:len(declared)-1]...)
	for _, row := range rows {
		if row.Name == "" || known[row.Name] {
			continue
		}
		known[row.Name] = true
		targets = append(targets, row.Name)
	}
	return append(targets, types.TotalTarget)
}
