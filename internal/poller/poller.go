package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/studiowebux/perfwatch/internal/monitoring"
	"github.com/studiowebux/perfwatch/internal/types"
	"go.uber.org/zap"
)

// State is the poller lifecycle state
type State int

const (
	Idle State = iota
	Scheduled
	Fetching
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scheduled:
		return "scheduled"
	case Fetching:
		return "fetching"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// transitions lists the states reachable from each state
var transitions = map[State][]State{
	Idle:      {Scheduled, Fetching, Stopped},
	Scheduled: {Fetching, Stopped},
	Fetching:  {Scheduled, Stopped},
	Stopped:   {Scheduled, Fetching},
}

// CanTransition reports whether the state machine allows from -> to
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Tab is the panel currently shown next to the charts
type Tab string

const (
	TabSamples  Tab = "samples"
	TabError    Tab = "error"
	TabHTTPCode Tab = "httpCode"
)

// Lazy reports whether the tab's data is only fetched while it is shown
func (t Tab) Lazy() bool {
	return t == TabError || t == TabHTTPCode
}

// ParseTab validates a tab name
func ParseTab(name string) (Tab, error) {
	switch Tab(name) {
	case TabSamples, TabError, TabHTTPCode:
		return Tab(name), nil
	case "":
		return TabSamples, nil
	}
	return "", fmt.Errorf("unknown tab %q (expected samples, error or httpCode)", name)
}

// Handler performs the fetches the poller drives.
// Methods may be called from timer goroutines.
type Handler interface {
	// RefreshDetail reloads the execution detail
	RefreshDetail(ctx context.Context) (*types.ExecutionDetail, error)
	// PullSamples fetches and ingests every sample page since the cursor
	PullSamples(ctx context.Context) error
	// RefreshTab reloads the data of a lazy tab
	RefreshTab(ctx context.Context, tab Tab) error
	// Finished is called each time polling stops, with the error that stopped it
	Finished(err error)
}

// Options configures a poller
type Options struct {
	MinInterval time.Duration
	Logger      *zap.Logger
	Now         func() time.Time
}

// Poller schedules fetch ticks for one execution. At most one timer exists
// at a time and every state change goes through the transition table.
type Poller struct {
	h           Handler
	minInterval time.Duration
	log         *zap.Logger
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        State
	timer        *time.Timer
	gen          uint64
	closed       bool
	drained      bool
	drainPending bool
	tab          Tab
	loaded       map[Tab]bool
	inflight     map[Tab]bool // on-demand tab loads still running
}

// New creates an idle poller
func New(ctx context.Context, h Handler, opts Options) *Poller {
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Poller{
		h:           h,
		minInterval: opts.MinInterval,
		log:         opts.Logger,
		now:         opts.Now,
		ctx:         ctx,
		cancel:      cancel,
		state:       Idle,
		tab:         TabSamples,
		loaded:      make(map[Tab]bool),
		inflight:    make(map[Tab]bool),
	}
}

// State returns the current state
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Tab returns the active tab
func (p *Poller) Tab() Tab {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tab
}

// OnDetailChange inspects a new execution detail. An active execution starts
// polling immediately when idle or stopped. A terminal one cancels the pending
// timer, drains the remaining samples once and stops.
func (p *Poller) OnDetailChange(detail *types.ExecutionDetail) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	active := IsActive(detail, p.now())
	switch p.state {
	case Idle, Stopped:
		if active {
			p.drained = false
			p.schedule(0)
		} else if !p.drained {
			p.startFetch(true)
		}
	case Scheduled:
		if !active {
			p.stopTimer()
			p.startFetch(true)
		}
	case Fetching:
		if !active {
			p.drainPending = true
		}
	}
}

// SetTab switches the active tab. The first switch to a lazy tab fetches
// its data right away; later refreshes happen on ticks while it stays active.
func (p *Poller) SetTab(tab Tab) {
	p.mu.Lock()
	p.tab = tab
	if p.closed || !tab.Lazy() || p.loaded[tab] {
		p.mu.Unlock()
		return
	}
	p.loaded[tab] = true
	p.inflight[tab] = true
	gen := p.gen
	p.mu.Unlock()

	go func() {
		err := p.h.RefreshTab(p.ctx, tab)
		p.mu.Lock()
		delete(p.inflight, tab)
		p.mu.Unlock()
		if err != nil {
			p.fail(gen, err)
		}
	}()
}

// tabToRefresh returns the lazy tab a tick should refresh, skipping a tab
// whose on-demand load is still running
func (p *Poller) tabToRefresh() (Tab, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tab, p.tab.Lazy() && !p.inflight[p.tab]
}

// Close cancels the pending timer and any in-flight fetch. Results of a
// fetch racing Close are discarded. Safe to call more than once.
func (p *Poller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.gen++
	p.stopTimer()
	if p.state != Stopped {
		p.transition(Stopped)
	}
	p.cancel()
}

// transition moves to a new state; must hold mu
func (p *Poller) transition(to State) bool {
	if !CanTransition(p.state, to) {
		p.log.Warn("invalid poller transition",
			zap.Stringer("from", p.state),
			zap.Stringer("to", to))
		return false
	}
	p.state = to
	return true
}

// schedule arms the single tick timer; must hold mu
func (p *Poller) schedule(delay time.Duration) {
	if !p.transition(Scheduled) {
		return
	}
	p.stopTimer()
	gen := p.gen
	p.timer = time.AfterFunc(delay, func() { p.fire(gen) })
}

// stopTimer disarms the tick timer; must hold mu
func (p *Poller) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// startFetch runs a tick or a drain in the background; must hold mu
func (p *Poller) startFetch(drain bool) {
	if !p.transition(Fetching) {
		return
	}
	go p.run(p.gen, drain)
}

func (p *Poller) fire(gen uint64) {
	p.mu.Lock()
	if p.closed || p.gen != gen || p.state != Scheduled {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	ok := p.transition(Fetching)
	p.mu.Unlock()
	if ok {
		p.run(gen, false)
	}
}

// current reports whether results of a fetch started under gen still apply
func (p *Poller) current(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed && p.gen == gen
}

func (p *Poller) run(gen uint64, drain bool) {
	kind := "tick"
	if drain {
		kind = "drain"
	}
	monitoring.PollTicks.WithLabelValues(kind).Inc()

	var detail *types.ExecutionDetail
	if !drain {
		var err error
		detail, err = p.h.RefreshDetail(p.ctx)
		if err != nil {
			p.fail(gen, err)
			return
		}
		if !p.current(gen) {
			return
		}
		// a tick that sees a terminal status finishes as a drain
		drain = !IsActive(detail, p.now())
	}

	if err := p.h.PullSamples(p.ctx); err != nil {
		p.fail(gen, err)
		return
	}
	if tab, ok := p.tabToRefresh(); ok {
		if err := p.h.RefreshTab(p.ctx, tab); err != nil {
			p.fail(gen, err)
			return
		}
	}

	p.mu.Lock()
	if p.closed || p.gen != gen {
		p.mu.Unlock()
		return
	}
	if drain {
		p.drainPending = false
		p.drained = true
		p.transition(Stopped)
		p.mu.Unlock()
		p.log.Debug("polling finished")
		p.h.Finished(nil)
		return
	}
	if p.drainPending {
		// a terminal detail arrived mid-tick; pull once more before stopping
		p.drainPending = false
		p.mu.Unlock()
		p.run(gen, true)
		return
	}
	interval := ParseInterval(detail.ReportInterval, p.minInterval)
	p.schedule(interval)
	p.mu.Unlock()

	p.log.Debug("next tick scheduled", zap.Duration("interval", interval))
}

// fail stops polling after a fetch error; no retry is attempted
func (p *Poller) fail(gen uint64, err error) {
	p.mu.Lock()
	if p.closed || p.gen != gen {
		p.mu.Unlock()
		return
	}
	// fetches still in flight belong to the failed generation
	p.gen++
	p.stopTimer()
	if p.state != Stopped {
		p.transition(Stopped)
	}
	p.drainPending = false
	p.mu.Unlock()

	monitoring.PollFailures.Inc()
	p.log.Warn("polling stopped on fetch error", zap.Error(err))
	p.h.Finished(err)
}
