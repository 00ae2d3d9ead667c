package session

import (
	"time"

	"github.com/studiowebux/perfwatch/internal/errstat"
	"github.com/studiowebux/perfwatch/internal/perfdata"
	"github.com/studiowebux/perfwatch/internal/poller"
	"github.com/studiowebux/perfwatch/internal/types"
)

// Snapshot is a copy of everything a view binds to
type Snapshot struct {
	ExecutionID  string                     `json:"executionId" yaml:"executionId"`
	Detail       *types.ExecutionDetail     `json:"detail,omitempty" yaml:"detail,omitempty"`
	Tab          poller.Tab                 `json:"tab" yaml:"tab"`
	Loading      bool                       `json:"loading" yaml:"loading"`
	Error        string                     `json:"error,omitempty" yaml:"error,omitempty"`
	UpdatedAt    time.Time                  `json:"updatedAt" yaml:"updatedAt"`
	Data         perfdata.State             `json:"data" yaml:"data"`
	ErrorCounts  []types.ErrorCountListItem `json:"errorCounts" yaml:"errorCounts"`
	ExecCounts   map[string]errstat.Counts  `json:"execCounts" yaml:"execCounts"`
	ErrorSamples []types.ErrorSample        `json:"errorSamples" yaml:"errorSamples"`
	StatusCodes  types.StatusCodeData       `json:"statusCodes" yaml:"statusCodes"`

	// set once the matching tab data has been fetched
	ErrorsLoaded      bool `json:"errorsLoaded" yaml:"errorsLoaded"`
	StatusCodesLoaded bool `json:"statusCodesLoaded" yaml:"statusCodesLoaded"`
}

// Snapshot returns a deep copy of the current state
func (s *Session) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// snapshotLocked builds a snapshot; must hold mu
func (s *Session) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		ExecutionID: s.execID,
		Tab:         s.tab,
		Loading:     s.loading,
		UpdatedAt:   s.updatedAt,
		Data:        s.ingestor.State(),
	}
	if s.detail != nil {
		d := *s.detail
		d.Pipelines = append([]types.Pipeline(nil), s.detail.Pipelines...)
		snap.Detail = &d
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	if s.errs != nil {
		snap.ErrorCounts = s.errs.ErrCountList()
		snap.ExecCounts = s.errs.ExecCounts()
		snap.ErrorSamples = s.errs.ErrorSamples()
		snap.StatusCodes = s.errs.StatusCodeData()
		snap.ErrorsLoaded, snap.StatusCodesLoaded = s.errs.Loaded()
	}
	return snap
}

// Latest returns the most recent value of every metric per target
func (snap *Snapshot) Latest() map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(snap.Data.ByAPI))
	for target, metrics := range snap.Data.ByAPI {
		values := make(map[string]float64, len(metrics))
		for key, series := range metrics {
			if len(series) > 0 {
				values[key] = series[len(series)-1]
			}
		}
		out[target] = values
	}
	return out
}

// Unit returns the byte-rate unit of a target's metric in the snapshot
func (snap *Snapshot) Unit(target, key string) perfdata.Unit {
	if u, ok := snap.Data.Units[target][key]; ok {
		return u
	}
	return perfdata.UnitKB
}
