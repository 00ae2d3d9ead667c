package history

import (
	"time"

	"github.com/studiowebux/perfwatch/internal/perfdata"
	"github.com/studiowebux/perfwatch/internal/session"
	"github.com/studiowebux/perfwatch/internal/types"
)

// Run is the recorded summary of a watched execution
type Run struct {
	ID           int64     `json:"id" yaml:"id"`
	ExecutionID  string    `json:"executionId" yaml:"executionId"`
	Name         string    `json:"name" yaml:"name"`
	Status       string    `json:"status" yaml:"status"`
	StartedAt    string    `json:"startedAt,omitempty" yaml:"startedAt,omitempty"`
	EndedAt      string    `json:"endedAt,omitempty" yaml:"endedAt,omitempty"`
	RecordedAt   time.Time `json:"recordedAt" yaml:"recordedAt"`
	Ticks        int       `json:"ticks" yaml:"ticks"`
	MaxOps       float64   `json:"maxOps" yaml:"maxOps"`
	MeanOps      float64   `json:"meanOps" yaml:"meanOps"`
	MaxTps       float64   `json:"maxTps" yaml:"maxTps"`
	MeanTps      float64   `json:"meanTps" yaml:"meanTps"`
	MaxBrps      float64   `json:"maxBrps" yaml:"maxBrps"`
	MaxBwps      float64   `json:"maxBwps" yaml:"maxBwps"`
	BrpsUnit     string    `json:"brpsUnit" yaml:"brpsUnit"`
	TotalErrors  int64     `json:"totalErrors" yaml:"totalErrors"`
	TotalSamples float64   `json:"totalSamples" yaml:"totalSamples"`
}

// Tick is one point of a recorded Total series
type Tick struct {
	ID        int64   `json:"id" yaml:"id"`
	RunID     int64   `json:"runId" yaml:"runId"`
	Timestamp string  `json:"timestamp" yaml:"timestamp"`
	Ops       float64 `json:"ops" yaml:"ops"`
	Tps       float64 `json:"tps" yaml:"tps"`
	Brps      float64 `json:"brps" yaml:"brps"`
	Bwps      float64 `json:"bwps" yaml:"bwps"`
	Errors    float64 `json:"errors" yaml:"errors"`
}

// Summarize derives the run record and Total ticks from a session snapshot
func Summarize(snap *session.Snapshot) (*Run, []*Tick) {
	run := &Run{
		ExecutionID: snap.ExecutionID,
		Ticks:       len(snap.Data.Timestamps),
		MaxOps:      snap.Data.Aggregates["ops"].Max,
		MeanOps:     snap.Data.Aggregates["ops"].Mean,
		MaxTps:      snap.Data.Aggregates["tps"].Max,
		MeanTps:     snap.Data.Aggregates["tps"].Mean,
		MaxBrps:     snap.Data.Aggregates["brps"].Max,
		MaxBwps:     snap.Data.Aggregates["bwps"].Max,
		BrpsUnit:    string(snap.Unit(types.TotalTarget, "brps")),
	}
	if d := snap.Detail; d != nil {
		run.Name = d.Name
		run.Status = string(d.Status)
		run.StartedAt = d.ActualStartAt
		run.EndedAt = d.EndDate
	}

	total := snap.Data.ByAPI[types.TotalTarget]
	if counts, ok := snap.ExecCounts[types.TotalTarget]; ok {
		run.TotalErrors = int64(counts.Errors)
		run.TotalSamples = counts.N
	} else {
		run.TotalErrors = int64(sum(total["errors"]))
		run.TotalSamples = sum(total["n"])
	}

	ticks := make([]*Tick, len(snap.Data.Timestamps))
	for i, ts := range snap.Data.Timestamps {
		ticks[i] = &Tick{
			Timestamp: ts,
			Ops:       at(total["ops"], i),
			Tps:       at(total["tps"], i),
			Brps:      at(total["brps"], i),
			Bwps:      at(total["bwps"], i),
			Errors:    at(total["errors"], i),
		}
	}
	return run, ticks
}

func at(series []float64, i int) float64 {
	if i < len(series) {
		return series[i]
	}
	return 0
}

func sum(series []float64) float64 {
	var total float64
	for _, v := range series {
		total += v
	}
	return total
}

// FormatUnit returns the display label of a byte-rate unit
func FormatUnit(unit string) string {
	if unit == string(perfdata.UnitMB) {
		return "MB/s"
	}
	return "KB/s"
}
