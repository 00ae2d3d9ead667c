package perfdata

import (
	"github.com/studiowebux/perfwatch/internal/types"
	"go.uber.org/zap"
)

// ApiDimensionData maps target -> metric -> series
type ApiDimensionData map[string]map[string][]float64

// IndexDimensionData maps metric -> target -> series
type IndexDimensionData map[string]map[string][]float64

// Promotion records a byte-rate series switching from KB to MB
type Promotion struct {
	Target string `json:"target"`
	Metric string `json:"metric"`
}

// IngestResult describes what one Ingest call changed
type IngestResult struct {
	Accepted   int
	Replaced   bool
	Promotions []Promotion
}

// Ingestor folds decoded ticks into the by-API and by-metric indexes.
// It is not safe for concurrent use; callers serialize access.
type Ingestor struct {
	keys       []string
	timestamps []string
	history    []types.ListData
	targets    []string
	byAPI      ApiDimensionData
	byIndex    IndexDimensionData
	units      map[string]map[string]Unit
	aggregates map[string]Aggregate // raw values, converted on read
	lastPushed []string
	log        *zap.Logger
}

// NewIngestor creates an empty ingestor seeded with the Total target
func NewIngestor(keys []string, log *zap.Logger) *Ingestor {
	if log == nil {
		log = zap.NewNop()
	}
	if len(keys) == 0 {
		keys = MetricKeys
	}
	in := &Ingestor{keys: keys, log: log}
	in.Reset()
	return in
}

// Reset discards all state and re-seeds the Total bucket
func (in *Ingestor) Reset() {
	in.timestamps = nil
	in.history = nil
	in.targets = nil
	in.byAPI = make(ApiDimensionData)
	in.byIndex = make(IndexDimensionData)
	in.units = make(map[string]map[string]Unit)
	in.aggregates = make(map[string]Aggregate)
	in.lastPushed = nil
	for _, key := range in.keys {
		in.byIndex[key] = make(map[string][]float64)
	}
	in.ensureTarget(types.TotalTarget)
}

// Ingest appends a batch of decoded ticks.
// When the batch starts at the last accepted timestamp, the previously accepted
// tick is replaced rather than duplicated. An empty batch is a no-op.
func (in *Ingestor) Ingest(batch []types.ListData) IngestResult {
	var res IngestResult
	if len(batch) == 0 {
		return res
	}

	if n := len(in.timestamps); n > 0 && in.timestamps[n-1] == batch[0].Timestamp {
		in.dropLast()
		res.Replaced = true
	}

	in.recomputeAggregates(batch)

	for _, tick := range batch {
		in.timestamps = append(in.timestamps, tick.Timestamp)
		in.history = append(in.history, tick)

		pushed := make([]string, 0, len(tick.Values))
		for _, item := range tick.Values {
			in.ensureTarget(item.Name)
			for _, key := range in.keys {
				v := item.Values[key]
				if IsByteRate(key) {
					var promoted bool
					v, promoted = in.convertByteRate(item.Name, key, v)
					if promoted {
						res.Promotions = append(res.Promotions, Promotion{Target: item.Name, Metric: key})
					}
				}
				in.byAPI[item.Name][key] = append(in.byAPI[item.Name][key], v)
				in.byIndex[key][item.Name] = append(in.byIndex[key][item.Name], v)
			}
			pushed = append(pushed, item.Name)
		}
		in.lastPushed = pushed
		res.Accepted++
	}

	return res
}

// ensureTarget lazily creates empty series for a target in both indexes
func (in *Ingestor) ensureTarget(target string) {
	if _, ok := in.byAPI[target]; ok {
		return
	}
	in.targets = append(in.targets, target)
	series := make(map[string][]float64, len(in.keys))
	for _, key := range in.keys {
		series[key] = []float64{}
		if _, ok := in.byIndex[key]; !ok {
			in.byIndex[key] = make(map[string][]float64)
		}
		in.byIndex[key][target] = []float64{}
	}
	in.byAPI[target] = series
	in.units[target] = map[string]Unit{"brps": UnitKB, "bwps": UnitKB}
}

// dropLast removes the last accepted tick from every structure
func (in *Ingestor) dropLast() {
	n := len(in.timestamps)
	if n == 0 {
		return
	}
	in.timestamps = in.timestamps[:n-1]
	in.history = in.history[:len(in.history)-1]
	for _, target := range in.lastPushed {
		for _, key := range in.keys {
			if s := in.byAPI[target][key]; len(s) > 0 {
				in.byAPI[target][key] = s[:len(s)-1]
			}
			if s := in.byIndex[key][target]; len(s) > 0 {
				in.byIndex[key][target] = s[:len(s)-1]
			}
		}
	}
	in.lastPushed = nil
}

// recomputeAggregates rescans the whole Total history plus the incoming batch
func (in *Ingestor) recomputeAggregates(batch []types.ListData) {
	all := make([]types.ListData, 0, len(in.history)+len(batch))
	all = append(all, in.history...)
	all = append(all, batch...)
	for _, key := range AggregateKeys {
		in.aggregates[key] = ComputeAggregate(ExtractData(all, key, types.TotalTarget))
	}
}

// convertByteRate converts a raw bytes/s value to the series unit, promoting
// the series to MB (and rescaling its history) when the KB value exceeds 1000
func (in *Ingestor) convertByteRate(target, key string, raw float64) (float64, bool) {
	kb := raw / bytesPerKB
	promoted := false
	if in.units[target][key] != UnitMB && kb > promoteAboveKB {
		in.units[target][key] = UnitMB
		rescale(in.byAPI[target][key], bytesPerKB)
		rescale(in.byIndex[key][target], bytesPerKB)
		promoted = true
		in.log.Debug("byte rate unit promoted",
			zap.String("target", target),
			zap.String("metric", key),
			zap.Float64("kb", kb))
	}
	if in.units[target][key] == UnitMB {
		return kb / bytesPerKB, promoted
	}
	return kb, promoted
}

func rescale(series []float64, divisor float64) {
	for i := range series {
		series[i] /= divisor
	}
}

// Len returns the number of accepted ticks
func (in *Ingestor) Len() int {
	return len(in.timestamps)
}

// LastTimestamp returns the most recent accepted timestamp
func (in *Ingestor) LastTimestamp() string {
	if len(in.timestamps) == 0 {
		return ""
	}
	return in.timestamps[len(in.timestamps)-1]
}

// Timestamps returns a copy of the timestamp axis
func (in *Ingestor) Timestamps() []string {
	return append([]string{}, in.timestamps...)
}

// Targets returns a copy of the known targets in discovery order
func (in *Ingestor) Targets() []string {
	return append([]string{}, in.targets...)
}

// Series returns a copy of the by-API series of a metric for a target.
// Later promotions or replaced ticks do not change it.
func (in *Ingestor) Series(target, key string) []float64 {
	return append([]float64{}, in.byAPI[target][key]...)
}

// IndexSeries returns a copy of the by-metric series of a target for a metric
func (in *Ingestor) IndexSeries(key, target string) []float64 {
	return append([]float64{}, in.byIndex[key][target]...)
}

// Unit returns the current unit of a byte-rate series
func (in *Ingestor) Unit(target, key string) Unit {
	if u, ok := in.units[target][key]; ok {
		return u
	}
	return UnitKB
}

// Aggregate returns the Total aggregate of a metric.
// Byte rates are expressed in the Total series' current unit.
func (in *Ingestor) Aggregate(key string) Aggregate {
	agg := in.aggregates[key]
	if !IsByteRate(key) {
		return agg
	}
	divisor := bytesPerKB
	if in.Unit(types.TotalTarget, key) == UnitMB {
		divisor *= bytesPerKB
	}
	return agg.scaled(divisor)
}

// MaxOps returns the highest Total ops observed
func (in *Ingestor) MaxOps() float64 {
	return in.aggregates["ops"].Max
}

// MaxTps returns the highest Total tps observed
func (in *Ingestor) MaxTps() float64 {
	return in.aggregates["tps"].Max
}

// State is a deep copy of the ingestor's outbound data
type State struct {
	Timestamps []string                   `json:"timestamps"`
	Targets    []string                   `json:"targets"`
	ByAPI      ApiDimensionData           `json:"byApi"`
	ByIndex    IndexDimensionData         `json:"byIndex"`
	Units      map[string]map[string]Unit `json:"units"`
	Aggregates map[string]Aggregate       `json:"aggregates"`
	MaxOps     float64                    `json:"maxOps"`
	MaxTps     float64                    `json:"maxTps"`
}

// State returns a copy safe to hand to other goroutines
func (in *Ingestor) State() State {
	st := State{
		Timestamps: append([]string(nil), in.timestamps...),
		Targets:    append([]string(nil), in.targets...),
		ByAPI:      make(ApiDimensionData, len(in.byAPI)),
		ByIndex:    make(IndexDimensionData, len(in.byIndex)),
		Units:      make(map[string]map[string]Unit, len(in.units)),
		Aggregates: make(map[string]Aggregate, len(AggregateKeys)),
		MaxOps:     in.MaxOps(),
		MaxTps:     in.MaxTps(),
	}
	for target, metrics := range in.byAPI {
		st.ByAPI[target] = copySeries(metrics)
	}
	for key, targets := range in.byIndex {
		st.ByIndex[key] = copySeries(targets)
	}
	for target, units := range in.units {
		st.Units[target] = make(map[string]Unit, len(units))
		for k, u := range units {
			st.Units[target][k] = u
		}
	}
	for _, key := range AggregateKeys {
		st.Aggregates[key] = in.Aggregate(key)
	}
	return st
}

func copySeries(in map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(in))
	for k, s := range in {
		out[k] = append([]float64{}, s...)
	}
	return out
}
