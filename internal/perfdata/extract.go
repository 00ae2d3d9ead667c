package perfdata

import "github.com/studiowebux/perfwatch/internal/types"

// ExtractData returns one value per tick for a metric of a target.
// Ticks that do not carry the target contribute 0.
func ExtractData(list []types.ListData, key string, target string) []float64 {
	series := make([]float64, 0, len(list))
	for _, tick := range list {
		item, ok := tick.Find(target)
		if !ok {
			series = append(series, 0)
			continue
		}
		series = append(series, item.Values[key])
	}
	return series
}

// Aggregate holds min, max and mean over a series
type Aggregate struct {
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Mean  float64 `json:"mean" yaml:"mean"`
	Count int     `json:"count" yaml:"count"`
}

// ComputeAggregate scans the whole series; an empty series yields the zero Aggregate
func ComputeAggregate(values []float64) Aggregate {
	if len(values) == 0 {
		return Aggregate{}
	}
	agg := Aggregate{Min: values[0], Max: values[0], Count: len(values)}
	sum := 0.0
	for _, v := range values {
		if v < agg.Min {
			agg.Min = v
		}
		if v > agg.Max {
			agg.Max = v
		}
		sum += v
	}
	agg.Mean = sum / float64(len(values))
	return agg
}

// scaled divides every field but Count
func (a Aggregate) scaled(divisor float64) Aggregate {
	if divisor == 0 || divisor == 1 {
		return a
	}
	return Aggregate{
		Min:   a.Min / divisor,
		Max:   a.Max / divisor,
		Mean:  a.Mean / divisor,
		Count: a.Count,
	}
}
