package perfdata

import (
	"math"
	"strings"

	"github.com/spf13/cast"
	"github.com/studiowebux/perfwatch/internal/types"
)

// GroupTicks groups consecutive rows sharing a timestamp into ticks
func GroupTicks(rows []types.SampleRow) []types.RawTick {
	var ticks []types.RawTick
	for _, row := range rows {
		n := len(ticks)
		if n > 0 && ticks[n-1].Timestamp == row.Timestamp {
			ticks[n-1].Values = append(ticks[n-1].Values, row)
			continue
		}
		ticks = append(ticks, types.RawTick{
			Timestamp: row.Timestamp,
			Values:    []types.SampleRow{row},
		})
	}
	return ticks
}

// ConvertCvsValue decodes raw ticks into ListData.
// Every output tick holds exactly one ValueItem per target, in targets order.
// Targets absent from a raw tick are zero-filled. Decoding never fails:
// missing or non-numeric tokens become 0.
func ConvertCvsValue(ticks []types.RawTick, keys []string, targets []string) []types.ListData {
	out := make([]types.ListData, 0, len(ticks))
	for _, tick := range ticks {
		byName := make(map[string]string, len(tick.Values))
		for _, row := range tick.Values {
			byName[row.Name] = row.CvsValue
		}

		values := make([]types.ValueItem, 0, len(targets))
		for _, target := range targets {
			values = append(values, types.ValueItem{
				Name:   target,
				Values: DecodeCvsValue(byName[target], keys),
			})
		}
		out = append(out, types.ListData{Timestamp: tick.Timestamp, Values: values})
	}
	return out
}

// DecodeCvsValue maps the comma-separated tokens of one row onto keys by position
func DecodeCvsValue(cvsValue string, keys []string) map[string]float64 {
	values := make(map[string]float64, len(keys))
	var tokens []string
	if cvsValue != "" {
		tokens = strings.Split(cvsValue, ",")
	}
	for i, key := range keys {
		if i < len(tokens) {
			values[key] = finiteOrZero(tokens[i])
		} else {
			values[key] = 0
		}
	}
	return values
}

// finiteOrZero parses a token, returning 0 for anything that is not a finite number
func finiteOrZero(token string) float64 {
	v, err := cast.ToFloat64E(strings.TrimSpace(token))
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
