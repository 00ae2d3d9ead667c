package errstat

import (
	"fmt"

	"github.com/studiowebux/perfwatch/internal/perfdata"
	"github.com/studiowebux/perfwatch/internal/types"
)

// Counts is the latest cumulative sample count of one target
type Counts struct {
	N      float64 `json:"n" yaml:"n"`
	Errors float64 `json:"errors" yaml:"errors"`
}

var countKeys = []string{"n", "errors"}

// ExecCounts decodes the latest summary rows into per-target sample counts.
// When a target appears in several ticks the last one wins.
func ExecCounts(rows []types.SampleRow) map[string]Counts {
	out := make(map[string]Counts)
	for _, tick := range perfdata.GroupTicks(rows) {
		for _, row := range tick.Values {
			// cvsValue is positional over the full key list
			values := perfdata.DecodeCvsValue(row.CvsValue, perfdata.MetricKeys)
			out[row.Name] = Counts{N: values[countKeys[0]], Errors: values[countKeys[1]]}
		}
	}
	return out
}

// ErrorRate formats errors/n as a percentage with two decimals, "0%" when n is 0
func ErrorRate(errors int64, n float64) string {
	if n <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(errors)/n*100)
}

// GetErrCountList rebuilds the per-target error rows from a counter snapshot.
// Source order is kept except that Total always comes last.
func GetErrCountList(counters []types.ErrorCounter, counts map[string]Counts) []types.ErrorCountListItem {
	list := make([]types.ErrorCountListItem, 0, len(counters))
	var totals []types.ErrorCountListItem

	for _, c := range counters {
		kinds := append([]types.ErrorKindCount{}, c.Kinds...)
		item := types.ErrorCountListItem{
			Name:      c.Name,
			ErrorNum:  c.ErrorNum,
			ErrorRate: ErrorRate(c.ErrorNum, counts[c.Name].N),
			List:      kinds,
		}
		if c.Name == types.TotalTarget {
			totals = append(totals, item)
			continue
		}
		list = append(list, item)
	}

	return append(list, totals...)
}
