package poller

import (
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/studiowebux/perfwatch/internal/types"
)

// DefaultMinInterval is the floor applied to the server's report interval
const DefaultMinInterval = 3 * time.Second

// ParseInterval turns a reportInterval hint into a poll delay no shorter than floor.
// Accepts Go durations ("5s"), "min" suffixes ("1min") and bare seconds ("10").
// Anything unparseable yields the floor.
func ParseInterval(value string, floor time.Duration) time.Duration {
	if d := parseReportInterval(value); d > floor {
		return d
	}
	return floor
}

var unitReplacer = strings.NewReplacer("mins", "m", "min", "m", "secs", "s", "sec", "s")

func parseReportInterval(value string) time.Duration {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return 0
	}
	if secs, err := cast.ToFloat64E(v); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(unitReplacer.Replace(v))
	if err != nil {
		return 0
	}
	return d
}

// IsActive reports whether an execution should be polled live: its status is
// created, pending or running and no start date lies in the future
func IsActive(detail *types.ExecutionDetail, now time.Time) bool {
	if detail == nil || !detail.Status.IsActive() {
		return false
	}
	if start := types.ParseTime(detail.StartAtDate); !start.IsZero() && start.After(now) {
		return false
	}
	return true
}
