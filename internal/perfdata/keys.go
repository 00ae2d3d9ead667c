package perfdata

// MetricKeys is the canonical order of values packed into a sample row's cvsValue
var MetricKeys = []string{
	"duration",
	"errors",
	"iterations",
	"n",
	"operations",
	"transactions",
	"readBytes",
	"writeBytes",
	"ops",
	"tps",
	"brps",
	"bwps",
	"tranMean",
	"tranMin",
	"tranMax",
	"tranP50",
	"tranP75",
	"tranP90",
	"tranP95",
	"tranP99",
	"tranP999",
	"errorRate",
	"threadPoolSize",
	"threadPoolActiveSize",
	"threadMaxPoolSize",
}

// AggregateKeys are the Total metrics that carry min/max/mean
var AggregateKeys = []string{"ops", "tps", "brps", "bwps"}

// Unit is the display unit of a byte-rate series
type Unit string

const (
	UnitKB Unit = "KB"
	UnitMB Unit = "MB"
)

const (
	bytesPerKB = 1024.0
	// promoteAboveKB is the KB value above which a series switches to MB
	promoteAboveKB = 1000.0
)

// IsByteRate reports whether a metric is a byte rate subject to unit promotion
func IsByteRate(key string) bool {
	return key == "brps" || key == "bwps"
}
