/*
Package perfdata decodes and aggregates the sample stream of a load-test execution.

# Decoding

The API packs the metrics of one target at one tick into a comma-separated
cvsValue. Token i maps to MetricKeys[i]. Decoding is lossy by policy: a missing,
empty or non-numeric token becomes 0 and never raises an error.

	rows -> GroupTicks -> []RawTick -> ConvertCvsValue -> []ListData

ConvertCvsValue zero-fills every expected target absent from a tick, so each
decoded tick carries exactly one value per target.

# Ingestion

Ingestor keeps two views of the same data:
  - ApiDimensionData: target -> metric -> series
  - IndexDimensionData: metric -> target -> series

Every accepted tick pushes exactly one value per (target, metric) into both
views, so their series lengths always match.

A poller re-fetching with a timestamp >= cursor filter receives the last tick
again. When a batch starts at the last accepted timestamp, that tick is
replaced instead of appended. Only a single overlapping tick is handled.

# Aggregates

Min/max/mean of ops, tps, brps and bwps on the Total target are recomputed over
the whole retained history on every batch.

# Byte Rates

brps and bwps are stored in KB. Once a sample of a (target, metric) exceeds
1000 KB the series switches to MB for the rest of the session and its stored
history is divided by 1024.
*/
package perfdata
