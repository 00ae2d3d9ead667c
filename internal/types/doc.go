/*
Package types defines the data structures shared by perfwatch packages.

# Wire Types

The test-management API delivers:
  - ExecutionDetail: status, report interval, start date, pipeline targets
  - SampleRow: one target at one tick, metrics packed into cvsValue
  - ErrorCounter, ErrorSample: cumulative error counters and failing samples
  - StatusCodeCounter: cumulative status code classes per target

# Decoded Types

SampleRows sharing a timestamp form a RawTick. Decoding a RawTick against the
canonical metric keys produces a ListData holding one ValueItem per expected
target, Total included.

# Derived Types

ErrorCountListItem and StatusCodeData are recomputed wholesale from the latest
snapshot on every refresh; no history is kept for them.
*/
package types
