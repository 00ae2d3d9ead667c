package types

import (
	"strings"
	"time"
)

// TotalTarget is the synthetic target that aggregates every pipeline target
const TotalTarget = "Total"

// ExecStatus is the lifecycle status of a load-test execution
type ExecStatus string

const (
	StatusCreated   ExecStatus = "CREATED"
	StatusPending   ExecStatus = "PENDING"
	StatusRunning   ExecStatus = "RUNNING"
	StatusCompleted ExecStatus = "COMPLETED"
	StatusFailed    ExecStatus = "FAILED"
	StatusStopped   ExecStatus = "STOPPED"
	StatusTimeout   ExecStatus = "TIMEOUT"
)

// IsActive returns true while the execution is scheduled or running
func (s ExecStatus) IsActive() bool {
	switch ExecStatus(strings.ToUpper(string(s))) {
	case StatusCreated, StatusPending, StatusRunning:
		return true
	}
	return false
}

// Pipeline is a declared pipeline target and the child targets it groups
type Pipeline struct {
	Name     string   `json:"name" yaml:"name"`
	Children []string `json:"children,omitempty" yaml:"children,omitempty"`
}

// ExecutionDetail is the execution description returned by the API
type ExecutionDetail struct {
	ID             string     `json:"id" yaml:"id"`
	Name           string     `json:"name" yaml:"name"`
	Plugin         string     `json:"plugin,omitempty" yaml:"plugin,omitempty"`
	Status         ExecStatus `json:"status" yaml:"status"`
	ReportInterval string     `json:"reportInterval,omitempty" yaml:"reportInterval,omitempty"`
	StartAtDate    string     `json:"startAtDate,omitempty" yaml:"startAtDate,omitempty"`
	ActualStartAt  string     `json:"actualStartDate,omitempty" yaml:"actualStartDate,omitempty"`
	EndDate        string     `json:"endDate,omitempty" yaml:"endDate,omitempty"`
	Thread         int        `json:"thread,omitempty" yaml:"thread,omitempty"`
	Pipelines      []Pipeline `json:"pipelines,omitempty" yaml:"pipelines,omitempty"`
}

// SingleInterface reports whether the execution exercises a single target,
// in which case every per-target view collapses to Total
func (d *ExecutionDetail) SingleInterface() bool {
	if d == nil || len(d.Pipelines) == 0 {
		return true
	}
	return len(d.Pipelines) == 1 && len(d.Pipelines[0].Children) == 0
}

// TargetNames returns the expected sample targets in declaration order,
// children following their pipeline, always ending with Total
func (d *ExecutionDetail) TargetNames() []string {
	names := make([]string, 0, 8)
	seen := make(map[string]bool)
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}

	if d != nil && !d.SingleInterface() {
		for _, p := range d.Pipelines {
			if p.Name == TotalTarget {
				continue
			}
			add(p.Name)
			for _, child := range p.Children {
				if child != TotalTarget {
					add(child)
				}
			}
		}
	}
	add(TotalTarget)
	return names
}

// SampleRow is one wire row of the sample stream: one target at one tick
type SampleRow struct {
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	Name      string `json:"name" yaml:"name"`
	CvsValue  string `json:"cvsValue" yaml:"cvsValue"`
}

// RawTick groups the sample rows that share one timestamp
type RawTick struct {
	Timestamp string
	Values    []SampleRow
}

// ValueItem is a decoded sample row
type ValueItem struct {
	Name   string             `json:"name"`
	Values map[string]float64 `json:"values"`
}

// ListData is one decoded tick, one ValueItem per expected target
type ListData struct {
	Timestamp string      `json:"timestamp"`
	Values    []ValueItem `json:"values"`
}

// Find returns the value item for a target
func (l ListData) Find(name string) (ValueItem, bool) {
	for _, v := range l.Values {
		if v.Name == name {
			return v, true
		}
	}
	return ValueItem{}, false
}

// Page is a paginated API list
type Page[T any] struct {
	List  []T   `json:"list"`
	Total int64 `json:"total"`
}

// PageQuery selects one page of a cursor-filtered list
// Rows are filtered with timestamp >= Cursor when Cursor is set
type PageQuery struct {
	Cursor   string
	PageNo   int
	PageSize int
}

// ErrorKindCount is the count of one error kind
type ErrorKindCount struct {
	Name     string `json:"name" yaml:"name"`
	ErrorNum int64  `json:"errorNum" yaml:"errorNum"`
}

// ErrorCounter is the cumulative error counter of one target
type ErrorCounter struct {
	Name     string           `json:"name" yaml:"name"`
	ErrorNum int64            `json:"errorNum" yaml:"errorNum"`
	Kinds    []ErrorKindCount `json:"kinds,omitempty" yaml:"kinds,omitempty"`
}

// ErrorCountListItem is the derived error row shown per target
type ErrorCountListItem struct {
	Name      string           `json:"name" yaml:"name"`
	ErrorNum  int64            `json:"errorNum" yaml:"errorNum"`
	ErrorRate string           `json:"errorRate" yaml:"errorRate"`
	List      []ErrorKindCount `json:"list" yaml:"list"`
}

// ErrorSample is one recorded failing sample
type ErrorSample struct {
	ID        string `json:"id" yaml:"id"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	Name      string `json:"name" yaml:"name"`
	Key       string `json:"key,omitempty" yaml:"key,omitempty"`
	Content   string `json:"content,omitempty" yaml:"content,omitempty"`
}

// StatusCodes counts responses per status class
type StatusCodes struct {
	Code2xx   int64 `json:"2xx" yaml:"2xx"`
	Code3xx   int64 `json:"3xx" yaml:"3xx"`
	Code4xx   int64 `json:"4xx" yaml:"4xx"`
	Code5xx   int64 `json:"5xx" yaml:"5xx"`
	Exception int64 `json:"Exception" yaml:"Exception"`
}

// Sum returns the number of counted responses
func (c StatusCodes) Sum() int64 {
	return c.Code2xx + c.Code3xx + c.Code4xx + c.Code5xx + c.Exception
}

// StatusCodeCounter is the flat wire snapshot of one target's status codes
type StatusCodeCounter struct {
	Name string `json:"name" yaml:"name"`
	StatusCodes
}

// StatusCodeEntry is a child target inside a status code group
type StatusCodeEntry struct {
	Name  string      `json:"name" yaml:"name"`
	Codes StatusCodes `json:"codes" yaml:"codes"`
}

// StatusCodeGroup groups a pipeline with its children
type StatusCodeGroup struct {
	Key      string            `json:"key" yaml:"key"`
	Codes    StatusCodes       `json:"codes" yaml:"codes"`
	Children []StatusCodeEntry `json:"children,omitempty" yaml:"children,omitempty"`
}

// StatusCodeData is the latest status code snapshot, grouped by pipeline
type StatusCodeData []StatusCodeGroup

// ParseTime parses the timestamp formats used by the API
// Returns the zero time when the value is empty or unparseable
func ParseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	layouts := []string{time.RFC3339Nano, time.DateTime, "2006-01-02 15:04:05.000"}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}
