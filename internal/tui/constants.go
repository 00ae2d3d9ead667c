package tui

import "time"

// UI Layout Constants

const (
	// HeaderLines is the height of the title, summary and tab bar
	HeaderLines = 4
	// FooterLines is the height of the status line and help line
	FooterLines = 2
	// MinimalBorderMargin is the width consumed by the content border
	MinimalBorderMargin = 2
	// SparklineWidth is the number of ticks drawn in the Total ops sparkline
	SparklineWidth = 60

	// SnapshotRefresh is how often the dashboard re-reads the session state
	SnapshotRefresh = 250 * time.Millisecond
	// MessageTimeout clears status messages
	MessageTimeout = 3 * time.Second
)
