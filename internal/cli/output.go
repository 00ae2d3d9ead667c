package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/mattn/go-isatty"
	"github.com/studiowebux/perfwatch/internal/history"
	"github.com/studiowebux/perfwatch/internal/perfdata"
	"github.com/studiowebux/perfwatch/internal/poller"
	"github.com/studiowebux/perfwatch/internal/session"
	"github.com/studiowebux/perfwatch/internal/types"
	"gopkg.in/yaml.v3"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ANSI color codes
const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorBold   = "\x1b[1m"
)

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DefaultFormat picks text for terminals and json when piped
func DefaultFormat(f *os.File) string {
	if IsTerminal(f) {
		return FormatText
	}
	return FormatJSON
}

// encode marshals v in a structured format
func encode(v any, format string) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	case FormatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return "", fmt.Errorf("unsupported output format: %s", format)
}

// writeJSON writes a JSON document, highlighted when color is set
func writeJSON(w io.Writer, doc string, color bool) error {
	if color {
		if err := quick.Highlight(w, doc, "json", "terminal256", "monokai"); err == nil {
			return nil
		}
	}
	_, err := io.WriteString(w, doc)
	return err
}

// FormatSnapshot renders a snapshot as json, yaml or a text report
func FormatSnapshot(snap *session.Snapshot, format string, color bool) (string, error) {
	switch format {
	case FormatJSON, FormatYAML:
		return encode(snap, format)
	case FormatText, "":
		return formatSnapshotText(snap, color), nil
	}
	return "", fmt.Errorf("unsupported output format: %s", format)
}

func statusColor(status types.ExecStatus) string {
	switch status {
	case types.StatusCompleted:
		return colorGreen
	case types.StatusFailed, types.StatusTimeout:
		return colorRed
	}
	return colorYellow
}

func paint(s, color string, enabled bool) string {
	if !enabled {
		return s
	}
	return color + s + colorReset
}

func formatSnapshotText(snap *session.Snapshot, color bool) string {
	var sb strings.Builder

	name := snap.ExecutionID
	status := types.ExecStatus("UNKNOWN")
	if d := snap.Detail; d != nil {
		if d.Name != "" {
			name = fmt.Sprintf("%s (%s)", d.Name, snap.ExecutionID)
		}
		status = d.Status
	}
	sb.WriteString(fmt.Sprintf("%s  %s\n", paint(name, colorBold, color), paint(string(status), statusColor(status), color)))

	data := snap.Data
	last := "-"
	if n := len(data.Timestamps); n > 0 {
		last = data.Timestamps[n-1]
	}
	sb.WriteString(fmt.Sprintf("Ticks: %d | Last: %s | Max ops: %.2f | Max tps: %.2f\n",
		len(data.Timestamps), last, data.MaxOps, data.MaxTps))

	if snap.Error != "" {
		sb.WriteString(paint("Error: "+snap.Error, colorRed, color))
		sb.WriteString("\n")
	}

	switch snap.Tab {
	case poller.TabError:
		writeErrorTab(&sb, snap)
	case poller.TabHTTPCode:
		writeStatusTab(&sb, snap)
	default:
		writeSamplesTab(&sb, snap)
	}
	return sb.String()
}

func targetWidth(names []string) int {
	width := len("TARGET")
	for _, n := range names {
		if len(n) > width {
			width = len(n)
		}
	}
	return width
}

func writeSamplesTab(sb *strings.Builder, snap *session.Snapshot) {
	data := snap.Data
	if len(data.Timestamps) == 0 {
		sb.WriteString("\nNo samples yet\n")
		return
	}

	latest := snap.Latest()
	w := targetWidth(data.Targets)
	sb.WriteString(fmt.Sprintf("\n%-*s %10s %10s %14s %14s %8s\n", w, "TARGET", "OPS", "TPS", "READ", "WRITE", "ERRORS"))
	for _, target := range data.Targets {
		v := latest[target]
		sb.WriteString(fmt.Sprintf("%-*s %10.2f %10.2f %14s %14s %8.0f\n", w, target,
			v["ops"], v["tps"],
			rate(v["brps"], snap.Unit(target, "brps")),
			rate(v["bwps"], snap.Unit(target, "bwps")),
			v["errors"]))
	}

	if len(data.Aggregates) > 0 {
		sb.WriteString("\nTotal         MIN        MAX       MEAN\n")
		for _, key := range perfdata.AggregateKeys {
			agg, ok := data.Aggregates[key]
			if !ok {
				continue
			}
			sb.WriteString(fmt.Sprintf("%-8s %10.2f %10.2f %10.2f\n", key, agg.Min, agg.Max, agg.Mean))
		}
	}
}

func rate(v float64, unit perfdata.Unit) string {
	return fmt.Sprintf("%.2f %s", v, history.FormatUnit(string(unit)))
}

func writeErrorTab(sb *strings.Builder, snap *session.Snapshot) {
	if len(snap.ErrorCounts) == 0 {
		sb.WriteString("\nNo errors recorded\n")
		return
	}
	names := make([]string, 0, len(snap.ErrorCounts))
	for _, row := range snap.ErrorCounts {
		names = append(names, row.Name)
	}
	w := targetWidth(names)
	sb.WriteString(fmt.Sprintf("\n%-*s %8s %8s  KINDS\n", w, "TARGET", "ERRORS", "RATE"))
	for _, row := range snap.ErrorCounts {
		kinds := make([]string, 0, len(row.List))
		for _, k := range row.List {
			kinds = append(kinds, fmt.Sprintf("%s=%d", k.Name, k.ErrorNum))
		}
		sb.WriteString(fmt.Sprintf("%-*s %8d %8s  %s\n", w, row.Name, row.ErrorNum, row.ErrorRate, strings.Join(kinds, " ")))
	}

	if len(snap.ErrorSamples) > 0 {
		sb.WriteString(fmt.Sprintf("\nError samples (%d)\n", len(snap.ErrorSamples)))
		for _, e := range snap.ErrorSamples {
			line := fmt.Sprintf("%s  %s", e.Timestamp, e.Name)
			if e.Key != "" {
				line += "  " + e.Key
			}
			sb.WriteString(line + "\n")
		}
	}
}

func writeStatusTab(sb *strings.Builder, snap *session.Snapshot) {
	if len(snap.StatusCodes) == 0 {
		sb.WriteString("\nNo status codes recorded\n")
		return
	}
	var names []string
	for _, g := range snap.StatusCodes {
		names = append(names, g.Key)
		for _, c := range g.Children {
			names = append(names, "  "+c.Name)
		}
	}
	w := targetWidth(names)
	sb.WriteString(fmt.Sprintf("\n%-*s %8s %8s %8s %8s %10s\n", w, "TARGET", "2XX", "3XX", "4XX", "5XX", "EXCEPTION"))
	line := func(name string, c types.StatusCodes) {
		sb.WriteString(fmt.Sprintf("%-*s %8d %8d %8d %8d %10d\n", w, name, c.Code2xx, c.Code3xx, c.Code4xx, c.Code5xx, c.Exception))
	}
	for _, g := range snap.StatusCodes {
		line(g.Key, g.Codes)
		for _, c := range g.Children {
			line("  "+c.Name, c.Codes)
		}
	}
}

// FormatRuns renders recorded runs
func FormatRuns(runs []*history.Run, format string) (string, error) {
	if format == FormatJSON || format == FormatYAML {
		if runs == nil {
			runs = []*history.Run{}
		}
		return encode(runs, format)
	}
	if len(runs) == 0 {
		return "No recorded runs\n", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-5s %-20s %-24s %-10s %6s %10s %10s %8s\n",
		"ID", "RECORDED", "EXECUTION", "STATUS", "TICKS", "MAX OPS", "MEAN TPS", "ERRORS"))
	for _, r := range runs {
		sb.WriteString(fmt.Sprintf("%-5d %-20s %-24s %-10s %6d %10.2f %10.2f %8d\n",
			r.ID, r.RecordedAt.Format("2006-01-02 15:04:05"), truncate(r.ExecutionID, 24), r.Status,
			r.Ticks, r.MaxOps, r.MeanTps, r.TotalErrors))
	}
	return sb.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
