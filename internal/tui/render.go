package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/studiowebux/perfwatch/internal/history"
	"github.com/studiowebux/perfwatch/internal/perfdata"
	"github.com/studiowebux/perfwatch/internal/poller"
	"github.com/studiowebux/perfwatch/internal/types"
)

// Adaptive color definitions for light/dark terminal support
var (
	colorGreen  = lipgloss.AdaptiveColor{Light: "#006400", Dark: "#00ff00"}
	colorRed    = lipgloss.AdaptiveColor{Light: "#8b0000", Dark: "#ff0000"}
	colorYellow = lipgloss.AdaptiveColor{Light: "#b8860b", Dark: "#ffff00"}
	colorGray   = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#888888"}
	colorCyan   = lipgloss.AdaptiveColor{Light: "#008b8b", Dark: "#00ffff"}
)

// Style definitions
var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	styleSelected = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.AdaptiveColor{Light: "#d3d3d3", Dark: "#3a3a3a"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"})

	styleSuccess = lipgloss.NewStyle().
			Foreground(colorGreen)

	styleError = lipgloss.NewStyle().
			Foreground(colorRed)

	styleWarning = lipgloss.NewStyle().
			Foreground(colorYellow)

	styleSubtle = lipgloss.NewStyle().
			Foreground(colorGray)

	styleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorCyan)
)

var tabLabels = map[poller.Tab]string{
	poller.TabSamples:  "1 Samples",
	poller.TabError:    "2 Errors",
	poller.TabHTTPCode: "3 HTTP codes",
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(styleBox.Width(m.width - MinimalBorderMargin).Render(m.view.View()))
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func statusStyle(status types.ExecStatus) lipgloss.Style {
	switch status {
	case types.StatusCompleted:
		return styleSuccess
	case types.StatusFailed, types.StatusTimeout:
		return styleError
	}
	return styleWarning
}

func (m Model) renderHeader() string {
	snap := m.snap
	name := m.execID
	status := types.ExecStatus("OPENING")
	if d := snap.Detail; d != nil {
		if d.Name != "" {
			name = fmt.Sprintf("%s (%s)", d.Name, m.execID)
		}
		status = d.Status
	}

	title := styleTitle.Render(name) + "  " + statusStyle(status).Render(string(status))
	if snap.Loading {
		title += " " + m.spinner.View()
	}

	data := snap.Data
	last := "-"
	if n := len(data.Timestamps); n > 0 {
		last = data.Timestamps[n-1]
	}
	updated := "never"
	if !snap.UpdatedAt.IsZero() {
		updated = time.Since(snap.UpdatedAt).Truncate(time.Second).String() + " ago"
	}
	summary := styleSubtle.Render(fmt.Sprintf("Ticks: %d | Last: %s | Max ops: %.2f | Max tps: %.2f | Updated: %s",
		len(data.Timestamps), last, data.MaxOps, data.MaxTps, updated))

	tabs := make([]string, 0, len(tabOrder))
	for _, t := range tabOrder {
		label := " " + tabLabels[t] + " "
		if t == m.tab {
			tabs = append(tabs, styleSelected.Render(label))
		} else {
			tabs = append(tabs, styleSubtle.Render(label))
		}
	}

	return title + "\n" + summary + "\n\n" + strings.Join(tabs, " ")
}

func (m Model) renderFooter() string {
	var line string
	switch {
	case m.errorMsg != "":
		line = styleError.Render("Error: " + m.errorMsg)
	case m.statusMsg != "":
		line = styleSuccess.Render(m.statusMsg)
	default:
		line = ""
	}
	help := styleSubtle.Render("1-3/tab: switch tab | j/k: scroll | c: copy snapshot | r: reload | q: quit")
	return line + "\n" + help
}

// renderContent renders the active tab
func (m Model) renderContent() string {
	switch m.tab {
	case poller.TabError:
		return m.renderErrors()
	case poller.TabHTTPCode:
		return m.renderStatusCodes()
	}
	return m.renderSamples()
}

func (m Model) renderSamples() string {
	data := m.snap.Data
	if len(data.Timestamps) == 0 {
		return styleSubtle.Render("No samples yet")
	}

	var b strings.Builder
	total := data.ByAPI[types.TotalTarget]
	b.WriteString(styleTitle.Render("Total ops") + "  " + sparkline(total["ops"], SparklineWidth) + "\n")
	b.WriteString(styleTitle.Render("Total tps") + "  " + sparkline(total["tps"], SparklineWidth) + "\n\n")

	w := nameWidth(data.Targets)
	b.WriteString(styleSubtle.Render(fmt.Sprintf("%-*s %10s %10s %14s %14s %8s", w, "TARGET", "OPS", "TPS", "READ", "WRITE", "ERRORS")) + "\n")
	latest := m.snap.Latest()
	for _, target := range data.Targets {
		v := latest[target]
		row := fmt.Sprintf("%-*s %10.2f %10.2f %14s %14s %8.0f", w, target,
			v["ops"], v["tps"],
			rate(v["brps"], m.snap.Unit(target, "brps")),
			rate(v["bwps"], m.snap.Unit(target, "bwps")),
			v["errors"])
		if v["errors"] > 0 {
			row = styleWarning.Render(row)
		}
		b.WriteString(row + "\n")
	}

	if len(data.Aggregates) > 0 {
		b.WriteString("\n" + styleSubtle.Render(fmt.Sprintf("%-8s %10s %10s %10s", "TOTAL", "MIN", "MAX", "MEAN")) + "\n")
		for _, key := range perfdata.AggregateKeys {
			if agg, ok := data.Aggregates[key]; ok {
				b.WriteString(fmt.Sprintf("%-8s %10.2f %10.2f %10.2f\n", key, agg.Min, agg.Max, agg.Mean))
			}
		}
	}
	return b.String()
}

func rate(v float64, unit perfdata.Unit) string {
	return fmt.Sprintf("%.2f %s", v, history.FormatUnit(string(unit)))
}

func (m Model) renderErrors() string {
	snap := m.snap
	if !snap.ErrorsLoaded {
		return styleSubtle.Render("Loading errors...")
	}
	if len(snap.ErrorCounts) == 0 {
		return styleSuccess.Render("No errors recorded")
	}

	names := make([]string, 0, len(snap.ErrorCounts))
	for _, row := range snap.ErrorCounts {
		names = append(names, row.Name)
	}
	w := nameWidth(names)

	var b strings.Builder
	b.WriteString(styleSubtle.Render(fmt.Sprintf("%-*s %8s %8s  KINDS", w, "TARGET", "ERRORS", "RATE")) + "\n")
	for _, row := range snap.ErrorCounts {
		kinds := make([]string, 0, len(row.List))
		for _, k := range row.List {
			kinds = append(kinds, fmt.Sprintf("%s=%d", k.Name, k.ErrorNum))
		}
		line := fmt.Sprintf("%-*s %8d %8s  %s", w, row.Name, row.ErrorNum, row.ErrorRate, strings.Join(kinds, " "))
		if row.ErrorNum > 0 {
			line = styleError.Render(line)
		}
		b.WriteString(line + "\n")
	}

	if len(snap.ErrorSamples) > 0 {
		b.WriteString("\n" + styleTitle.Render(fmt.Sprintf("Error samples (%d)", len(snap.ErrorSamples))) + "\n")
		// newest first
		for i := len(snap.ErrorSamples) - 1; i >= 0; i-- {
			e := snap.ErrorSamples[i]
			b.WriteString(fmt.Sprintf("%s  %s  %s\n", styleSubtle.Render(e.Timestamp), e.Name, firstLine(e.Content)))
		}
	}
	return b.String()
}

func (m Model) renderStatusCodes() string {
	snap := m.snap
	if !snap.StatusCodesLoaded {
		return styleSubtle.Render("Loading status codes...")
	}
	if len(snap.StatusCodes) == 0 {
		return styleSubtle.Render("No status codes recorded")
	}

	var names []string
	for _, g := range snap.StatusCodes {
		names = append(names, g.Key)
		for _, c := range g.Children {
			names = append(names, "  "+c.Name)
		}
	}
	w := nameWidth(names)

	var b strings.Builder
	b.WriteString(styleSubtle.Render(fmt.Sprintf("%-*s %8s %8s %8s %8s %10s", w, "TARGET", "2XX", "3XX", "4XX", "5XX", "EXCEPTION")) + "\n")
	line := func(name string, c types.StatusCodes) {
		row := fmt.Sprintf("%-*s %8d %8d %8d %8d %10d", w, name, c.Code2xx, c.Code3xx, c.Code4xx, c.Code5xx, c.Exception)
		if c.Code5xx > 0 || c.Exception > 0 {
			row = styleError.Render(row)
		}
		b.WriteString(row + "\n")
	}
	for _, g := range snap.StatusCodes {
		line(g.Key, g.Codes)
		for _, c := range g.Children {
			line("  "+c.Name, c.Codes)
		}
	}
	return b.String()
}

func nameWidth(names []string) int {
	width := len("TARGET")
	for _, n := range names {
		if len(n) > width {
			width = len(n)
		}
	}
	return width
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}

var sparkBars = []rune("▁▂▃▄▅▆▇█")

// sparkline draws the last width values scaled to the series maximum
func sparkline(series []float64, width int) string {
	if len(series) > width {
		series = series[len(series)-width:]
	}
	if len(series) == 0 {
		return ""
	}
	var peak float64
	for _, v := range series {
		peak = math.Max(peak, v)
	}

	var b strings.Builder
	for _, v := range series {
		idx := 0
		if peak > 0 && v > 0 {
			idx = int(v / peak * float64(len(sparkBars)-1))
		}
		b.WriteRune(sparkBars[idx])
	}
	return b.String()
}
