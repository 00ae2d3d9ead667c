/*
Package tui implements the live execution dashboard.

# Architecture

The TUI follows the Bubble Tea framework's Model-Update-View pattern:
  - Model: holds the latest session snapshot and view state
  - Update: processes key presses and snapshot ticks
  - View: renders the header, tab bar, tab content and status line

# Key Components

  - model.go: Model, messages and the snapshot poll loop
  - keys.go: keyboard handling
  - render.go: styles and rendering of the samples, error and httpCode tabs

# Threading Model

All fetching happens inside the session's poller goroutines. The TUI never
blocks on the network: it re-reads session.Snapshot on a tea.Tick and whenever
the session signals a change.

# Example Usage

	s := session.New(apiClient, session.Options{Logger: log})
	model := tui.NewModel(s, "exec-42")
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		log.Fatal("dashboard failed", zap.Error(err))
	}
*/
package tui
