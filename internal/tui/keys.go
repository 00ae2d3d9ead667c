package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/studiowebux/perfwatch/internal/poller"
)

// handleKey routes key presses
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, m.quit()

	case "1":
		m.setTab(poller.TabSamples)
	case "2":
		m.setTab(poller.TabError)
	case "3":
		m.setTab(poller.TabHTTPCode)
	case "tab", "right", "l":
		m.cycleTab(1)
	case "shift+tab", "left", "h":
		m.cycleTab(-1)

	case "c":
		return m, m.copySnapshot()

	case "r":
		m.errorMsg = ""
		m.statusMsg = "Reloading " + m.execID
		return m, tea.Batch(m.open(), clearStatusAfter())

	case "up", "k":
		m.view.ScrollUp(1)
	case "down", "j":
		m.view.ScrollDown(1)
	case "pgup":
		m.view.PageUp()
	case "pgdown", " ":
		m.view.PageDown()
	case "g", "home":
		m.view.GotoTop()
	case "G", "end":
		m.view.GotoBottom()
	}
	return m, nil
}
