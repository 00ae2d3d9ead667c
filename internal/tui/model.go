package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/studiowebux/perfwatch/internal/poller"
	"github.com/studiowebux/perfwatch/internal/session"
)

// writeClipboard is swapped in tests
var writeClipboard = clipboard.WriteAll

// tabOrder is the order of the tab bar
var tabOrder = []poller.Tab{poller.TabSamples, poller.TabError, poller.TabHTTPCode}

// Model represents the dashboard state
type Model struct {
	// Core state
	session     *session.Session
	execID      string
	ctx         context.Context
	cancel      context.CancelFunc
	updates     <-chan struct{}
	unsubscribe func()

	// Latest state read from the session
	snap *session.Snapshot
	tab  poller.Tab

	// View state
	width    int
	height   int
	view     viewport.Model
	spinner  spinner.Model
	quitting bool

	statusMsg string
	errorMsg  string
}

// NewModel creates a dashboard following one execution
func NewModel(s *session.Session, execID string) Model {
	ctx, cancel := context.WithCancel(context.Background())
	updates, unsubscribe := s.Subscribe()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styleTitle

	m := Model{
		session:     s,
		execID:      execID,
		ctx:         ctx,
		cancel:      cancel,
		updates:     updates,
		unsubscribe: unsubscribe,
		tab:         poller.TabSamples,
		view:        viewport.New(0, 0),
		spinner:     sp,
	}
	m.snap = s.Snapshot()
	return m
}

// Message types
type sessionUpdatedMsg struct{}
type snapshotTickMsg struct{}
type openedMsg struct {
	err error
}
type copiedMsg struct {
	err error
}
type clearStatusMsg struct{}

// Init opens the execution and starts listening for state changes
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.open(), waitForUpdate(m.updates), pollSnapshot(), m.spinner.Tick)
}

// open (re)starts following the execution
func (m Model) open() tea.Cmd {
	s, ctx, execID := m.session, m.ctx, m.execID
	return func() tea.Msg {
		return openedMsg{err: s.Open(ctx, execID)}
	}
}

// waitForUpdate blocks until the session signals a change
func waitForUpdate(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return sessionUpdatedMsg{}
	}
}

// pollSnapshot refreshes the view periodically so relative times stay current
func pollSnapshot() tea.Cmd {
	return tea.Tick(SnapshotRefresh, func(time.Time) tea.Msg {
		return snapshotTickMsg{}
	})
}

func clearStatusAfter() tea.Cmd {
	return tea.Tick(MessageTimeout, func(time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sessionUpdatedMsg:
		m.refresh()
		return m, waitForUpdate(m.updates)

	case snapshotTickMsg:
		if m.quitting {
			return m, nil
		}
		m.refresh()
		return m, pollSnapshot()

	case openedMsg:
		if msg.err != nil {
			m.errorMsg = msg.err.Error()
		}
		m.refresh()
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.errorMsg = fmt.Sprintf("Copy failed: %v", msg.err)
			return m, nil
		}
		m.statusMsg = "Snapshot copied to clipboard"
		return m, clearStatusAfter()

	case clearStatusMsg:
		m.statusMsg = ""
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	return m, cmd
}

// refresh re-reads the session state into the view
func (m *Model) refresh() {
	m.snap = m.session.Snapshot()
	if m.snap.Error != "" {
		m.errorMsg = m.snap.Error
	}
	m.view.SetContent(m.renderContent())
}

func (m *Model) resize() {
	w := m.width - MinimalBorderMargin
	h := m.height - HeaderLines - FooterLines - MinimalBorderMargin
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	m.view.Width = w
	m.view.Height = h
}

// setTab switches the visible tab and tells the session to refresh it
func (m *Model) setTab(tab poller.Tab) {
	if tab == m.tab {
		return
	}
	m.tab = tab
	m.session.SetTab(tab)
	m.view.GotoTop()
	m.refresh()
}

func (m *Model) cycleTab(step int) {
	idx := 0
	for i, t := range tabOrder {
		if t == m.tab {
			idx = i
		}
	}
	idx = (idx + step + len(tabOrder)) % len(tabOrder)
	m.setTab(tabOrder[idx])
}

// copySnapshot copies the current snapshot as JSON
func (m Model) copySnapshot() tea.Cmd {
	snap := m.snap
	return func() tea.Msg {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return copiedMsg{err: err}
		}
		return copiedMsg{err: writeClipboard(string(data))}
	}
}

// quit stops polling and releases the session
func (m *Model) quit() tea.Cmd {
	m.quitting = true
	m.cancel()
	m.unsubscribe()
	m.session.Close()
	return tea.Quit
}

// Run starts the dashboard for one execution and blocks until the user quits
func Run(s *session.Session, execID string) error {
	p := tea.NewProgram(NewModel(s, execID), tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run dashboard: %w", err)
	}
	return s.Err()
}
