package views

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"paperflow/internal/adapters/tui/styles"
	"paperflow/internal/application/commands"
	"paperflow/internal/domain"
	"paperflow/internal/ports"
)

// DashboardKeyMap defines key bindings for the ledger table
type DashboardKeyMap struct {
	Open    key.Binding
	Copy    key.Binding
	Filter  key.Binding
	Failed  key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

var DashboardKeys = DashboardKeyMap{
	Open: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "summary"),
	),
	Copy: key.NewBinding(
		key.WithKeys("y"),
		key.WithHelp("y", "copy ID"),
	),
	Filter: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "filter"),
	),
	Failed: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "failed only"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

var filterKeys = struct {
	Apply  key.Binding
	Cancel key.Binding
}{
	Apply:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "apply")),
	Cancel: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear")),
}

// DashboardModel shows every ledger record with its stage, refreshed on a timer
type DashboardModel struct {
	ViewState
	ledger    ports.Ledger
	artifacts ports.ArtifactStore
	refresh   time.Duration

	table      table.Model
	filter     textinput.Model
	filtering  bool
	failedOnly bool

	entries []commands.PaperEntry
	visible []commands.PaperEntry
	loaded  time.Time

	now        func() time.Time
	copyToClip func(string) error
}

// NewDashboardModel creates the dashboard. refresh <= 0 disables the timer.
func NewDashboardModel(ledger ports.Ledger, artifacts ports.ArtifactStore, refresh time.Duration) *DashboardModel {
	t := table.New(
		table.WithColumns(dashboardColumns(100)),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	s := table.DefaultStyles()
	s.Header = styles.TableHeader
	s.Selected = styles.TableSelected
	t.SetStyles(s)

	input := textinput.New()
	input.Placeholder = "filter by ID..."
	input.Prompt = "/ "

	return &DashboardModel{
		ledger:     ledger,
		artifacts:  artifacts,
		refresh:    refresh,
		table:      t,
		filter:     input,
		now:        time.Now,
		copyToClip: clipboard.WriteAll,
	}
}

func dashboardColumns(width int) []table.Column {
	errWidth := width - 24 - 12 - 4 - 8 - 10 - 12
	if errWidth < 12 {
		errWidth = 12
	}
	return []table.Column{
		{Title: "ID", Width: 24},
		{Title: "Stage", Width: 12},
		{Title: "Try", Width: 4},
		{Title: "Summary", Width: 8},
		{Title: "Updated", Width: 10},
		{Title: "Last error", Width: errWidth},
	}
}

type entriesLoadedMsg struct {
	entries []commands.PaperEntry
	err     error
}

type refreshTickMsg time.Time

// Init loads the ledger and starts the refresh timer
func (m *DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.Reload(), m.tick())
}

// Reload reads the ledger again
func (m *DashboardModel) Reload() tea.Cmd {
	return func() tea.Msg {
		entries, err := commands.NewStatusCommand(m.ledger, m.artifacts).Execute(context.Background())
		return entriesLoadedMsg{entries: entries, err: err}
	}
}

func (m *DashboardModel) tick() tea.Cmd {
	if m.refresh <= 0 {
		return nil
	}
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return refreshTickMsg(t)
	})
}

// Update handles messages for the dashboard
func (m *DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case entriesLoadedMsg:
		if msg.err != nil {
			m.SetMessage(msg.err.Error(), true)
			return m, nil
		}
		m.entries = msg.entries
		m.loaded = m.now()
		m.applyFilter()
		return m, nil

	case refreshTickMsg:
		return m, tea.Batch(m.Reload(), m.tick())

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		switch {
		case key.Matches(msg, DashboardKeys.Quit):
			return m, tea.Quit

		case key.Matches(msg, DashboardKeys.Help):
			return m, func() tea.Msg { return SwitchToHelpMsg{} }

		case key.Matches(msg, DashboardKeys.Refresh):
			m.ClearMessage()
			return m, m.Reload()

		case key.Matches(msg, DashboardKeys.Filter):
			m.filtering = true
			m.filter.Focus()
			return m, textinput.Blink

		case key.Matches(msg, DashboardKeys.Failed):
			m.failedOnly = !m.failedOnly
			m.applyFilter()
			return m, nil

		case key.Matches(msg, DashboardKeys.Copy):
			id := m.SelectedID()
			if id == "" {
				return m, nil
			}
			if err := m.copyToClip(id); err != nil {
				m.SetMessage(fmt.Sprintf("Copy failed: %v", err), true)
			} else {
				m.SetMessage("Copied "+id, false)
			}
			return m, nil

		case key.Matches(msg, DashboardKeys.Open):
			id := m.SelectedID()
			if id == "" {
				return m, nil
			}
			return m, func() tea.Msg { return OpenReaderMsg{DocumentID: id} }
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *DashboardModel) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, filterKeys.Cancel):
		m.filter.SetValue("")
		m.filtering = false
		m.filter.Blur()
		m.applyFilter()
		return m, nil
	case key.Matches(msg, filterKeys.Apply):
		m.filtering = false
		m.filter.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter()
	return m, cmd
}

// applyFilter rebuilds the visible rows from the loaded entries
func (m *DashboardModel) applyFilter() {
	query := strings.ToLower(strings.TrimSpace(m.filter.Value()))

	m.visible = m.visible[:0]
	for _, e := range m.entries {
		if m.failedOnly && e.Record.Stage != domain.StageFailed {
			continue
		}
		if query != "" && commands.FuzzyScore(e.Record.ID, query) == 0 {
			continue
		}
		m.visible = append(m.visible, e)
	}

	rows := make([]table.Row, 0, len(m.visible))
	now := m.now()
	for _, e := range m.visible {
		rows = append(rows, entryRow(e, now))
	}
	m.table.SetRows(rows)
	if n := len(rows); n > 0 && (m.table.Cursor() < 0 || m.table.Cursor() >= n) {
		m.table.SetCursor(min(max(m.table.Cursor(), 0), n-1))
	}
}

func entryRow(e commands.PaperEntry, now time.Time) table.Row {
	rec := e.Record
	summary := ""
	if e.HasSummary {
		summary = "yes"
	}
	attempts := ""
	if rec.Attempts > 0 {
		attempts = fmt.Sprintf("%d", rec.Attempts)
	}
	return table.Row{
		rec.ID,
		rec.Stage.String(),
		attempts,
		summary,
		Ago(rec.UpdatedAt, now),
		rec.LastError,
	}
}

// SelectedID returns the ID under the cursor, or "" on an empty table
func (m *DashboardModel) SelectedID() string {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.visible) {
		return ""
	}
	return m.visible[i].Record.ID
}

// Counts tallies the loaded records by stage
func (m *DashboardModel) Counts() map[domain.Stage]int {
	counts := make(map[domain.Stage]int)
	for _, e := range m.entries {
		counts[e.Record.Stage]++
	}
	return counts
}

// SetSize resizes the table to the window
func (m *DashboardModel) SetSize(width, height int) {
	m.ViewState.SetSize(width, height)
	m.table.SetColumns(dashboardColumns(width - 8))
	m.table.SetHeight(max(height-12, 5))
}

// View renders the dashboard
func (m *DashboardModel) View() string {
	v := NewViewBuilder().Title("paperflow")

	v.Line(m.summaryLine())
	if m.filtering || m.filter.Value() != "" {
		v.Line(styles.InputFocused.Render(m.filter.View()))
	}
	v.Line(m.table.View())
	v.Message(m.Message, m.MessageErr)

	if m.filtering {
		return v.Help(filterKeys.Apply, filterKeys.Cancel).String()
	}
	k := DashboardKeys
	return v.Help(k.Open, k.Copy, k.Filter, k.Failed, k.Refresh, k.Help, k.Quit).String()
}

func (m *DashboardModel) summaryLine() string {
	counts := m.Counts()
	inFlight := 0
	for _, st := range domain.NonTerminalStages() {
		inFlight += counts[st]
	}

	parts := []string{
		fmt.Sprintf("%d papers", len(m.entries)),
		fmt.Sprintf("%s %d", styles.Stage(domain.StageIndexed), counts[domain.StageIndexed]),
		fmt.Sprintf("in flight %d", inFlight),
		fmt.Sprintf("%s %d", styles.Stage(domain.StageFailed), counts[domain.StageFailed]),
	}
	line := strings.Join(parts, styles.HelpSeparator.String())
	if m.failedOnly {
		line += styles.MutedText.Render("  (failed only)")
	}
	if !m.loaded.IsZero() {
		line += styles.MutedText.Render("  updated " + m.loaded.Format("15:04:05"))
	}
	return line
}
