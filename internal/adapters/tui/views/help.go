package views

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"paperflow/internal/adapters/tui/styles"
	"paperflow/internal/domain"
)

var helpClose = key.NewBinding(
	key.WithKeys("esc", "q", "?"),
	key.WithHelp("esc/q/?", "close"),
)

// HelpModel is the model for the help view
type HelpModel struct {
	ViewState
}

// NewHelpModel creates a new help view model
func NewHelpModel() *HelpModel {
	return &HelpModel{}
}

// Init initializes the help view
func (m *HelpModel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view
func (m *HelpModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
	case tea.KeyMsg:
		if key.Matches(msg, helpClose) {
			return m, func() tea.Msg { return SwitchToDashboardMsg{} }
		}
	}
	return m, nil
}

// View renders the help view
func (m *HelpModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("paperflow help"))
	b.WriteString("\n")
	b.WriteString(styles.Subtitle.Render("Pipeline ledger dashboard"))
	b.WriteString("\n\n")

	b.WriteString(styles.InputLabel.Render("Dashboard"))
	b.WriteString("\n")
	b.WriteString(helpLine("j / k / ↑ / ↓", "Move up/down"))
	for _, k := range []key.Binding{
		DashboardKeys.Open, DashboardKeys.Copy, DashboardKeys.Filter,
		DashboardKeys.Failed, DashboardKeys.Refresh,
	} {
		b.WriteString(helpLine(k.Help().Key, k.Help().Desc))
	}
	b.WriteString("\n")

	b.WriteString(styles.InputLabel.Render("Reader"))
	b.WriteString("\n")
	for _, k := range []key.Binding{ReaderKeys.Toggle, ReaderKeys.Edit, ReaderKeys.Back} {
		b.WriteString(helpLine(k.Help().Key, k.Help().Desc))
	}
	b.WriteString("\n")

	b.WriteString(styles.InputLabel.Render("Stages"))
	b.WriteString("\n  ")
	var stages []string
	for _, st := range append(domain.NonTerminalStages(), domain.StageIndexed, domain.StageFailed) {
		stages = append(stages, styles.Stage(st))
	}
	b.WriteString(strings.Join(stages, styles.MutedText.Render(" → ")))
	b.WriteString("\n\n")

	b.WriteString(helpLine("q / Ctrl+C", "Quit"))
	b.WriteString("\n")
	b.WriteString(RenderKeyHelp(helpClose))

	return styles.App.Render(b.String())
}

func helpLine(key, desc string) string {
	return "  " + styles.HelpKey.Render(padRight(key, 20)) + styles.HelpDesc.Render(desc) + "\n"
}

func padRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}
