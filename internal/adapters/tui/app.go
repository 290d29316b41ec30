package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"paperflow/internal/adapters/tui/views"
	"paperflow/internal/ports"
)

// ViewState represents the current view
type ViewState int

const (
	ViewDashboard ViewState = iota
	ViewReader
	ViewHelp
)

// App is the dashboard application model
type App struct {
	editor ports.EditorOpener

	state     ViewState
	dashboard *views.DashboardModel
	reader    *views.ReaderModel
	help      *views.HelpModel

	width  int
	height int
}

// NewApp creates the dashboard. editor may be nil, which disables editing.
func NewApp(ledger ports.Ledger, artifacts ports.ArtifactStore, editor ports.EditorOpener, refresh time.Duration) *App {
	return &App{
		editor:    editor,
		state:     ViewDashboard,
		dashboard: views.NewDashboardModel(ledger, artifacts, refresh),
		reader:    views.NewReaderModel(ledger, artifacts),
		help:      views.NewHelpModel(),
	}
}

// Init initializes the application
func (a *App) Init() tea.Cmd {
	return a.dashboard.Init()
}

// Update handles messages for the application
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.dashboard.SetSize(msg.Width, msg.Height)
		a.reader.SetSize(msg.Width, msg.Height)
		a.help.SetSize(msg.Width, msg.Height)
		return a, nil

	case views.SwitchToHelpMsg:
		a.state = ViewHelp
		return a, nil

	case views.SwitchToDashboardMsg:
		a.state = ViewDashboard
		return a, a.dashboard.Reload()

	case views.OpenReaderMsg:
		a.state = ViewReader
		return a, a.reader.Open(msg.DocumentID)

	case views.OpenEditorMsg:
		return a, a.openEditor(msg.Path)

	case editorFinishedMsg:
		if msg.err != nil {
			a.reader.SetMessage(msg.err.Error(), true)
		}
		return a, nil
	}

	// The dashboard keeps refreshing while another view is in front.
	if a.state != ViewDashboard && !isInput(msg) {
		_, cmd := a.dashboard.Update(msg)
		if a.state == ViewReader {
			var readerCmd tea.Cmd
			_, readerCmd = a.reader.Update(msg)
			cmd = tea.Batch(cmd, readerCmd)
		}
		return a, cmd
	}

	var cmd tea.Cmd
	switch a.state {
	case ViewDashboard:
		_, cmd = a.dashboard.Update(msg)
	case ViewReader:
		_, cmd = a.reader.Update(msg)
	case ViewHelp:
		_, cmd = a.help.Update(msg)
	}
	return a, cmd
}

func isInput(msg tea.Msg) bool {
	switch msg.(type) {
	case tea.KeyMsg, tea.MouseMsg:
		return true
	}
	return false
}

type editorFinishedMsg struct{ err error }

func (a *App) openEditor(path string) tea.Cmd {
	if a.editor == nil {
		return nil
	}

	cmd, err := a.editor.Command(path)
	if err != nil {
		return func() tea.Msg {
			return editorFinishedMsg{err: err}
		}
	}

	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		return editorFinishedMsg{err: err}
	})
}

// View renders the current view
func (a *App) View() string {
	switch a.state {
	case ViewReader:
		return a.reader.View()
	case ViewHelp:
		return a.help.View()
	default:
		return a.dashboard.View()
	}
}
