package views

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"paperflow/internal/adapters/tui/styles"
	"paperflow/internal/application/commands"
	"paperflow/internal/domain"
	"paperflow/internal/ports"
)

// ReaderKeyMap defines key bindings for the paper reader
type ReaderKeyMap struct {
	Toggle key.Binding
	Edit   key.Binding
	Back   key.Binding
}

var ReaderKeys = ReaderKeyMap{
	Toggle: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "summary/text"),
	),
	Edit: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "edit"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc", "q"),
		key.WithHelp("esc", "back"),
	),
}

// ReaderModel pages through one paper's summary or converted text
type ReaderModel struct {
	ViewState
	ledger    ports.Ledger
	artifacts ports.ArtifactStore
	viewport  viewport.Model

	documentID string
	kind       domain.ArtifactKind
	path       string
}

// NewReaderModel creates a new reader
func NewReaderModel(ledger ports.Ledger, artifacts ports.ArtifactStore) *ReaderModel {
	return &ReaderModel{
		ledger:    ledger,
		artifacts: artifacts,
		viewport:  viewport.New(80, 20),
		kind:      domain.ArtifactSummary,
	}
}

type documentLoadedMsg struct {
	requested string
	kind      domain.ArtifactKind
	path      string
	content   string
	err       error
}

// Open starts loading the summary of documentID
func (m *ReaderModel) Open(documentID string) tea.Cmd {
	m.documentID = documentID
	m.kind = domain.ArtifactSummary
	m.ClearMessage()
	return m.load()
}

func (m *ReaderModel) load() tea.Cmd {
	id, kind := m.documentID, m.kind
	return func() tea.Msg {
		var (
			res *commands.ReadResult
			err error
		)
		if kind == domain.ArtifactText {
			res, err = commands.NewReadPaperCommand(m.ledger, m.artifacts, id, "").Execute(context.Background())
		} else {
			res, err = commands.NewSummaryCommand(m.ledger, m.artifacts, id).Execute(context.Background())
		}
		if err != nil {
			return documentLoadedMsg{requested: id, kind: kind, err: err}
		}
		return documentLoadedMsg{requested: id, kind: kind, path: res.Path, content: res.Content}
	}
}

// Init initializes the reader
func (m *ReaderModel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the reader
func (m *ReaderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case documentLoadedMsg:
		if msg.requested != m.documentID || msg.kind != m.kind {
			return m, nil
		}
		if msg.err != nil {
			m.path = ""
			m.viewport.SetContent("")
			m.SetMessage(msg.err.Error(), true)
			return m, nil
		}
		m.ClearMessage()
		m.path = msg.path
		m.viewport.SetContent(msg.content)
		m.viewport.GotoTop()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, ReaderKeys.Back):
			return m, func() tea.Msg { return SwitchToDashboardMsg{} }

		case key.Matches(msg, ReaderKeys.Toggle):
			if m.kind == domain.ArtifactSummary {
				m.kind = domain.ArtifactText
			} else {
				m.kind = domain.ArtifactSummary
			}
			return m, m.load()

		case key.Matches(msg, ReaderKeys.Edit):
			if m.path == "" {
				return m, nil
			}
			path := m.path
			return m, func() tea.Msg { return OpenEditorMsg{Path: path} }
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// Showing reports which document and artifact the reader is on
func (m *ReaderModel) Showing() (string, domain.ArtifactKind) {
	return m.documentID, m.kind
}

// SetSize fits the viewport to the window
func (m *ReaderModel) SetSize(width, height int) {
	m.ViewState.SetSize(width, height)
	m.viewport.Width = max(width-8, 20)
	m.viewport.Height = max(height-10, 5)
}

// View renders the reader
func (m *ReaderModel) View() string {
	v := NewViewBuilder().Title(m.documentID)
	v.Line(RenderLabelValue("Showing", m.kind.String()))
	if m.path != "" {
		v.Line(styles.MutedText.Render(m.path))
	}
	v.Message(m.Message, m.MessageErr)
	v.Line(styles.Pane.Render(m.viewport.View()))
	return v.Help(ReaderKeys.Toggle, ReaderKeys.Edit, ReaderKeys.Back).String()
}
