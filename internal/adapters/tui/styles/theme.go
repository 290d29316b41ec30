package styles

import (
	"github.com/charmbracelet/lipgloss"

	"paperflow/internal/domain"
)

var (
	// Colors
	Primary   = lipgloss.Color("#7C3AED") // Purple
	Secondary = lipgloss.Color("#10B981") // Green
	Muted     = lipgloss.Color("#6B7280") // Gray
	Warning   = lipgloss.Color("#F59E0B") // Amber
	Error     = lipgloss.Color("#EF4444") // Red
	Info      = lipgloss.Color("#60A5FA") // Blue
	White     = lipgloss.Color("#FFFFFF")

	// Base styles
	App = lipgloss.NewStyle().
		Padding(1, 2)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true)

	// Table
	TableHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(Muted).
			BorderBottom(true)

	TableSelected = lipgloss.NewStyle().
			Background(Primary).
			Foreground(White).
			Bold(true)

	// Status bar
	StatusBar = lipgloss.NewStyle().
			Background(lipgloss.Color("#1F2937")).
			Foreground(White).
			Padding(0, 1)

	// Input styles
	InputLabel = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	InputFocused = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Secondary).
			Padding(0, 1)

	// Reader frame
	Pane = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Muted).
		Padding(0, 1)

	// Help styles
	HelpKey = lipgloss.NewStyle().
		Foreground(Primary).
		Bold(true)

	HelpDesc = lipgloss.NewStyle().
			Foreground(Muted)

	HelpSeparator = lipgloss.NewStyle().
			Foreground(Muted).
			SetString(" • ")

	// Message styles
	Success = lipgloss.NewStyle().
		Foreground(Secondary).
		Bold(true)

	ErrorMsg = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	MutedText = lipgloss.NewStyle().
			Foreground(Muted)
)

// StageColor returns the color used for a pipeline stage
func StageColor(stage domain.Stage) lipgloss.Color {
	switch {
	case stage == domain.StageIndexed:
		return Secondary
	case stage == domain.StageFailed:
		return Error
	case stage == domain.StageDetected:
		return Muted
	case stage.AtLeast(domain.StageSummarized):
		return Info
	default:
		return Warning
	}
}

// Stage renders a stage name in its color
func Stage(stage domain.Stage) string {
	return lipgloss.NewStyle().Foreground(StageColor(stage)).Render(stage.String())
}
