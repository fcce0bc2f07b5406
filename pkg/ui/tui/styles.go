package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	cyan    = lipgloss.Color("#00FFFF")
	magenta = lipgloss.Color("#FF00FF")
	green   = lipgloss.Color("#39FF14")
	yellow  = lipgloss.Color("#FFFF00")
	orange  = lipgloss.Color("#FF6700")
	red     = lipgloss.Color("#FF3B3B")
	screen  = lipgloss.Color("#0A0E27")
	panel   = lipgloss.Color("#1A1E37")
	muted   = lipgloss.Color("#B0B0B0")
	faint   = lipgloss.Color("#626262")
)

var (
	screenStyle = lipgloss.NewStyle().Background(screen).Foreground(muted)
	logoStyle   = lipgloss.NewStyle().Foreground(cyan).Bold(true).Padding(1, 0).Align(lipgloss.Center)
	hintStyle   = lipgloss.NewStyle().Foreground(faint).PaddingLeft(2)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(magenta).
			Background(panel).
			Padding(0, 1)
	panelTitleStyle = lipgloss.NewStyle().Background(magenta).Foreground(screen).Bold(true).Padding(0, 1)

	// counters
	labelStyle = lipgloss.NewStyle().Foreground(cyan).Bold(true)
	valueStyle = lipgloss.NewStyle().Foreground(yellow)

	// attempt outcomes
	doneStyle  = lipgloss.NewStyle().Foreground(green).Bold(true)
	alertStyle = lipgloss.NewStyle().Foreground(orange).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(red).Bold(true)

	// findings list
	findingCodeStyle    = lipgloss.NewStyle().Foreground(green).Bold(true)
	captionStyle        = lipgloss.NewStyle().Foreground(muted).Faint(true).PaddingLeft(2)
	analysisFailedStyle = lipgloss.NewStyle().Foreground(orange).PaddingLeft(2)
	mutedStyle          = lipgloss.NewStyle().Foreground(muted)
	lastCodeStyle       = lipgloss.NewStyle().Foreground(muted).Faint(true)

	logTimeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	logTextStyle = lipgloss.NewStyle().Foreground(muted)
)
