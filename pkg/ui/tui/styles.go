package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	accent    = lipgloss.Color("#4ECDC4")
	highlight = lipgloss.Color("#F8B500")
	good      = lipgloss.Color("#95E1A3")
	bad       = lipgloss.Color("#FF6B6B")
	warn      = lipgloss.Color("#FFE66D")
	dimWhite  = lipgloss.Color("#6C757D")

	headerStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 2)

	albumStyle = lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true)

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(accent).
			Width(12)

	successStyle = lipgloss.NewStyle().Foreground(good)
	errorStyle   = lipgloss.NewStyle().Foreground(bad)
	warningStyle = lipgloss.NewStyle().Foreground(warn)
	dimStyle     = lipgloss.NewStyle().Foreground(dimWhite)

	helpStyle = lipgloss.NewStyle().
			Foreground(dimWhite).
			PaddingTop(1)
)

func levelStyle(level string) lipgloss.Style {
	switch level {
	case levelError:
		return errorStyle
	case levelWarn:
		return warningStyle
	case levelSuccess:
		return successStyle
	default:
		return dimStyle
	}
}
