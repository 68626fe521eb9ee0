package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/offlinefirst/framegrab/pkg/capture"
)

var (
	colorInfo    = lipgloss.Color("#3b82f6")
	colorReady   = lipgloss.Color("#22c55e")
	colorError   = lipgloss.Color("#dc2626")
	colorDimmed  = lipgloss.Color("#6b7280")
	colorBright  = lipgloss.Color("#f9fafb")
	colorBorder  = lipgloss.Color("#4b5563")
	colorWarning = lipgloss.Color("#d97706")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBright)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDimmed)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
	countdownStyle = lipgloss.NewStyle().Bold(true).Foreground(colorWarning)
	enabledStyle   = lipgloss.NewStyle().Foreground(colorBright)
	disabledStyle  = lipgloss.NewStyle().Foreground(colorDimmed).Strikethrough(true)
)

func statusStyle(severity capture.Severity) lipgloss.Style {
	switch severity {
	case capture.SeverityReady:
		return lipgloss.NewStyle().Foreground(colorReady)
	case capture.SeverityError:
		return lipgloss.NewStyle().Foreground(colorError).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(colorInfo)
	}
}

func stateBadge(state capture.State) string {
	color := colorDimmed
	switch state {
	case capture.StateRequesting:
		color = colorInfo
	case capture.StateReady:
		color = colorReady
	case capture.StateDelaying:
		color = colorWarning
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#111827")).
		Background(color).
		Padding(0, 1).
		Render(string(state))
}
