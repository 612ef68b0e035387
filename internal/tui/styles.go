package tui

import "github.com/charmbracelet/lipgloss"

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// StatusStyle returns the style used to render a run status word.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "completed":
		return green
	case "cancelled", "running":
		return yellow
	case "failed":
		return red
	}
	return dim
}

// Label renders a dimmed key followed by a bright value.
func Label(key, value string) string {
	return dim.Render(key+" ") + white.Render(value)
}

// Title renders a heading in the accent colour.
func Title(s string) string {
	return cyan.Render(s)
}
