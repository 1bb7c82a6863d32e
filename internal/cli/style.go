package cli

import "github.com/charmbracelet/lipgloss"

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FAFAFA")).
	Background(lipgloss.Color("#7D56F4")).
	Padding(1, 5).
	MarginBottom(1).
	Align(lipgloss.Center).
	Border(lipgloss.RoundedBorder())

var errorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#E74C3C")).
	Bold(true)

var labelStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#7D56F4")).
	Bold(true)

var mutedStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#888888"))
