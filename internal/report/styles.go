// Package report renders batch progress, summaries, and ledger views for
// the terminal.
package report

import "github.com/charmbracelet/lipgloss"

var (
	Success     = lipgloss.Color("#8BC34A")
	Destructive = lipgloss.Color("#e53935")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#2196F3")
	Muted       = lipgloss.Color("#6b7280")
)

var (
	okStyle      = lipgloss.NewStyle().Foreground(Success).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(Destructive).Bold(true)
	skipStyle    = lipgloss.NewStyle().Foreground(Muted)
	runStyle     = lipgloss.NewStyle().Foreground(Info)
	warnStyle    = lipgloss.NewStyle().Foreground(Warning)
	counterStyle = lipgloss.NewStyle().Foreground(Muted)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Info).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true)
)
