package viz

import "github.com/charmbracelet/lipgloss"

// Colors adapt to light and dark terminals.
var (
	accent = lipgloss.AdaptiveColor{Light: "#005f87", Dark: "#5fd7ff"}
	muted  = lipgloss.AdaptiveColor{Light: "#767676", Dark: "#8a8aa0"}
	frame  = lipgloss.AdaptiveColor{Light: "#bcbcbc", Dark: "#44445a"}
	good   = lipgloss.AdaptiveColor{Light: "#008700", Dark: "#5fff87"}
	warn   = lipgloss.AdaptiveColor{Light: "#af5f00", Dark: "#ffaf00"}
	bad    = lipgloss.AdaptiveColor{Light: "#af0000", Dark: "#ff5f5f"}
)

var (
	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(frame).
		Padding(0, 2)

	Title       = lipgloss.NewStyle().Bold(true).Foreground(accent)
	Subtle      = lipgloss.NewStyle().Foreground(muted).Italic(true)
	MetricLabel = lipgloss.NewStyle().Foreground(muted)
	MetricValue = lipgloss.NewStyle().Foreground(accent)

	StatusOK   = status(good)
	StatusWarn = status(warn)
	StatusFail = status(bad)
)

func status(c lipgloss.TerminalColor) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(c)
}
