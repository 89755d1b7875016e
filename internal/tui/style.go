package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent = lipgloss.Color("#f56a96")
	subtle = lipgloss.AdaptiveColor{Light: "#626262", Dark: "#A49FA5"}

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#15202b")).
			Background(accent).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(accent).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(subtle).
				Border(lipgloss.HiddenBorder(), false, false, true, false).
				Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(accent).
			Padding(1, 2)

	fieldLabelStyle = lipgloss.NewStyle().
			Foreground(subtle).
			Width(12)

	descriptionStyle = lipgloss.NewStyle().
				Foreground(subtle).
				Italic(true)

	errorMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#f56a96", Dark: "#f23a74"}).
				Render

	emptyMessageStyle = lipgloss.NewStyle().
				Foreground(subtle).
				Render
)
var docStyle = lipgloss.NewStyle().Margin(1, 2)
