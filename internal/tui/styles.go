package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/revroom/internal/rank"
)

// Color palette.
var (
	colorRed       = lipgloss.Color("#ff5555")
	colorGreen     = lipgloss.Color("#50fa7b")
	colorYellow    = lipgloss.Color("#f1fa8c")
	colorBlue      = lipgloss.Color("#8be9fd")
	colorPurple    = lipgloss.Color("#bd93f9")
	colorDim       = lipgloss.Color("#6272a4")
	colorBgLight   = lipgloss.Color("#343746")
	colorFg        = lipgloss.Color("#f8f8f2")
	colorOrange    = lipgloss.Color("#ffb86c")
	colorBorder    = lipgloss.Color("#44475a")
	colorHighlight = lipgloss.Color("#44475a")
)

// Style definitions.
var (
	// File list styles
	fileListStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	fileItemStyle = lipgloss.NewStyle().
			Foreground(colorFg)

	fileItemSelectedStyle = lipgloss.NewStyle().
				Foreground(colorFg).
				Background(colorHighlight).
				Bold(true)

	clusterLabelStyle = lipgloss.NewStyle().
				Foreground(colorDim).
				Italic(true)

	bannerStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	// Diff view styles
	diffViewStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	lineNumberStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Width(4).
			Align(lipgloss.Right)

	addedLineStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	deletedLineStyle = lipgloss.NewStyle().
				Foreground(colorRed)

	contextLineStyle = lipgloss.NewStyle().
				Foreground(colorFg)

	hunkHeaderStyle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true)

	cursorStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	commentBadgeStyle = lipgloss.NewStyle().
				Foreground(colorOrange).
				Bold(true)

	fileHeaderStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true)

	explanationStyle = lipgloss.NewStyle().
				Foreground(colorDim).
				Padding(0, 0, 1, 0)

	// Thread panel
	threadAuthorStyle = lipgloss.NewStyle().
				Foreground(colorBlue).
				Bold(true)

	threadResolvedStyle = lipgloss.NewStyle().
				Foreground(colorDim).
				Strikethrough(true)

	// Status bar
	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorFg).
			Background(colorBgLight).
			Padding(0, 1)

	statusErrorStyle = lipgloss.NewStyle().
				Foreground(colorRed).
				Background(colorBgLight)

	// Help bar
	helpBarStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow)
)

// tierColors maps a score tier to its badge color.
var tierColors = map[rank.ScoreTier]lipgloss.Color{
	rank.TierCritical: colorRed,
	rank.TierHigh:     colorOrange,
	rank.TierMedium:   colorYellow,
	rank.TierLow:      colorGreen,
	rank.TierMinimal:  colorDim,
}

func tierStyle(score float64) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(tierColors[rank.Tier(score)]).Bold(true)
}

// presenceDot renders a reviewer marker in their assigned color.
func presenceDot(color string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("●")
}
