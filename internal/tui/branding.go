package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/newsroom/internal/config"
)

const AppName = "newsroom"

// LogoLines is the banner logo.
var LogoLines = []string{
	"█▄ █ █▀▀ █ █ █ █▀ █▀█ █▀█ █▀█ █▀▄▀█",
	"█ ▀█ ██▄ ▀▄▀▄▀ ▄█ █▀▄ █▄█ █▄█ █ ▀ █",
}

const CompactLogo = `newsroom ›`

// BannerColors are applied to banner lines in turn.
var BannerColors = []lipgloss.Color{
	lipgloss.Color("#FF6B6B"),
	lipgloss.Color("#4ECDC4"),
	lipgloss.Color("#95E1D3"),
}

var (
	PrimaryColor   = lipgloss.Color("#FF6B6B")
	SecondaryColor = lipgloss.Color("#4ECDC4")
	AccentColor    = lipgloss.Color("#95E1D3")

	BackgroundColor = lipgloss.Color("#1A1A2E")
	SurfaceColor    = lipgloss.Color("#16213E")
	TextColor       = lipgloss.Color("#EAEAEA")
	MutedColor      = lipgloss.Color("#94A3B8")

	RelevantColor = lipgloss.Color("#FFE66D")
	ErrorColor    = lipgloss.Color("#F87171")
	SuccessColor  = lipgloss.Color("#4ADE80")
)

// Styles are rebuilt by ApplyColors.
var (
	LogoStyle           lipgloss.Style
	TitleStyle          lipgloss.Style
	HeaderStyle         lipgloss.Style
	TabStyle            lipgloss.Style
	ActiveTabStyle      lipgloss.Style
	RelevantStyle       lipgloss.Style
	CursorStyle         lipgloss.Style
	HelpStyle           lipgloss.Style
	TimeStyle           lipgloss.Style
	ModalTextStyle      lipgloss.Style
	ModalHighlightStyle lipgloss.Style
	ErrorMessageStyle   lipgloss.Style
	SeparatorStyle      lipgloss.Style
	StatusInfoStyle     lipgloss.Style
	StatusSuccessStyle  lipgloss.Style
	StatusWarnStyle     lipgloss.Style
	StatusErrorStyle    lipgloss.Style
	TileValueStyle      lipgloss.Style
)

var EmptyStyle = lipgloss.NewStyle()

func init() {
	buildStyles()
}

// ApplyColors replaces the palette with the configured colors. Blank
// entries keep the built-in value.
func ApplyColors(c config.UIColors) {
	set := func(dst *lipgloss.Color, v string) {
		if v != "" {
			*dst = lipgloss.Color(v)
		}
	}
	set(&PrimaryColor, c.Primary)
	set(&SecondaryColor, c.Secondary)
	set(&AccentColor, c.Accent)
	set(&TextColor, c.Text)
	set(&MutedColor, c.Muted)
	set(&ErrorColor, c.Error)
	set(&SuccessColor, c.Success)
	buildStyles()
}

func buildStyles() {
	LogoStyle = lipgloss.NewStyle().Foreground(PrimaryColor).Bold(true)
	TitleStyle = lipgloss.NewStyle().
		Foreground(TextColor).
		Background(SurfaceColor).
		Bold(true).
		Padding(0, 2)
	HeaderStyle = lipgloss.NewStyle().Foreground(SecondaryColor).Bold(true)
	TabStyle = lipgloss.NewStyle().Foreground(MutedColor).Padding(0, 1)
	ActiveTabStyle = lipgloss.NewStyle().
		Foreground(BackgroundColor).
		Background(AccentColor).
		Bold(true).
		Padding(0, 1)
	RelevantStyle = lipgloss.NewStyle().Foreground(RelevantColor).Bold(true)
	CursorStyle = lipgloss.NewStyle().Foreground(PrimaryColor).Bold(true)
	HelpStyle = lipgloss.NewStyle().Foreground(MutedColor).Italic(true)
	TimeStyle = lipgloss.NewStyle().Foreground(MutedColor).Faint(true)
	ModalTextStyle = lipgloss.NewStyle().Foreground(TextColor)
	ModalHighlightStyle = lipgloss.NewStyle().Foreground(RelevantColor).Bold(true)
	ErrorMessageStyle = lipgloss.NewStyle().Foreground(ErrorColor).Bold(true)
	SeparatorStyle = lipgloss.NewStyle().Foreground(MutedColor)
	StatusInfoStyle = lipgloss.NewStyle().Foreground(MutedColor)
	StatusSuccessStyle = lipgloss.NewStyle().Foreground(SuccessColor)
	StatusWarnStyle = lipgloss.NewStyle().Foreground(RelevantColor)
	StatusErrorStyle = lipgloss.NewStyle().Foreground(ErrorColor).Bold(true)
	TileValueStyle = lipgloss.NewStyle().Foreground(SecondaryColor).Bold(true)
}

// ContentWrapper returns a style for wrapping content with width and height constraints
func ContentWrapper(width, height int) lipgloss.Style {
	return EmptyStyle.Width(width).Height(height).MaxHeight(height)
}

func GetWelcomeMessage(newJobKey string) string {
	return GetCompactBanner(fmt.Sprintf("Press %s to start a pipeline run", newJobKey))
}

func GetCompactBanner(message string) string {
	var coloredLines []string
	for _, line := range LogoLines {
		coloredLines = append(coloredLines, LogoStyle.Render(line))
	}
	logo := lipgloss.JoinVertical(lipgloss.Center, coloredLines...)
	return lipgloss.JoinVertical(lipgloss.Center, logo, "", HelpStyle.Render(message))
}

// Banner renders the framed logo printed by `newsroom version`.
func Banner(version string) string {
	lines := append([]string(nil), LogoLines...)
	lines = append(lines, "")

	tagline := "    RSS classification pipeline client"
	if version != "" && version != "dev" {
		if version[0] != 'v' && version[0] != 'V' {
			version = "v" + version
		}
		tagline += " " + version
	}
	lines = append(lines, tagline)

	colored := make([]string, 0, len(lines))
	for i, line := range lines {
		if line == "" {
			colored = append(colored, line)
			continue
		}
		style := lipgloss.NewStyle().
			Foreground(BannerColors[i%len(BannerColors)]).
			Bold(i < len(LogoLines))
		colored = append(colored, style.Render(line))
	}

	border := lipgloss.Border{
		Top:         "═",
		Bottom:      "═",
		Left:        "║",
		Right:       "║",
		TopLeft:     "╔",
		TopRight:    "╗",
		BottomLeft:  "╚",
		BottomRight: "╝",
	}
	framed := lipgloss.NewStyle().
		Border(border).
		BorderForeground(SecondaryColor).
		Padding(1, 3).
		MarginTop(1).
		Render(lipgloss.JoinVertical(lipgloss.Center, colored...))

	return lipgloss.NewStyle().Width(70).Align(lipgloss.Center).Render(framed)
}

func ShowBanner(version string) {
	fmt.Println(Banner(version))
}
