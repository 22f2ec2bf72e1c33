package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/newsroom/internal/stats"
)

// renderHeader returns a consistently styled header with an optional muted subtitle.
// Width is used to guide truncation via helpers.
func renderHeader(title, subtitle string, width int) string {
	title = truncateEnd(title, width-2)
	subtitle = truncateEnd(subtitle, width-2)
	rows := []string{HeaderStyle.Render(title)}
	if subtitle != "" {
		rows = append(rows, renderMuted(subtitle))
	}
	return lipgloss.JoinVertical(lipgloss.Top, rows...)
}

// renderInputFrame draws a rounded bordered container around a rendered input view.
func renderInputFrame(inputView string, focused bool, contentWidth int) string {
	borderColor := MutedColor
	if focused {
		borderColor = AccentColor
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1).
		Width(contentWidth + 4).
		Render(inputView)
}

// renderCentered centers the provided content within the given width/height box.
func renderCentered(width, height int, content string) string {
	return lipgloss.NewStyle().
		Width(width).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(content)
}

// renderMuted renders text in muted color (utility wrapper).
func renderMuted(text string) string {
	return lipgloss.NewStyle().Foreground(MutedColor).Render(text)
}

// renderHelp renders help/instructional text consistently.
func renderHelp(text string) string {
	return HelpStyle.Render(text)
}

// modalWidth is four fifths of the screen, shrinking on narrow terminals.
func modalWidth(width int) int {
	w := (width * 4) / 5
	if w < 20 {
		w = width - 4
		if w < 15 {
			w = width
		}
	}
	return w
}

func renderConfirm(c *confirmation, width, height int) string {
	w := modalWidth(width)
	centered := func(s lipgloss.Style) lipgloss.Style {
		return s.Width(w).Align(lipgloss.Center)
	}
	parts := []string{
		ErrorMessageStyle.Render("⚠ " + c.title),
		"",
	}
	if c.subject != "" {
		parts = append(parts, centered(ModalHighlightStyle).Render(truncateEnd(c.subject, w-4)), "")
	}
	if c.note != "" {
		parts = append(parts, centered(lipgloss.NewStyle().Foreground(MutedColor)).Render(c.note), "")
	}
	parts = append(parts, "", renderHelp("Enter: confirm • Esc: cancel"))
	return renderCentered(width, height, lipgloss.JoinVertical(lipgloss.Center, parts...))
}

func renderTabs(active Tab, width int) string {
	parts := []string{LogoStyle.Render(CompactLogo)}
	for i, t := range tabOrder {
		label := fmt.Sprintf("%d %s", i+1, t)
		if t == active {
			parts = append(parts, ActiveTabStyle.Render(label))
		} else {
			parts = append(parts, TabStyle.Render(label))
		}
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(strings.Join(parts, " "))
}

// renderTiles draws labelled counters side by side, wrapping onto a second
// row when the terminal is narrow.
func renderTiles(tiles []stats.Tile, width int) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Padding(0, 1).
		Width(22)
	cells := make([]string, 0, len(tiles))
	for _, t := range tiles {
		cells = append(cells, box.Render(lipgloss.JoinVertical(lipgloss.Left,
			TileValueStyle.Render(fmt.Sprintf("%d", t.Value)),
			renderMuted(t.Label),
		)))
	}
	perRow := len(cells)
	if width > 0 {
		if n := width / 26; n > 0 && n < perRow {
			perRow = n
		}
	}
	var rowsOut []string
	for i := 0; i < len(cells); i += perRow {
		end := i + perRow
		if end > len(cells) {
			end = len(cells)
		}
		rowsOut = append(rowsOut, lipgloss.JoinHorizontal(lipgloss.Top, cells[i:end]...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rowsOut...)
}
