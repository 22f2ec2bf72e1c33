package progress

import (
	"fmt"
	"strings"

	bprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/newsroom/internal/api"
)

// Styles controls how slots are drawn.
type Styles struct {
	Label     lipgloss.Style
	Message   lipgloss.Style
	Waiting   lipgloss.Style
	Running   lipgloss.Style
	Completed lipgloss.Style
	Error     lipgloss.Style
}

func DefaultStyles() Styles {
	badge := lipgloss.NewStyle().Padding(0, 1).Bold(true)
	return Styles{
		Label:     lipgloss.NewStyle().Bold(true),
		Message:   lipgloss.NewStyle().Foreground(lipgloss.Color("#94A3B8")).Italic(true),
		Waiting:   badge.Foreground(lipgloss.Color("#1A1A2E")).Background(lipgloss.Color("#64748B")),
		Running:   badge.Foreground(lipgloss.Color("#1A1A2E")).Background(lipgloss.Color("#4ECDC4")),
		Completed: badge.Foreground(lipgloss.Color("#1A1A2E")).Background(lipgloss.Color("#4ADE80")),
		Error:     badge.Foreground(lipgloss.Color("#EAEAEA")).Background(lipgloss.Color("#EF4444")),
	}
}

// StatusText is the badge caption for a step status.
func StatusText(s api.StepStatus) string {
	switch s {
	case api.StepRunning:
		return "running"
	case api.StepCompleted:
		return "done"
	case api.StepError:
		return "error"
	default:
		return "waiting"
	}
}

func (st Styles) badge(s api.StepStatus) string {
	text := StatusText(s)
	switch s {
	case api.StepRunning:
		return st.Running.Render(text)
	case api.StepCompleted:
		return st.Completed.Render(text)
	case api.StepError:
		return st.Error.Render(text)
	default:
		return st.Waiting.Render(text)
	}
}

// Renderer draws slots as a label line, a gauge and an optional message.
type Renderer struct {
	Styles Styles
	bar    bprogress.Model
}

func NewRenderer(width int) *Renderer {
	r := &Renderer{Styles: DefaultStyles()}
	r.SetWidth(width)
	return r
}

func (r *Renderer) SetWidth(width int) {
	if width < 10 {
		width = 10
	}
	r.bar = bprogress.New(bprogress.WithDefaultGradient(), bprogress.WithWidth(width))
}

// Render draws every slot of v.
func (r *Renderer) Render(slots []Slot) string {
	var b strings.Builder
	for i, s := range slots {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s %s\n", r.Styles.badge(s.Status), r.Styles.Label.Render(s.Label))
		b.WriteString(r.bar.ViewAs(s.Percent()))
		if s.Message != "" {
			b.WriteString("\n")
			b.WriteString(r.Styles.Message.Render(s.Message))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Line renders a slot as a single plain-text line, for non-interactive
// output.
func Line(s Slot) string {
	pct := int(s.Percent() * 100)
	line := fmt.Sprintf("[%-7s] %3d%% %s", StatusText(s.Status), pct, s.Label)
	if s.Message != "" {
		line += ": " + s.Message
	}
	return line
}
