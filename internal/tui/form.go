package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/newsroom/internal/api"
)

const (
	fieldFeeds = iota
	fieldCriteria
	fieldModel
	fieldTemperature
	fieldSimilarity
	fieldRelevance
	fieldCount
)

var fieldLabels = [fieldCount]string{
	"RSS feeds (one per line)",
	"Selection criteria",
	"LLM model",
	"Temperature (0-2)",
	"Similarity threshold (0-1)",
	"Relevance threshold (0-1)",
}

// jobForm collects the parameters of a new pipeline run.
type jobForm struct {
	feeds    textarea.Model
	criteria textarea.Model
	inputs   [fieldCount]textinput.Model
	focus    int
	err      string
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func newJobForm(req api.StartRequest, width int) *jobForm {
	f := &jobForm{}

	f.feeds = textarea.New()
	f.feeds.Placeholder = "https://example.com/feed.xml"
	f.feeds.ShowLineNumbers = false
	f.feeds.SetHeight(4)
	f.feeds.SetValue(strings.Join(req.RSSFeeds, "\n"))

	f.criteria = textarea.New()
	f.criteria.Placeholder = "What makes an article relevant?"
	f.criteria.ShowLineNumbers = false
	f.criteria.SetHeight(3)
	f.criteria.SetValue(req.Criteria)

	values := map[int]string{
		fieldModel:       req.LLMModel,
		fieldTemperature: formatFloat(req.LLMTemperature),
		fieldSimilarity:  formatFloat(req.SimilarityThreshold),
		fieldRelevance:   formatFloat(req.RelevanceThreshold),
	}
	for i := fieldModel; i < fieldCount; i++ {
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = 64
		ti.SetValue(values[i])
		f.inputs[i] = ti
	}

	f.setWidth(width)
	f.focusField(fieldFeeds)
	return f
}

func (f *jobForm) setWidth(width int) {
	w := modalWidth(width) - 6
	if w < 20 {
		w = 20
	}
	f.feeds.SetWidth(w)
	f.criteria.SetWidth(w)
	for i := fieldModel; i < fieldCount; i++ {
		f.inputs[i].Width = w
	}
}

func (f *jobForm) focusField(n int) tea.Cmd {
	f.focus = (n + fieldCount) % fieldCount
	f.feeds.Blur()
	f.criteria.Blur()
	for i := fieldModel; i < fieldCount; i++ {
		f.inputs[i].Blur()
	}
	switch f.focus {
	case fieldFeeds:
		return f.feeds.Focus()
	case fieldCriteria:
		return f.criteria.Focus()
	default:
		return f.inputs[f.focus].Focus()
	}
}

func (f *jobForm) next() tea.Cmd { return f.focusField(f.focus + 1) }

func (f *jobForm) prev() tea.Cmd { return f.focusField(f.focus - 1) }

// multiline reports whether enter inserts a newline in the focused field.
func (f *jobForm) multiline() bool {
	return f.focus == fieldFeeds || f.focus == fieldCriteria
}

func (f *jobForm) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch f.focus {
	case fieldFeeds:
		f.feeds, cmd = f.feeds.Update(msg)
	case fieldCriteria:
		f.criteria, cmd = f.criteria.Update(msg)
	default:
		f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	}
	return cmd
}

func parseNumber(field, label, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, &api.ValidationError{Field: field, Message: label + " must be a number"}
	}
	return v, nil
}

// request builds the start request from the form. Range checks are left
// to the workspace, which validates every submission.
func (f *jobForm) request() (api.StartRequest, error) {
	req := api.StartRequest{
		RSSFeeds: api.FeedList(splitFeeds(f.feeds.Value())),
		Criteria: strings.TrimSpace(f.criteria.Value()),
		LLMModel: strings.TrimSpace(f.inputs[fieldModel].Value()),
	}
	var err error
	if req.LLMTemperature, err = parseNumber("llm_temperature", "Temperature", f.inputs[fieldTemperature].Value()); err != nil {
		return req, err
	}
	if req.SimilarityThreshold, err = parseNumber("similarity_threshold", "Similarity threshold", f.inputs[fieldSimilarity].Value()); err != nil {
		return req, err
	}
	if req.RelevanceThreshold, err = parseNumber("relevance_threshold", "Relevance threshold", f.inputs[fieldRelevance].Value()); err != nil {
		return req, err
	}
	return req, nil
}

func (f *jobForm) View(width, height int, submitKey string) string {
	label := func(i int) string {
		if i == f.focus {
			return CursorStyle.Render("› " + fieldLabels[i])
		}
		return renderMuted("  " + fieldLabels[i])
	}
	parts := []string{TitleStyle.Render("› new pipeline run"), ""}
	parts = append(parts, label(fieldFeeds), f.feeds.View(), "")
	parts = append(parts, label(fieldCriteria), f.criteria.View(), "")
	for i := fieldModel; i < fieldCount; i++ {
		parts = append(parts, label(i), renderInputFrame(f.inputs[i].View(), i == f.focus, f.inputs[i].Width))
	}
	if f.err != "" {
		parts = append(parts, "", ErrorMessageStyle.Render("✗ "+f.err))
	}
	parts = append(parts, "", renderHelp("Tab: next field • "+submitKey+": submit • Esc: cancel"))
	return renderCentered(width, height, lipgloss.JoinVertical(lipgloss.Left, parts...))
}
