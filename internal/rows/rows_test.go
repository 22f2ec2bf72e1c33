package rows

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/state"
)

func article() api.Article {
	return api.Article{
		ID:                   7,
		Title:                "Rates <b>held</b>",
		Content:              `<p>Central bank <script>alert(1)</script><a href="https://example.com" onclick="x()">keeps</a> rates.</p><img src=x onerror=alert(1)>`,
		Summary:              "Rates unchanged.",
		Link:                 "https://example.com/a",
		Source:               "Example Times",
		PublishedAt:          api.Timestamp{Time: time.Date(2024, 3, 5, 9, 7, 0, 0, time.Local)},
		RelevanceScore:       api.Float64(0.874),
		IsRelevant:           true,
		ClassificationReason: "Mentions monetary policy",
		SimilarityScore:      api.Float64(0.5),
	}
}

func TestBuildFullRowSet(t *testing.T) {
	rs := Build(article(), Flags{HasSummary: true, Scope: state.ScopeLive})

	assert.Equal(t, int64(7), rs.ArticleID)
	assert.Equal(t, state.ScopeLive, rs.Scope)
	assert.Equal(t, "Example Times", rs.Main.Source)
	assert.Equal(t, "05.03.2024 09:07", rs.Main.Published)
	assert.Equal(t, "87%", rs.Main.Relevance)
	assert.True(t, rs.Main.IsRelevant)
	assert.Empty(t, rs.Main.Similarity, "similarity only for semantic results")

	require.Len(t, rs.Details, 3)
	assert.Equal(t, DetailSummary, rs.Details[0].Kind)
	assert.Equal(t, DetailContent, rs.Details[1].Kind)
	assert.Equal(t, DetailReason, rs.Details[2].Kind)
	assert.True(t, rs.Expandable())
}

func TestBuildOmitsEmptyDetails(t *testing.T) {
	a := article()
	a.Summary = "   "
	a.Content = ""
	a.ClassificationReason = ""
	a.Source = ""
	a.RelevanceScore = nil
	a.PublishedAt = api.Timestamp{}

	rs := Build(a, Flags{HasSummary: true})
	assert.Empty(t, rs.Details)
	assert.False(t, rs.Expandable())
	assert.Equal(t, UnknownSource, rs.Main.Source)
	assert.Equal(t, NoScore, rs.Main.Relevance)
	assert.Equal(t, NotSpecified, rs.Main.Published)
}

func TestBuildWithoutSummaryFlag(t *testing.T) {
	rs := Build(article(), Flags{Scope: state.ScopeHistory})
	_, ok := rs.Detail(DetailSummary)
	assert.False(t, ok)
	assert.Len(t, rs.Details, 2)
}

func TestBuildSimilarity(t *testing.T) {
	rs := Build(article(), Flags{HasSimilarity: true})
	assert.Equal(t, "50%", rs.Main.Similarity)

	a := article()
	a.SimilarityScore = nil
	assert.Equal(t, NoScore, Build(a, Flags{HasSimilarity: true}).Main.Similarity)
}

func TestContentIsSanitized(t *testing.T) {
	d, ok := Build(article(), Flags{}).Detail(DetailContent)
	require.True(t, ok)

	assert.NotContains(t, d.Text, "<script")
	assert.NotContains(t, d.Text, "onclick")
	assert.NotContains(t, d.Text, "onerror")
	assert.NotContains(t, d.Text, "<img")
	assert.Contains(t, d.Text, `<a href="https://example.com"`)
	assert.Contains(t, d.Text, "<p>")
}

func TestContentOnlyMarkupIsDropped(t *testing.T) {
	a := article()
	a.Content = `<script>alert(1)</script>`
	_, ok := Build(a, Flags{}).Detail(DetailContent)
	assert.False(t, ok)
}

func TestSanitizeKeepsAllowedTags(t *testing.T) {
	in := `<h2 class="x">T</h2><blockquote>q</blockquote><pre><code>c</code></pre><ul><li>i</li></ul><iframe src="https://evil"></iframe><a href="javascript:alert(1)">bad</a>`
	out := SanitizeContent(in)
	for _, tag := range []string{`<h2 class="x">`, "<blockquote>", "<pre><code>", "<ul><li>"} {
		assert.Contains(t, out, tag)
	}
	assert.NotContains(t, out, "iframe")
	assert.NotContains(t, out, "javascript:")
}

func TestBuildAllKeepsOrder(t *testing.T) {
	a, b := article(), article()
	b.ID = 3
	sets := BuildAll([]api.Article{a, b}, Flags{})
	assert.Equal(t, []int64{7, 3}, IDs(sets))
	assert.Empty(t, BuildAll(nil, Flags{}))
}

func TestSafeText(t *testing.T) {
	assert.Equal(t, "red text", SafeText("\x1b[31mred\x1b[0m text"))
	assert.Equal(t, "a\nb\tc", SafeText("a\nb\tc\x07\x00"))
	assert.Equal(t, "title", SafeText("\x1b]0;pwned\x07title"))
	assert.Equal(t, "one two", SafeLine(" one\n\ntwo "))
}

func TestContentMarkdown(t *testing.T) {
	md := ContentMarkdown(`<p>Hello <strong>world</strong></p><ul><li>item</li></ul>`)
	assert.Contains(t, md, "**world**")
	assert.Contains(t, md, "item")
}

func TestTruncateAndWrap(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
	assert.Equal(t, "äö...", Truncate("äöü", 2))

	wrapped := Wrap("the quick brown fox jumps", 10)
	for _, line := range strings.Split(wrapped, "\n") {
		assert.LessOrEqual(t, len(line), 10)
	}
	assert.Equal(t, "x y", Wrap("x y", 0))
}

func TestExportHTMLEscapes(t *testing.T) {
	a := article()
	a.ClassificationReason = `<img src=x onerror=alert(1)>`
	a.Link = "javascript:alert(1)"
	doc := Document{Title: "Run <7>", Sets: []RowSet{Build(a, Flags{HasSummary: true})}}

	var buf bytes.Buffer
	require.NoError(t, ExportHTML(&buf, doc))
	out := buf.String()

	assert.Contains(t, out, "Run &lt;7&gt;")
	assert.Contains(t, out, "Rates &lt;b&gt;held&lt;/b&gt;")
	assert.Contains(t, out, "&lt;img src=x onerror=alert(1)&gt;")
	assert.NotContains(t, out, "javascript:alert")
	assert.Contains(t, out, `<a href="https://example.com"`)
}

func TestExportHTMLEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportHTML(&buf, Document{Title: "Empty"}))
	assert.Contains(t, buf.String(), "No articles.")
}

func TestExportMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportMarkdown(&buf, Document{Title: "Run", Sets: []RowSet{Build(article(), Flags{HasSummary: true, HasSimilarity: true})}}))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Run\n"))
	assert.Contains(t, out, "[Rates <b>held</b>](https://example.com/a)")
	assert.Contains(t, out, "**Summary:** Rates unchanged.")
	assert.Contains(t, out, "**Reason:** Mentions monetary policy")
	assert.Contains(t, out, "similarity 50%")
}
