package rows

import (
	"fmt"
	"html/template"
	"io"
	"strings"
)

// Document is the input of the exporters.
type Document struct {
	Title    string
	Subtitle string
	Sets     []RowSet
}

var htmlFuncs = template.FuncMap{
	// Content details were sanitized in Build. Everything else is passed as
	// a plain string and escaped by html/template.
	"content": func(d Detail) template.HTML {
		return template.HTML(SanitizeContent(d.Text))
	},
	"isContent": func(d Detail) bool { return d.Kind == DetailContent },
	"label":     detailLabel,
}

var htmlTmpl = template.Must(template.New("export").Funcs(htmlFuncs).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 60em; margin: 2em auto; }
.article { border-bottom: 1px solid #ddd; padding: 1em 0; }
.relevant { border-left: 4px solid #4ade80; padding-left: 1em; }
.meta { color: #64748b; font-size: 0.9em; }
.detail { margin: 0.5em 0; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{if .Subtitle}}<p class="meta">{{.Subtitle}}</p>{{end}}
{{range .Sets}}<div class="article{{if .Main.IsRelevant}} relevant{{end}}" id="article-{{.ArticleID}}">
<h2>{{if .Main.Link}}<a href="{{.Main.Link}}" rel="noopener noreferrer" target="_blank">{{.Main.Title}}</a>{{else}}{{.Main.Title}}{{end}}</h2>
<p class="meta">#{{.Main.ID}} · {{.Main.Source}} · {{.Main.Published}} · relevance {{.Main.Relevance}}{{if .Main.Similarity}} · similarity {{.Main.Similarity}}{{end}}</p>
{{range .Details}}{{if isContent .}}<div class="detail content">{{content .}}</div>
{{else}}<p class="detail {{.Kind}}"><strong>{{label .Kind}}:</strong> {{.Text}}</p>
{{end}}{{end}}</div>
{{else}}<p>No articles.</p>
{{end}}</body>
</html>
`))

// ExportHTML writes doc as a standalone HTML page.
func ExportHTML(w io.Writer, doc Document) error {
	return htmlTmpl.Execute(w, doc)
}

// ExportMarkdown writes doc as markdown. Content rows are converted from
// their sanitized HTML.
func ExportMarkdown(w io.Writer, doc Document) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", SafeLine(doc.Title))
	if doc.Subtitle != "" {
		fmt.Fprintf(&b, "_%s_\n\n", SafeLine(doc.Subtitle))
	}
	if len(doc.Sets) == 0 {
		b.WriteString("No articles.\n")
	}
	for _, s := range doc.Sets {
		title := SafeLine(s.Main.Title)
		if s.Main.Link != "" {
			title = fmt.Sprintf("[%s](%s)", title, SafeLine(s.Main.Link))
		}
		fmt.Fprintf(&b, "## %s\n\n", title)
		fmt.Fprintf(&b, "#%d · %s · %s · relevance %s", s.Main.ID, SafeLine(s.Main.Source), s.Main.Published, s.Main.Relevance)
		if s.Main.Similarity != "" {
			fmt.Fprintf(&b, " · similarity %s", s.Main.Similarity)
		}
		b.WriteString("\n\n")
		for _, d := range s.Details {
			if d.Kind == DetailContent {
				b.WriteString(ContentMarkdown(d.Text))
			} else {
				fmt.Fprintf(&b, "**%s:** %s", detailLabel(d.Kind), SafeText(d.Text))
			}
			b.WriteString("\n\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func detailLabel(k DetailKind) string {
	switch k {
	case DetailSummary:
		return "Summary"
	case DetailContent:
		return "Content"
	case DetailReason:
		return "Reason"
	}
	return ""
}
