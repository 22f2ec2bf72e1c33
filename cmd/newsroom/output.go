package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/indent"

	"github.com/pders01/newsroom/internal/rows"
)

// outputWidth is the wrap width of plain-text output.
const outputWidth = 96

// column is one column of a plain-text table. A zero width takes the rest
// of the line.
type column struct {
	title string
	width int
}

func cell(s string, width int) string {
	s = rows.SafeLine(s)
	if width <= 0 {
		return s
	}
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}

func printTable(w io.Writer, cols []column, lines [][]string) {
	head := make([]string, len(cols))
	for i, c := range cols {
		head[i] = cell(strings.ToUpper(c.title), c.width)
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(head, "  "), " "))
	for _, line := range lines {
		out := make([]string, len(cols))
		for i, c := range cols {
			v := ""
			if i < len(line) {
				v = line[i]
			}
			out[i] = cell(v, c.width)
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(out, "  "), " "))
	}
}

func detailBlock(label, text string) string {
	body := rows.Wrap(label+rows.SafeText(text), outputWidth-4)
	return indent.String(body, 4)
}

// printRowSets writes articles as blocks of a title line, a meta line and
// the wrapped detail rows. Content rows are printed only when withContent
// is set.
func printRowSets(w io.Writer, sets []rows.RowSet, withContent bool) {
	for i, rs := range sets {
		if i > 0 {
			fmt.Fprintln(w)
		}
		m := rs.Main
		marker := "○"
		if m.IsRelevant {
			marker = "●"
		}
		title := rows.SafeLine(m.Title)
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "%s [%d] %s\n", marker, m.ID, runewidth.Truncate(title, outputWidth-10, "…"))

		meta := []string{rows.SafeLine(m.Source), m.Published, "relevance " + m.Relevance}
		if m.Similarity != "" {
			meta = append(meta, "similarity "+m.Similarity)
		}
		fmt.Fprintln(w, indent.String(strings.Join(meta, " • "), 4))
		if link := rows.SafeLine(m.Link); link != "" {
			fmt.Fprintln(w, indent.String(link, 4))
		}

		for _, d := range rs.Details {
			switch d.Kind {
			case rows.DetailSummary:
				fmt.Fprintln(w, detailBlock("", d.Text))
			case rows.DetailReason:
				fmt.Fprintln(w, detailBlock("Reason: ", d.Text))
			case rows.DetailContent:
				if withContent {
					md := rows.Wrap(rows.ContentMarkdown(d.Text), outputWidth-4)
					fmt.Fprintln(w, indent.String(md, 4))
				}
			}
		}
	}
}
