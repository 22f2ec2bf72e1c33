package feed

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Summary is what a preflight learns about a feed.
type Summary struct {
	Title  string
	Format string // rss, atom or json
	Items  int
	Latest time.Time
	// Sample holds the first few item titles.
	Sample []string
}

const sampleSize = 3

type Parser struct {
	parser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		parser: gofeed.NewParser(),
	}
}

func (p *Parser) Parse(reader io.Reader) (*Summary, error) {
	feed, err := p.parser.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	s := &Summary{
		Title:  strings.TrimSpace(feed.Title),
		Format: feed.FeedType,
		Items:  len(feed.Items),
	}
	for _, item := range feed.Items {
		if t := itemTime(item); t.After(s.Latest) {
			s.Latest = t
		}
		if len(s.Sample) < sampleSize {
			if title := strings.TrimSpace(item.Title); title != "" {
				s.Sample = append(s.Sample, title)
			}
		}
	}
	return s, nil
}

func itemTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}
