// Package feed checks feed URLs before they are handed to the pipeline:
// each URL is validated, fetched once and parsed with gofeed so broken
// feeds show up before a run is started.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/debuglog"
	"github.com/pders01/newsroom/internal/plugins"
	"github.com/pders01/newsroom/internal/validation"
)

// DefaultConcurrency bounds parallel fetches in CheckAll.
const DefaultConcurrency = 4

// Result is the outcome for one entered URL.
type Result struct {
	Input string
	// URL is the normalized feed endpoint that was fetched.
	URL     string
	Summary *Summary
	Elapsed time.Duration
	Err     error
}

func (r Result) OK() bool { return r.Err == nil }

type Checker struct {
	fetcher     *Fetcher
	parser      *Parser
	validator   *validation.FeedURLValidator
	registry    *plugins.Registry
	concurrency int
}

type Option func(*Checker)

func WithRegistry(r *plugins.Registry) Option {
	return func(c *Checker) { c.registry = r }
}

func WithValidator(v *validation.FeedURLValidator) Option {
	return func(c *Checker) { c.validator = v }
}

func WithConcurrency(n int) Option {
	return func(c *Checker) { c.concurrency = n }
}

func NewChecker(cfg *config.Config, opts ...Option) *Checker {
	c := &Checker{
		fetcher:     NewFetcher(cfg.Backend.UserAgent, cfg.Backend.HTTPTimeout),
		parser:      NewParser(),
		validator:   validation.NewFeedURLValidator(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.concurrency < 1 {
		c.concurrency = 1
	}
	return c
}

// Check validates, fetches and parses one URL.
func (c *Checker) Check(ctx context.Context, input string) Result {
	res := Result{Input: input}
	target := input
	if c.registry != nil {
		if info, err := c.registry.EnhanceFeed(ctx, input); err == nil && info != nil && info.FeedURL != "" {
			target = info.FeedURL
		}
	}

	normalized, err := c.validator.ValidateAndNormalize(target)
	if err != nil {
		res.Err = err
		return res
	}
	res.URL = normalized

	start := time.Now()
	res.Summary, res.Err = c.fetch(ctx, normalized)
	res.Elapsed = time.Since(start)
	return res
}

func (c *Checker) fetch(ctx context.Context, url string) (*Summary, error) {
	resp, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	summary, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, err
	}
	if summary.Items == 0 {
		return summary, errors.New("feed has no items")
	}
	return summary, nil
}

// CheckAll checks every URL, a few at a time. Results keep the input
// order; a cancelled ctx marks the remaining URLs as failed.
func (c *Checker) CheckAll(ctx context.Context, inputs []string) []Result {
	results := make([]Result, len(inputs))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Input: in, Err: err}
				return nil
			}
			results[i] = c.Check(ctx, in)
			if err := results[i].Err; err != nil {
				debuglog.With("url", in).Warnf("feed: check failed: %v", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Failed returns the results with an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Input, r.Err)
	}
	return fmt.Sprintf("%s: %s (%d items)", r.URL, r.Summary.Title, r.Summary.Items)
}
