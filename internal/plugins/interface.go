// Package plugins rewrites well-known site URLs into their feed endpoints
// before a job is submitted, so users can paste a subreddit or repository
// page instead of hunting for the RSS link.
package plugins

import (
	"context"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/pders01/newsroom/internal/debuglog"
)

// FeedInfo is what a plugin knows about a feed URL.
type FeedInfo struct {
	OriginalURL string
	// FeedURL is the endpoint submitted to the pipeline.
	FeedURL string
	// Title for display, e.g. "Reddit - r/golang"
	Title       string
	Description string
	Metadata    map[string]string
}

// Plugin handles the URLs of one site.
type Plugin interface {
	Name() string
	CanHandle(url string) bool
	// EnhanceFeed resolves url. Plugins may use client for lookups.
	EnhanceFeed(ctx context.Context, url string, client *http.Client) (*FeedInfo, error)
	// Priority breaks ties between plugins for the same URL; higher wins.
	Priority() int
}

// Registry holds plugins ordered by descending priority. It is safe for
// concurrent use, which the feed checker relies on.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	client  *http.Client
}

func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{client: &http.Client{Timeout: timeout}}
}

// Register adds p. Plugins of equal priority keep registration order.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := sort.Search(len(r.plugins), func(i int) bool {
		return r.plugins[i].Priority() < p.Priority()
	})
	r.plugins = slices.Insert(r.plugins, i, p)
}

// FindPlugin returns the highest priority plugin that can handle url.
func (r *Registry) FindPlugin(url string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.plugins {
		if p.CanHandle(url) {
			return p
		}
	}
	return nil
}

// EnhanceFeed resolves url with the best plugin. URLs no plugin handles are
// returned unchanged.
func (r *Registry) EnhanceFeed(ctx context.Context, url string) (*FeedInfo, error) {
	p := r.FindPlugin(url)
	if p == nil {
		return &FeedInfo{OriginalURL: url, FeedURL: url, Metadata: map[string]string{}}, nil
	}
	return p.EnhanceFeed(ctx, url, r.client)
}

// ResolveAll maps every URL to its feed endpoint. A plugin failure keeps
// the URL as entered.
func (r *Registry) ResolveAll(ctx context.Context, urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		info, err := r.EnhanceFeed(ctx, u)
		if err != nil || info == nil || info.FeedURL == "" {
			if err != nil {
				debuglog.With("url", u).Warnf("plugins: %v", err)
			}
			out = append(out, u)
			continue
		}
		if info.FeedURL != u {
			debuglog.With("from", u, "to", info.FeedURL).Debugf("plugins: rewrote feed URL")
		}
		out = append(out, info.FeedURL)
	}
	return out
}

// ListPlugins returns the plugins in lookup order.
func (r *Registry) ListPlugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.plugins)
}
