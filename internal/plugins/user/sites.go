// Package user contains the built-in site plugins.
package user

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pders01/newsroom/internal/plugins"
)

// NewDefaultRegistry returns a registry with every built-in plugin.
func NewDefaultRegistry(timeout time.Duration) *plugins.Registry {
	r := plugins.NewRegistry(timeout)
	r.Register(NewRedditPlugin())
	r.Register(NewGitHubPlugin())
	return r
}

// RedditPlugin turns subreddit pages into their .rss endpoint.
type RedditPlugin struct{}

func NewRedditPlugin() *RedditPlugin {
	return &RedditPlugin{}
}

func (p *RedditPlugin) Name() string {
	return "reddit"
}

func (p *RedditPlugin) CanHandle(url string) bool {
	return strings.Contains(url, "://www.reddit.com/r/") ||
		strings.Contains(url, "://reddit.com/r/") ||
		strings.Contains(url, "://old.reddit.com/r/")
}

func (p *RedditPlugin) Priority() int {
	return 50
}

func (p *RedditPlugin) EnhanceFeed(_ context.Context, rawURL string, _ *http.Client) (*plugins.FeedInfo, error) {
	parts := strings.SplitN(rawURL, "/r/", 2)
	subreddit := strings.Split(parts[1], "/")[0]
	subreddit = strings.TrimSuffix(subreddit, ".rss")
	if subreddit == "" {
		return nil, fmt.Errorf("reddit: no subreddit in %q", rawURL)
	}

	feedURL := strings.TrimSuffix(rawURL, "/")
	if !strings.HasSuffix(feedURL, ".rss") {
		feedURL += ".rss"
	}

	return &plugins.FeedInfo{
		OriginalURL: rawURL,
		FeedURL:     feedURL,
		Title:       "Reddit - r/" + subreddit,
		Description: "Posts from r/" + subreddit,
		Metadata: map[string]string{
			"plugin":    "reddit",
			"subreddit": subreddit,
		},
	}, nil
}

// GitHubPlugin turns repository pages into their releases Atom feed.
type GitHubPlugin struct{}

func NewGitHubPlugin() *GitHubPlugin {
	return &GitHubPlugin{}
}

func (p *GitHubPlugin) Name() string {
	return "github"
}

func (p *GitHubPlugin) CanHandle(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Hostname(), "github.com") {
		return false
	}
	return len(pathParts(u.Path)) >= 2
}

func (p *GitHubPlugin) Priority() int {
	return 40
}

func pathParts(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (p *GitHubPlugin) EnhanceFeed(_ context.Context, raw string, _ *http.Client) (*plugins.FeedInfo, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("github: %w", err)
	}
	parts := pathParts(u.Path)
	owner, repo := parts[0], strings.TrimSuffix(parts[1], ".git")

	feed := "releases"
	if len(parts) >= 3 {
		switch parts[2] {
		case "tags":
			feed = "tags"
		case "commits":
			feed = "commits"
		}
	}
	if strings.HasSuffix(u.Path, ".atom") {
		return &plugins.FeedInfo{OriginalURL: raw, FeedURL: raw, Title: owner + "/" + repo}, nil
	}

	return &plugins.FeedInfo{
		OriginalURL: raw,
		FeedURL:     fmt.Sprintf("https://github.com/%s/%s/%s.atom", owner, repo, feed),
		Title:       fmt.Sprintf("GitHub - %s/%s %s", owner, repo, feed),
		Metadata: map[string]string{
			"plugin": "github",
			"owner":  owner,
			"repo":   repo,
			"feed":   feed,
		},
	}, nil
}
