package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedditPlugin_CanHandle(t *testing.T) {
	plugin := NewRedditPlugin()

	tests := []struct {
		name     string
		url      string
		expected bool
	}{
		{"subreddit", "https://www.reddit.com/r/golang", true},
		{"without www", "https://reddit.com/r/programming", true},
		{"old reddit", "https://old.reddit.com/r/golang/", true},
		{"user page", "https://www.reddit.com/user/someuser", false},
		{"other site", "https://example.com/feed", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, plugin.CanHandle(tt.url))
		})
	}
}

func TestRedditPlugin_EnhanceFeed(t *testing.T) {
	plugin := NewRedditPlugin()
	ctx := context.Background()

	info, err := plugin.EnhanceFeed(ctx, "https://www.reddit.com/r/golang/", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://www.reddit.com/r/golang.rss", info.FeedURL)
	assert.Equal(t, "Reddit - r/golang", info.Title)
	assert.Equal(t, "golang", info.Metadata["subreddit"])

	info, err = plugin.EnhanceFeed(ctx, "https://www.reddit.com/r/golang.rss", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://www.reddit.com/r/golang.rss", info.FeedURL, "already a feed")

	_, err = plugin.EnhanceFeed(ctx, "https://www.reddit.com/r/", nil)
	assert.Error(t, err)
}

func TestGitHubPlugin(t *testing.T) {
	plugin := NewGitHubPlugin()
	ctx := context.Background()

	assert.True(t, plugin.CanHandle("https://github.com/charmbracelet/bubbletea"))
	assert.False(t, plugin.CanHandle("https://github.com/charmbracelet"))
	assert.False(t, plugin.CanHandle("https://gitlab.com/a/b"))

	tests := []struct {
		in, want string
	}{
		{"https://github.com/charmbracelet/bubbletea", "https://github.com/charmbracelet/bubbletea/releases.atom"},
		{"https://github.com/spf13/cobra.git", "https://github.com/spf13/cobra/releases.atom"},
		{"https://github.com/spf13/cobra/tags", "https://github.com/spf13/cobra/tags.atom"},
		{"https://github.com/spf13/cobra/commits/main", "https://github.com/spf13/cobra/commits.atom"},
		{"https://github.com/spf13/cobra/releases.atom", "https://github.com/spf13/cobra/releases.atom"},
	}
	for _, tt := range tests {
		info, err := plugin.EnhanceFeed(ctx, tt.in, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want, info.FeedURL, tt.in)
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry(time.Second)
	got := r.ResolveAll(context.Background(), []string{
		"https://reddit.com/r/golang",
		"https://github.com/etcd-io/bbolt",
		"https://example.com/rss",
	})
	assert.Equal(t, []string{
		"https://reddit.com/r/golang.rss",
		"https://github.com/etcd-io/bbolt/releases.atom",
		"https://example.com/rss",
	}, got)
}
