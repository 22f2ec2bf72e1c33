// Package media opens article links with the desktop's URL handler.
package media

import (
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/debuglog"
)

// Runner starts a detached command.
type Runner func(name string, args ...string) error

type Launcher struct {
	opener string
	run    Runner
}

type Option func(*Launcher)

// WithRunner replaces process execution, for tests.
func WithRunner(r Runner) Option {
	return func(l *Launcher) { l.run = r }
}

func NewLauncher(cfg *config.Config, opts ...Option) *Launcher {
	l := &Launcher{opener: strings.TrimSpace(cfg.UI.Opener), run: startDetached}
	if l.opener == "" {
		l.opener = config.DefaultOpener()
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OpenURL opens an http or https link. Article links come from feeds, so
// anything else is refused rather than handed to the opener.
func (l *Launcher) OpenURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("article has no link")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("refusing to open %q", raw)
	}

	name, args := l.command(u.String())
	debuglog.With("opener", name).Debugf("media: opening %s", u.String())
	if err := l.run(name, args...); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	return nil
}

func (l *Launcher) command(target string) (string, []string) {
	fields := strings.Fields(l.opener)
	if fields[0] == "start" {
		// start is a cmd.exe builtin; the empty argument is the window title
		return "cmd", []string{"/c", "start", "", target}
	}
	return fields[0], append(fields[1:], target)
}

func startDetached(name string, args ...string) error {
	if _, err := exec.LookPath(name); err != nil {
		return err
	}
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}
