package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathChecker validates the files newsroom writes: the session cache and
// exported result pages.
type PathChecker struct {
	// BaseDirs restricts writes to these directories. Empty allows any.
	BaseDirs      []string
	MaxPathLength int
}

// NewPathChecker allows any directory.
func NewPathChecker(baseDirs ...string) *PathChecker {
	return &PathChecker{BaseDirs: baseDirs, MaxPathLength: 4096}
}

// OutputFile validates path as a writable file location and returns its
// cleaned absolute form. The parent directory is created if missing.
func (c *PathChecker) OutputFile(path string) (string, error) {
	clean, err := c.clean(path)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(clean); err == nil && info.IsDir() {
		return "", fmt.Errorf("path is a directory, not a file: %s", clean)
	}
	if err := os.MkdirAll(filepath.Dir(clean), 0o755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}
	return clean, nil
}

// SessionDB resolves the session cache path, falling back to
// ~/.newsroom/session.db.
func (c *PathChecker) SessionDB(path string) (string, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, ".newsroom", "session.db")
	}
	return c.OutputFile(path)
}

func (c *PathChecker) clean(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if c.MaxPathLength > 0 && len(path) > c.MaxPathLength {
		return "", fmt.Errorf("path too long (max %d characters)", c.MaxPathLength)
	}
	for _, r := range path {
		if r == 0 {
			return "", fmt.Errorf("path contains null bytes")
		}
		if r < 32 && r != '\t' {
			return "", fmt.Errorf("path contains control characters")
		}
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return "", fmt.Errorf("directory traversal not allowed")
		}
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	} else if strings.HasPrefix(path, "~") {
		return "", fmt.Errorf("invalid tilde usage")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot make path absolute: %w", err)
	}
	if err := c.within(abs); err != nil {
		return "", err
	}
	return abs, nil
}

func (c *PathChecker) within(abs string) error {
	if len(c.BaseDirs) == 0 {
		return nil
	}
	for _, base := range c.BaseDirs {
		absBase, err := filepath.Abs(base)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absBase, abs)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("path not within allowed directories: %v", c.BaseDirs)
}
