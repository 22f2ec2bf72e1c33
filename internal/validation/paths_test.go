package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOutputFile(t *testing.T) {
	tmp := t.TempDir()
	c := NewPathChecker()

	tests := []struct {
		name     string
		input    string
		errorMsg string
	}{
		{name: "absolute path", input: filepath.Join(tmp, "out", "export.html")},
		{name: "empty path", input: "", errorMsg: "path cannot be empty"},
		{name: "null byte", input: filepath.Join(tmp, "a\x00.html"), errorMsg: "null bytes"},
		{name: "control character", input: filepath.Join(tmp, "a\x01.html"), errorMsg: "control characters"},
		{name: "traversal", input: "../../etc/passwd", errorMsg: "directory traversal"},
		{name: "bad tilde", input: "~root/x", errorMsg: "invalid tilde"},
		{name: "directory", input: tmp, errorMsg: "is a directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.OutputFile(tt.input)
			if tt.errorMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
					t.Fatalf("OutputFile(%q) error = %v, want %q", tt.input, err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("OutputFile(%q) unexpected error: %v", tt.input, err)
			}
			if !filepath.IsAbs(got) {
				t.Errorf("OutputFile(%q) = %q, want absolute", tt.input, got)
			}
			if _, err := os.Stat(filepath.Dir(got)); err != nil {
				t.Errorf("parent directory not created: %v", err)
			}
		})
	}
}

func TestOutputFileBaseDirs(t *testing.T) {
	allowed := t.TempDir()
	other := t.TempDir()
	c := NewPathChecker(allowed)

	if _, err := c.OutputFile(filepath.Join(allowed, "x.html")); err != nil {
		t.Errorf("path inside base dir rejected: %v", err)
	}
	if _, err := c.OutputFile(filepath.Join(other, "x.html")); err == nil {
		t.Error("path outside base dir accepted")
	}
}

func TestSessionDBDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := NewPathChecker().SessionDB("")
	if err != nil {
		t.Fatalf("SessionDB: %v", err)
	}
	want := filepath.Join(home, ".newsroom", "session.db")
	if got != want {
		t.Errorf("SessionDB(\"\") = %q, want %q", got, want)
	}
}

func TestTildeExpansion(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := NewPathChecker().OutputFile("~/exports/run.html")
	if err != nil {
		t.Fatalf("OutputFile: %v", err)
	}
	if got != filepath.Join(home, "exports", "run.html") {
		t.Errorf("OutputFile(~/exports/run.html) = %q", got)
	}
}
