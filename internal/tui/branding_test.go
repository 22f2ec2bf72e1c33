package tui

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/newsroom/internal/config"
)

func TestShowBanner(t *testing.T) {
	// Capture stdout
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		io.Copy(&buf, r)
		outC <- buf.String()
	}()

	ShowBanner("1.0.0-test")

	w.Close()
	os.Stdout = old
	out := <-outC

	if !strings.Contains(out, "RSS classification pipeline client") {
		t.Errorf("Expected banner to contain the tagline, got: %s", out)
	}
	if !strings.Contains(out, "╔") || !strings.Contains(out, "╝") {
		t.Errorf("Expected banner to contain border characters, got: %s", out)
	}
	if !strings.Contains(out, "v1.0.0-test") {
		t.Errorf("Expected banner to contain version 'v1.0.0-test', got: %s", out)
	}
}

func TestBannerVersion(t *testing.T) {
	tests := []struct {
		version string
		want    string
		absent  string
	}{
		{"v2.1.0", "v2.1.0", "vv2.1.0"},
		{"2.1.0", "v2.1.0", ""},
		{"dev", "pipeline client", "dev"},
		{"", "pipeline client", " v"},
	}
	for _, tt := range tests {
		out := Banner(tt.version)
		if !strings.Contains(out, tt.want) {
			t.Errorf("Banner(%q) should contain %q, got: %s", tt.version, tt.want, out)
		}
		if tt.absent != "" && strings.Contains(out, tt.absent) {
			t.Errorf("Banner(%q) should not contain %q, got: %s", tt.version, tt.absent, out)
		}
	}
}

func TestGetCompactBanner(t *testing.T) {
	message := "Test message"
	result := GetCompactBanner(message)

	if !strings.Contains(result, message) {
		t.Errorf("Expected compact banner to contain '%s', got: %s", message, result)
	}
	if !strings.Contains(result, "█▄ █") {
		t.Errorf("Expected compact banner to contain logo elements, got: %s", result)
	}
}

func TestGetWelcomeMessage(t *testing.T) {
	result := GetWelcomeMessage("ctrl+n")

	if !strings.Contains(result, "Press ctrl+n to start a pipeline run") {
		t.Errorf("Expected welcome message to contain correct instructions, got: %s", result)
	}
}

func TestLogoConstants(t *testing.T) {
	if len(LogoLines) != 2 {
		t.Errorf("Expected 2 logo lines, got %d", len(LogoLines))
	}
	if len(BannerColors) == 0 {
		t.Error("Expected banner colors")
	}
	if !strings.HasPrefix(CompactLogo, AppName) {
		t.Errorf("Expected compact logo to start with %q, got %q", AppName, CompactLogo)
	}
}

func TestApplyColors(t *testing.T) {
	orig := PrimaryColor
	origErr := ErrorColor
	t.Cleanup(func() {
		PrimaryColor = orig
		ErrorColor = origErr
		buildStyles()
	})

	ApplyColors(config.UIColors{Primary: "#123456"})
	if PrimaryColor != lipgloss.Color("#123456") {
		t.Errorf("Expected primary color to be overridden, got %v", PrimaryColor)
	}
	if ErrorColor != origErr {
		t.Errorf("Expected blank colors to keep defaults, got %v", ErrorColor)
	}
}
