package highlight

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/ws/main.go", "go"},
		{"include/x.h", "c"},
		{"web/App.tsx", "tsx"},
		{"notes.unknownext", ""},
	}
	for _, tt := range tests {
		if got := DetectLanguage(tt.path); got != tt.want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestLine(t *testing.T) {
	src := `	return fmt.Sprintf("%d", n)`
	got := Line(src, "/ws/a.go", "vulcan", "")
	if got == src {
		t.Fatal("go line was not highlighted")
	}
	if stripped := ansi.Strip(got); stripped != src {
		t.Errorf("highlighting changed the text: %q", stripped)
	}
	if strings.Contains(got, "\x1b[48;2;") {
		t.Error("background injected without bgHex")
	}

	if got := Line(src, "/ws/a.unknownext", "vulcan", ""); got != src {
		t.Errorf("unknown language altered: %q", got)
	}
}

func TestHighlight_Background(t *testing.T) {
	got := Highlight("x := 1", "go", "vulcan", "#102030")
	if !strings.HasPrefix(got, "\x1b[48;2;16;32;48m") {
		t.Errorf("missing background prefix: %q", got)
	}
}

func TestThemePalette(t *testing.T) {
	p := ThemePalette("vulcan")
	if p != ThemePalette("vulcan") {
		t.Error("palette not deterministic")
	}
	for name, hex := range map[string]string{
		"Bg": p.Bg, "Fg": p.Fg, "Selection": p.Selection,
		"Dim": p.Dim, "Muted": p.Muted, "Accent": p.Accent, "Error": p.Error,
	} {
		if len(hex) != 7 || hex[0] != '#' {
			t.Errorf("%s = %q, want #rrggbb", name, hex)
		}
	}
}

func TestLerpHex(t *testing.T) {
	if got := lerpHex("#000000", "#ffffff", 0.5); got != "#808080" {
		t.Errorf("lerpHex midpoint = %q", got)
	}
	if got := lerpHex("#102030", "#102030", 0.3); got != "#102030" {
		t.Errorf("lerpHex identity = %q", got)
	}
}
