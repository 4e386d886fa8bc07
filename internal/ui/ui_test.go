package ui

import (
	"os"
	"testing"
)

func TestRender(t *testing.T) {
	defer func(v bool) { noColor = v }(noColor)

	noColor = false
	if got, want := RenderActive("lead"), "\x1b[38;5;114mlead\x1b[0m"; got != want {
		t.Errorf("RenderActive = %q, want %q", got, want)
	}

	ForceNoColor()
	for _, render := range []func(string) string{RenderAccent, RenderActive, RenderError, RenderMuted} {
		if got := render("x"); got != "x" {
			t.Errorf("render without color = %q, want plain", got)
		}
	}
}

func TestShouldUseColor(t *testing.T) {
	for _, tc := range []struct {
		name, noColor, force, clicolor string
		want                           bool
	}{
		{"NoColorWins", "1", "1", "", false},
		{"Forced", "", "1", "", true},
		{"ClicolorOff", "", "", "0", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(ColorEnv, "")
			t.Setenv("NO_COLOR", tc.noColor)
			t.Setenv("CLICOLOR_FORCE", tc.force)
			t.Setenv("CLICOLOR", tc.clicolor)
			if got := ShouldUseColor(); got != tc.want {
				t.Errorf("ShouldUseColor() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestShouldUseColor_Override(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	t.Setenv(ColorEnv, "always")
	if !ShouldUseColor() {
		t.Error("STUDIO_COLOR=always should win over NO_COLOR")
	}

	t.Setenv("NO_COLOR", "")
	t.Setenv("CLICOLOR_FORCE", "1")
	t.Setenv(ColorEnv, "never")
	if ShouldUseColor() {
		t.Error("STUDIO_COLOR=never should win over CLICOLOR_FORCE")
	}
}

func TestWidth_NotTerminal(t *testing.T) {
	if IsTerminal(os.Stdout) {
		t.Skip("stdout is a terminal")
	}
	if got := Width(99); got != 99 {
		t.Errorf("Width = %d, want fallback 99", got)
	}
	if IsTerminal(nil) {
		t.Error("IsTerminal(nil) = true")
	}
}
