package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ColorEnv overrides color detection: "always", "never" or "auto".
const ColorEnv = "STUDIO_COLOR"

// ShouldUseColor reports whether stdout output should carry ANSI colors.
// STUDIO_COLOR wins, then NO_COLOR, CLICOLOR_FORCE and CLICOLOR, then TTY
// detection.
func ShouldUseColor() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(ColorEnv))) {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	return IsTerminal(os.Stdout)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Width returns the column count of the terminal on stdout, or fallback
// when stdout is not a terminal or its size is unknown.
func Width(fallback int) int {
	if !IsTerminal(os.Stdout) {
		return fallback
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
