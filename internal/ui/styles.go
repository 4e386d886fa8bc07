package ui

import "fmt"

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorActive = 114 // green
	colorError  = 203 // red
	colorMuted  = 245 // medium gray
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color. Used for column headers
// and list titles.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderActive returns s in the active (green) color. Used for selected
// filters and the current sort.
func RenderActive(s string) string { return paint(colorActive, s) }

// RenderError returns s in the error (red) color.
func RenderError(s string) string { return paint(colorError, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

// Init disables color when stdout should not receive ANSI escapes.
func Init() {
	if !ShouldUseColor() {
		ForceNoColor()
	}
}
