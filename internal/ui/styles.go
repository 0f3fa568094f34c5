// Package ui renders terminal output for the seatcheck CLI.
package ui

import "fmt"

// ANSI256 color codes.
const (
	colorAccent  = 74  // blue
	colorCmd     = 250 // light gray
	colorMuted   = 245 // medium gray
	colorPresent = 114 // green
	colorLate    = 179 // amber
	colorAbsent  = 203 // red
	colorPending = 117 // light blue
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderError returns s in the absent (red) color.
func RenderError(s string) string { return paint(colorAbsent, s) }

// RenderLabel colors a student display label by outcome. Unknown labels,
// including "Unmarked", are muted.
func RenderLabel(label string) string {
	switch label {
	case "Present":
		return paint(colorPresent, label)
	case "Late":
		return paint(colorLate, label)
	case "Absent":
		return paint(colorAbsent, label)
	case "Pending":
		return paint(colorPending, label)
	default:
		return RenderMuted(label)
	}
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
