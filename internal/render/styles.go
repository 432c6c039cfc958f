package render

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles holds the lipgloss styles used for terminal output.
type Styles struct {
	Title   lipgloss.Style
	Key     lipgloss.Style
	Value   lipgloss.Style
	Dim     lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// PlainStyles renders text unchanged. Used when output is not a terminal.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Title:   plain,
		Key:     plain,
		Value:   plain,
		Dim:     plain,
		Success: plain,
		Warning: plain,
		Error:   plain,
	}
}

// ColorStyles returns the terminal styles, picking a light palette when
// COLORFGBG reports a light background.
func ColorStyles() Styles {
	accent, success, warning, failure, dim, primary := "#f97316", "#22c55e", "#eab308", "#ef4444", "#5a5a70", "#e0e0e8"
	if lightBackground() {
		accent, success, warning, failure, dim, primary = "#c2410c", "#15803d", "#a16207", "#b91c1c", "#4b5563", "#0f172a"
	}

	return Styles{
		Title:   lipgloss.NewStyle().Foreground(lipgloss.Color(accent)).Bold(true),
		Key:     lipgloss.NewStyle().Foreground(lipgloss.Color(dim)),
		Value:   lipgloss.NewStyle().Foreground(lipgloss.Color(primary)).Bold(true),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(dim)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(success)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(warning)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(failure)).Bold(true),
	}
}

// lightBackground reads the "fg;bg" COLORFGBG hint.
func lightBackground() bool {
	parts := strings.Split(os.Getenv("COLORFGBG"), ";")
	if len(parts) < 2 {
		return false
	}
	bg := parts[len(parts)-1]
	return bg == "15" || bg == "7"
}
