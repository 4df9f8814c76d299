package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// ColorEnabled reports whether stdout should get ANSI styling. NO_COLOR,
// TERM=dumb and non-terminal output all disable it.
func ColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// TerminalWidth returns the width of stdout, or fallback when it is not a
// terminal.
func TerminalWidth(fallback int) int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return fallback
	}
	return width
}

// Styles are the lipgloss styles used in CLI output.
type Styles struct {
	ID       lipgloss.Style
	Heading  lipgloss.Style
	Label    lipgloss.Style
	Muted    lipgloss.Style
	Done     lipgloss.Style
	Running  lipgloss.Style
	Overdue  lipgloss.Style
	Warning  lipgloss.Style
	Duration lipgloss.Style
}

// NewStyles returns styled output when color is true and plain pass-through
// styles otherwise.
func NewStyles(color bool) Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return Styles{
			ID: plain, Heading: plain, Label: plain, Muted: plain, Done: plain,
			Running: plain, Overdue: plain, Warning: plain, Duration: plain,
		}
	}
	return Styles{
		ID:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		Heading:  lipgloss.NewStyle().Bold(true).Underline(true),
		Label:    lipgloss.NewStyle().Bold(true),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		Done:     lipgloss.NewStyle().Strikethrough(true).Foreground(lipgloss.Color("244")),
		Running:  lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		Overdue:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		Duration: lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
	}
}
