package ui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Title   lipgloss.Style
	Body    lipgloss.Style
	Pass    lipgloss.Style
	Fail    lipgloss.Style
	Notice  lipgloss.Style
	Muted   lipgloss.Style
	Accent  lipgloss.Style
	Danger  lipgloss.Style
	Reveal  lipgloss.Style
	Prompt  lipgloss.Style
	Options lipgloss.Style
}

// ThemeFor builds the styles against the color profile of w, so output to a
// pipe or file carries no escape codes.
func ThemeFor(w io.Writer, variant string) Theme {
	r := lipgloss.NewRenderer(w)
	switch variant {
	case "plain":
		plain := r.NewStyle()
		return Theme{
			Title: plain, Body: plain, Pass: plain, Fail: plain, Notice: plain, Muted: plain,
			Accent: plain, Danger: plain, Reveal: plain, Prompt: plain, Options: plain,
		}
	default:
		return saturnTheme(r)
	}
}

func saturnTheme(r *lipgloss.Renderer) Theme {
	pink := lipgloss.Color("#FF6F91")
	violet := lipgloss.Color("#B28DFF")
	mint := lipgloss.Color("#67F0A8")
	amber := lipgloss.Color("#FFC857")
	red := lipgloss.Color("#FF4D4D")
	slate := lipgloss.Color("#8A9BBF")

	return Theme{
		Title:   r.NewStyle().Foreground(pink).Bold(true),
		Body:    r.NewStyle(),
		Pass:    r.NewStyle().Foreground(mint).Bold(true),
		Fail:    r.NewStyle().Foreground(red),
		Notice:  r.NewStyle().Foreground(amber),
		Muted:   r.NewStyle().Foreground(slate),
		Accent:  r.NewStyle().Foreground(violet),
		Danger:  r.NewStyle().Foreground(red).Bold(true),
		Reveal:  r.NewStyle().Foreground(pink).Border(lipgloss.RoundedBorder()).BorderForeground(violet).Padding(1, 3),
		Prompt:  r.NewStyle().Foreground(violet).Bold(true),
		Options: r.NewStyle().PaddingLeft(2),
	}
}
