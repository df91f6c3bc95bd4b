package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	Primary   = lipgloss.Color("#22d3ee")
	Secondary = lipgloss.Color("#7C3AED")
	Success   = lipgloss.Color("#10B981")
	Warning   = lipgloss.Color("#F59E0B")
	Error     = lipgloss.Color("#EF4444")
	Muted     = lipgloss.Color("#6B7280")
)

var (
	SelfStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	PeerStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)

	BannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(0, 2)
)

// shortID keeps session ids readable in a terminal.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ChatLine renders one chat message. Own messages are shown as "me".
func ChatLine(at time.Time, self bool, from, text string) string {
	name := PeerStyle.Render(shortID(from))
	if self {
		name = SelfStyle.Render("me")
	}
	return fmt.Sprintf("%s %s: %s", MutedStyle.Render(at.Format("15:04:05")), name, text)
}

func Banner(room, mode, server string) string {
	return BannerStyle.Render(fmt.Sprintf("room %s · %s call\n%s\n%s",
		SelfStyle.Render(room), mode, MutedStyle.Render(server),
		MutedStyle.Render("/end  /start  /peers  /quit")))
}

func PrintError(msg string) {
	fmt.Printf("%s %s\n", ErrorStyle.Render("✗"), ErrorStyle.Render(msg))
}

func PrintWarning(msg string) {
	fmt.Printf("%s %s\n", WarningStyle.Render("!"), WarningStyle.Render(msg))
}

func PrintSuccess(msg string) {
	fmt.Printf("%s %s\n", SuccessStyle.Render("✓"), msg)
}

func PrintInfo(msg string) {
	fmt.Printf("%s %s\n", MutedStyle.Render("·"), msg)
}
