package ui

import (
	"strings"
	"time"

	"charm.land/lipgloss/v2"
)

var (
	// Dark gray background matching the lipgloss example
	statusBarBg = lipgloss.Color("#353533")
	// Bright magenta for the status pill and time highlight
	statusPillBg    = lipgloss.Color("#FF5FAF")
	statusPillBgOff = lipgloss.Color("#6C5098")
	statusErrorBg   = lipgloss.Color("#C0392B")
	// Teal/cyan for the time pill
	statusTimeBg = lipgloss.Color("#6124DF")
)

type statusModel struct {
	text     string
	isError  bool
	running  bool
	timezone string
	userName string
	now      time.Time
	width    int
}

func newStatusModel() statusModel {
	return statusModel{
		text: "Starting...",
		now:  time.Now(),
	}
}

// SetWidth sets the full terminal width for the status bar.
func (m statusModel) SetWidth(w int) statusModel {
	m.width = w
	return m
}

// View renders a full-width status bar:
// [REFRESH pill] [status text] ... [user name] [timezone/time pill]
func (m statusModel) View() string {
	pillBg := statusPillBgOff
	pillText := "PAUSED"
	if m.running {
		pillBg = statusPillBg
		pillText = "LIVE"
	}
	pillStyle := lipgloss.NewStyle().
		Background(pillBg).
		Foreground(lipgloss.Color("#FFFFFF")).
		Bold(true).
		Padding(0, 1)
	pill := pillStyle.Render(pillText)

	textBg := statusBarBg
	if m.isError {
		textBg = statusErrorBg
	}
	textStyle := lipgloss.NewStyle().
		Background(textBg).
		Foreground(lipgloss.Color("#FFFFFF")).
		Padding(0, 1)
	text := textStyle.Render(m.text)

	timeStyle := lipgloss.NewStyle().
		Background(statusTimeBg).
		Foreground(lipgloss.Color("#FFFFFF")).
		Bold(true).
		Padding(0, 1)
	timePill := timeStyle.Render(strings.TrimSpace(m.timezone + " " + m.now.Format("15:04")))

	// User name pill
	userStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("#7B5EA7")).
		Foreground(lipgloss.Color("#FFFFFF")).
		Bold(true).
		Padding(0, 1)
	userPill := ""
	if m.userName != "" {
		userPill = userStyle.Render(m.userName)
	}

	left := pill + text
	right := userPill + timePill

	// Fill gap between left and right
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	filler := lipgloss.NewStyle().
		Background(statusBarBg).
		Render(strings.Repeat(" ", gap))

	barStyle := lipgloss.NewStyle().
		Background(statusBarBg).
		Width(m.width)

	return barStyle.Render(left + filler + right)
}
