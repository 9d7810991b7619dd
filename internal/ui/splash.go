package ui

import "charm.land/lipgloss/v2"

const splashArt = `
       _      _          _            _
 _ __ (_) ___| | __  ___| | ___   ___| | __
| '_ \| |/ __| |/ / / __| |/ _ \ / __| |/ /
| | | | | (__|   < | (__| | (_) | (__|   <
|_| |_|_|\___|_|\_\ \___|_|\___/ \___|_|\_\
`

// splashHold is something the splash waits for before it goes away.
type splashHold uint8

const (
	holdMinDuration splashHold = 1 << iota
	holdBoot
)

// SplashModel covers the screen while the stored session is resumed. It is
// removed once every hold is released.
type SplashModel struct {
	holds         splashHold
	width, height int
}

func NewSplashModel() SplashModel {
	return SplashModel{holds: holdMinDuration | holdBoot}
}

func (s SplashModel) SetSize(w, h int) SplashModel {
	s.width = w
	s.height = h
	return s
}

func (s SplashModel) IsVisible() bool {
	return s.holds != 0
}

func (s SplashModel) release(h splashHold) SplashModel {
	s.holds &^= h
	return s
}

// TimerDone is sent once the splash has been up long enough to read.
func (s SplashModel) TimerDone() SplashModel {
	return s.release(holdMinDuration)
}

// BootDone is sent when the first screen is known.
func (s SplashModel) BootDone() SplashModel {
	return s.release(holdBoot)
}

func (s SplashModel) status() string {
	if s.holds&holdBoot != 0 {
		return "resuming session..."
	}
	return "ready"
}

func (s SplashModel) View() string {
	if !s.IsVisible() || s.width == 0 || s.height == 0 {
		return ""
	}

	body := lipgloss.JoinVertical(lipgloss.Center,
		splashArt,
		titleStyle.Render("your name, on the clock"),
		hintStyle.Render(s.status()),
	)
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(highlightColor).
		Padding(1, 3).
		Render(body)

	return lipgloss.Place(s.width, s.height, lipgloss.Center, lipgloss.Center, box)
}
