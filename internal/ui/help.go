package ui

import (
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"
)

// HelpModel renders a centered help overlay listing keyboard shortcuts.
type HelpModel struct {
	visible       bool
	width, height int
	rendered      string
}

// NewHelpModel creates a hidden help model.
func NewHelpModel() HelpModel {
	return HelpModel{rendered: helpText}
}

// IsVisible reports whether the help overlay is showing.
func (h HelpModel) IsVisible() bool {
	return h.visible
}

// Toggle flips the help overlay visibility.
func (h HelpModel) Toggle() HelpModel {
	h.visible = !h.visible
	return h
}

// SetSize updates the terminal dimensions and re-renders the text.
func (h HelpModel) SetSize(w, ht int) HelpModel {
	h.width = w
	h.height = ht

	wrap := w - 10
	if wrap > 72 {
		wrap = 72
	}
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return h
	}
	out, err := r.Render(helpText)
	if err != nil {
		return h
	}
	h.rendered = strings.Trim(out, "\n")
	return h
}

const helpText = `# nickclock

Keeps your Telegram first name in the form **name | HH:MM | day/night**,
updated once a minute.

## General

| Key | Action |
|---|---|
| Ctrl+C | Quit |
| h / F1 | Toggle this help |
| Esc | Close overlay |

## Main screen

| Key | Action |
|---|---|
| a | Toggle auto refresh |
| t | Pick timezone |
| s | Toggle start with system |
| y | Toggle start in tray |
| r | Reload profile |
| L | Log out |
| j / k | Scroll activity |

## Login

Enter the phone number in international format, then the code
Telegram sends you. Accounts with two-step verification are asked
for their password next.

Press h, F1, or Esc to close`

// View renders the help box (without full-screen placement).
// Use BoxOffset to get the X/Y for centering via the Layer API.
func (h HelpModel) View() string {
	if !h.visible || h.width == 0 || h.height == 0 {
		return ""
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		MaxHeight(h.height).
		BorderForegroundBlend(rainbowBlend...)

	return style.Render(h.rendered)
}

// BoxOffset returns the (x, y) needed to center the help box
// within the terminal dimensions.
func (h HelpModel) BoxOffset() (int, int) {
	box := h.View()
	bw := lipgloss.Width(box)
	bh := lipgloss.Height(box)
	x := (h.width - bw) / 2
	y := (h.height - bh) / 2
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return x, y
}
