package ui

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/danhigham/nickclock/internal/domain"
)

var daySeparatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

// ActivityModel shows the refresh log in a scrollable viewport.
type ActivityModel struct {
	viewport viewport.Model
	entries  []domain.ActivityEntry
	focused  bool
	width    int
	height   int
	// follow keeps the view pinned to the newest entry until the user
	// scrolls up.
	follow bool
}

func NewActivityModel() ActivityModel {
	return ActivityModel{viewport: viewport.New(), follow: true}
}

func (m ActivityModel) Update(msg tea.Msg) (ActivityModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "j":
			m.viewport.ScrollDown(1)
			m.follow = m.viewport.AtBottom()
			return m, nil
		case "k":
			m.viewport.ScrollUp(1)
			m.follow = false
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	m.follow = m.viewport.AtBottom()
	return m, cmd
}

func (m ActivityModel) View() string {
	contentH := m.height - 2
	if contentH < 0 {
		contentH = 0
	}

	content := truncateHeight(m.viewport.View(), contentH)

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(m.width).
		Height(m.height)
	style = applyBorderColor(style, m.focused)

	return style.Render(content)
}

func (m ActivityModel) SetSize(w, h int) ActivityModel {
	m.width = w
	m.height = h
	// Viewport inner: subtract border (2)
	vpW := w - 2
	vpH := h - 2
	if vpW < 1 {
		vpW = 1
	}
	if vpH < 1 {
		vpH = 1
	}
	m.viewport.SetWidth(vpW)
	m.viewport.SetHeight(vpH)
	return m.renderContent()
}

func (m ActivityModel) SetFocused(f bool) ActivityModel {
	m.focused = f
	return m
}

func (m ActivityModel) SetEntries(entries []domain.ActivityEntry) ActivityModel {
	m.entries = entries
	return m.renderContent()
}

func (m ActivityModel) renderContent() ActivityModel {
	var b strings.Builder
	var currentDate string

	if len(m.entries) == 0 {
		b.WriteString(hintStyle.Render("Nothing published yet."))
	}

	for _, e := range m.entries {
		date := e.Timestamp.Format("January 2, 2006")
		if date != currentDate {
			if currentDate != "" {
				b.WriteString("\n")
			}
			sep := daySeparatorStyle.Render(fmt.Sprintf("───── %s ─────", date))
			b.WriteString(sep + "\n")
			currentDate = date
		}

		ts := timeStyle.Render(e.Timestamp.Format("15:04:05"))
		fmt.Fprintf(&b, "%s %s %s", ts, kindLabel(e.Kind), e.Name)
		if e.Detail != "" {
			fmt.Fprintf(&b, " %s", hintStyle.Render("("+e.Detail+")"))
		}
		b.WriteString("\n")
	}

	// Wrap content to viewport width so long lines don't overflow
	wrapped := lipgloss.NewStyle().Width(m.viewport.Width()).Render(b.String())
	m.viewport.SetContent(wrapped)
	if m.follow {
		m.viewport.GotoBottom()
	}
	return m
}

func kindLabel(k domain.ActivityKind) string {
	switch k {
	case domain.ActivityPublished:
		return publishedStyle.Render("published")
	case domain.ActivityRestored:
		return restoredStyle.Render("restored ")
	case domain.ActivityFailed:
		return failedStyle.Render("failed   ")
	default:
		return skippedStyle.Render("skipped  ")
	}
}
