package ui

import (
	"fmt"
	"io"
	"time"

	"charm.land/bubbles/v2/list"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/danhigham/nickclock/internal/nickname"
)

// zoneItem implements list.Item for the timezone picker.
type zoneItem struct {
	offset int
}

func (i zoneItem) FilterValue() string { return nickname.TimezoneLabel(i.offset) }

// zoneItemDelegate renders a zoneItem with the wall clock it would show.
type zoneItemDelegate struct {
	now func() time.Time
}

func (d zoneItemDelegate) Height() int                             { return 1 }
func (d zoneItemDelegate) Spacing() int                            { return 0 }
func (d zoneItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d zoneItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	zi, ok := item.(zoneItem)
	if !ok {
		return
	}

	local := d.now().UTC().Add(time.Duration(zi.offset) * time.Hour)
	label := fmt.Sprintf("%-7s %s %s", nickname.TimezoneLabel(zi.offset), local.Format("15:04"), nickname.Period(local.Hour()))

	contentWidth := m.Width() - 2
	if contentWidth < 1 {
		contentWidth = 1
	}
	style := lipgloss.NewStyle().MaxWidth(contentWidth).MaxHeight(1)

	cursor := "  "
	if index == m.Index() {
		cursor = "> "
		style = style.Foreground(lipgloss.Color("170")).Bold(true)
	}

	fmt.Fprintf(w, "%s%s", cursor, style.Render(label))
}

// TimezoneModel wraps bubbles/list as a picker overlay for the UTC offset.
type TimezoneModel struct {
	list    list.Model
	visible bool
	width   int
	height  int
}

func NewTimezoneModel(now func() time.Time) TimezoneModel {
	items := make([]list.Item, 0, nickname.MaxTimezone-nickname.MinTimezone+1)
	for off := nickname.MinTimezone; off <= nickname.MaxTimezone; off++ {
		items = append(items, zoneItem{offset: off})
	}

	l := list.New(items, zoneItemDelegate{now: now}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	return TimezoneModel{list: l}
}

func (m TimezoneModel) IsVisible() bool {
	return m.visible
}

// Show opens the picker with offset selected.
func (m TimezoneModel) Show(offset int) TimezoneModel {
	m.visible = true
	m.list.Select(offset - nickname.MinTimezone)
	return m
}

func (m TimezoneModel) Hide() TimezoneModel {
	m.visible = false
	return m
}

func (m TimezoneModel) Update(msg tea.Msg) (TimezoneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			m.visible = false
			if item, ok := m.list.SelectedItem().(zoneItem); ok {
				return m, func() tea.Msg {
					return timezoneSelectedMsg{offset: item.offset}
				}
			}
			return m, nil
		case "esc", "q":
			m.visible = false
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the picker box; use BoxOffset to place it.
func (m TimezoneModel) View() string {
	if !m.visible || m.width == 0 || m.height == 0 {
		return ""
	}

	title := titleStyle.Render("Timezone")
	content := truncateHeight(m.list.View(), m.innerHeight())

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1)
	style = applyBorderColor(style, true)

	return style.Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
}

// BoxOffset returns the (x, y) needed to center the picker.
func (m TimezoneModel) BoxOffset() (int, int) {
	box := m.View()
	x := (m.width - lipgloss.Width(box)) / 2
	y := (m.height - lipgloss.Height(box)) / 2
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return x, y
}

const timezoneBoxWidth = 28

func (m TimezoneModel) innerHeight() int {
	h := m.height - 6
	if h > 14 {
		h = 14
	}
	if h < 1 {
		h = 1
	}
	return h
}

func (m TimezoneModel) SetSize(w, h int) TimezoneModel {
	m.width = w
	m.height = h
	m.list.SetSize(timezoneBoxWidth, m.innerHeight())
	return m
}
