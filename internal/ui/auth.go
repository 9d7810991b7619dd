package ui

import (
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

type authStage int

const (
	stageCredentials authStage = iota
	stagePhone
	stageCode
	stagePassword
)

// authSubmitMsg is emitted when the user confirms a stage.
type authSubmitMsg struct {
	stage  authStage
	values []string
}

type authField struct {
	label string
	input textinput.Model
}

// AuthModel is the full-screen form for credentials and the login steps.
type AuthModel struct {
	visible       bool
	stage         authStage
	fields        []authField
	focusIdx      int
	busy          bool
	errMsg        string
	width, height int
}

func NewAuthModel() AuthModel {
	return AuthModel{}
}

func newField(label, placeholder string, secret bool) authField {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = placeholder
	ti.CharLimit = 128
	ti.SetWidth(32)
	if secret {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '•'
	}
	return authField{label: label, input: ti}
}

// Show switches the form to stage with empty fields.
func (m AuthModel) Show(stage authStage) (AuthModel, tea.Cmd) {
	m.visible = true
	m.stage = stage
	m.busy = false
	m.focusIdx = 0

	switch stage {
	case stageCredentials:
		m.fields = []authField{
			newField("API ID", "12345", false),
			newField("API Hash", "from my.telegram.org", false),
		}
	case stagePhone:
		m.fields = []authField{newField("Phone number", "+15550100", false)}
	case stageCode:
		m.fields = []authField{newField("Login code", "12345", false)}
	case stagePassword:
		m.fields = []authField{newField("2FA password", "", true)}
	}
	return m, m.fields[0].input.Focus()
}

func (m AuthModel) Hide() AuthModel {
	m.visible = false
	m.busy = false
	m.errMsg = ""
	return m
}

func (m AuthModel) IsVisible() bool {
	return m.visible
}

func (m AuthModel) Stage() authStage {
	return m.stage
}

func (m AuthModel) SetBusy(b bool) AuthModel {
	m.busy = b
	return m
}

func (m AuthModel) SetError(msg string) AuthModel {
	m.errMsg = msg
	return m
}

func (m AuthModel) SetSize(w, h int) AuthModel {
	m.width = w
	m.height = h
	return m
}

func (m AuthModel) Update(msg tea.Msg) (AuthModel, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "tab", "down":
			return m.moveFocus(1)
		case "shift+tab", "up":
			return m.moveFocus(-1)
		case "enter":
			if m.busy {
				return m, nil
			}
			if m.focusIdx < len(m.fields)-1 {
				return m.moveFocus(1)
			}
			values := make([]string, len(m.fields))
			for i, f := range m.fields {
				values[i] = strings.TrimSpace(f.input.Value())
				if values[i] == "" {
					m.errMsg = f.label + " is required"
					return m, nil
				}
			}
			m.busy = true
			m.errMsg = ""
			stage := m.stage
			return m, func() tea.Msg {
				return authSubmitMsg{stage: stage, values: values}
			}
		}
	}

	if m.busy || len(m.fields) == 0 {
		return m, nil
	}
	var cmd tea.Cmd
	m.fields[m.focusIdx].input, cmd = m.fields[m.focusIdx].input.Update(msg)
	return m, cmd
}

func (m AuthModel) moveFocus(delta int) (AuthModel, tea.Cmd) {
	if len(m.fields) < 2 {
		return m, nil
	}
	m.fields[m.focusIdx].input.Blur()
	m.focusIdx = (m.focusIdx + delta + len(m.fields)) % len(m.fields)
	return m, m.fields[m.focusIdx].input.Focus()
}

func (m AuthModel) title() string {
	switch m.stage {
	case stageCredentials:
		return "Telegram API credentials"
	case stagePhone:
		return "Log in"
	case stageCode:
		return "Enter the code Telegram sent you"
	default:
		return "Two-step verification"
	}
}

func (m AuthModel) View() string {
	if !m.visible {
		return ""
	}

	var rows []string
	rows = append(rows, titleStyle.Render(m.title()), "")
	for _, f := range m.fields {
		rows = append(rows, labelStyle.Render(f.label), f.input.View(), "")
	}
	switch {
	case m.busy:
		rows = append(rows, hintStyle.Render("Working..."))
	case m.errMsg != "":
		rows = append(rows, errorStyle.Render(m.errMsg))
	default:
		rows = append(rows, hintStyle.Render("Enter to continue · Ctrl+C to quit"))
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(1, 3).
		Width(50)
	box = applyBorderColor(box, true)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
}
