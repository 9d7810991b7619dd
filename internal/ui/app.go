package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/danhigham/nickclock/internal/app"
	"github.com/danhigham/nickclock/internal/authflow"
	"github.com/danhigham/nickclock/internal/config"
	"github.com/danhigham/nickclock/internal/domain"
	"github.com/danhigham/nickclock/internal/nickname"
	"github.com/danhigham/nickclock/internal/state"
)

// Service is the part of app.Service the front end drives.
type Service interface {
	Boot(ctx context.Context) (app.Screen, error)
	SaveCredentials(apiID, apiHash string) error
	Login(ctx context.Context, phone string) (authflow.Result, error)
	SubmitCode(ctx context.Context, code string) (authflow.Result, error)
	SubmitPassword(ctx context.Context, password string) (authflow.Result, error)
	Profile(ctx context.Context) (domain.Profile, error)
	SetAutoUpdate(ctx context.Context, enabled bool) error
	SetTimezone(offset int) error
	SetAutoStart(on bool) error
	SetStartInTray(on bool) error
	Logout(ctx context.Context) error
	Preview() string
	SchedulerRunning() bool
	Config() config.Config
}

const profilePanelWidth = 42

// Model is the root Bubble Tea model.
type Model struct {
	auth     AuthModel
	activity ActivityModel
	timezone TimezoneModel
	help     HelpModel
	status   statusModel
	splash   SplashModel

	store *state.Store
	svc   Service

	screen  app.Screen
	booted  bool
	preview string
	width   int
	height  int
}

// NewModel creates the root model with all sub-components.
func NewModel(store *state.Store, svc Service) Model {
	return Model{
		auth:     NewAuthModel(),
		activity: NewActivityModel(),
		timezone: NewTimezoneModel(time.Now),
		help:     NewHelpModel(),
		status:   newStatusModel(),
		splash:   NewSplashModel(),
		store:    store,
		svc:      svc,
	}
}

func (m Model) Init() tea.Cmd {
	svc := m.svc
	return tea.Batch(
		func() tea.Msg {
			screen, err := svc.Boot(context.Background())
			return bootDoneMsg{screen: screen, err: err}
		},
		tea.Tick(2*time.Second, func(time.Time) tea.Msg { return SplashDoneMsg{} }),
		clockTick(),
	)
}

func clockTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return clockTickMsg{} })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m = m.distributeSize()
		return m, nil

	case StoreUpdatedMsg:
		m = m.refreshFromStore()
		return m, nil

	case clockTickMsg:
		m = m.refreshFromStore()
		return m, clockTick()

	case SplashDoneMsg:
		m.splash = m.splash.TimerDone()
		return m, nil

	case bootDoneMsg:
		m.booted = true
		m.splash = m.splash.BootDone()
		m.screen = msg.screen
		var cmd tea.Cmd
		switch msg.screen {
		case app.ScreenCredentials:
			m.auth, cmd = m.auth.Show(stageCredentials)
		case app.ScreenLogin:
			m.auth, cmd = m.auth.Show(stagePhone)
		default:
			m.auth = m.auth.Hide()
		}
		if msg.err != nil {
			m.auth = m.auth.SetError(describeError(msg.err))
			m.store.SetStatus(describeError(msg.err), true)
		}
		m = m.refreshFromStore()
		return m, cmd

	case authSubmitMsg:
		return m, m.submitAuth(msg)

	case credentialsSavedMsg:
		if msg.err != nil {
			m.auth = m.auth.SetBusy(false).SetError(describeError(msg.err))
			return m, nil
		}
		var cmd tea.Cmd
		m.screen = app.ScreenLogin
		m.auth, cmd = m.auth.Show(stagePhone)
		return m, cmd

	case authResultMsg:
		return m.handleAuthResult(msg)

	case timezoneSelectedMsg:
		svc := m.svc
		offset := msg.offset
		return m, func() tea.Msg {
			return opDoneMsg{what: "Timezone set to " + nickname.TimezoneLabel(offset), err: svc.SetTimezone(offset)}
		}

	case opDoneMsg:
		if msg.err != nil {
			m.store.SetStatus(describeError(msg.err), true)
		} else {
			m.store.SetStatus(msg.what, false)
		}
		m = m.refreshFromStore()
		return m, nil

	case loggedOutMsg:
		var cmd tea.Cmd
		m.screen = app.ScreenLogin
		m.auth, cmd = m.auth.Show(stagePhone)
		if msg.err != nil {
			m.auth = m.auth.SetError(describeError(msg.err))
		}
		m.store.SetStatus("Logged out", false)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if m.splash.IsVisible() {
		return m, nil
	}

	if m.help.IsVisible() {
		switch key {
		case "h", "f1", "esc", "q":
			m.help = m.help.Toggle()
		}
		return m, nil
	}

	if m.auth.IsVisible() {
		if key == "f1" {
			m.help = m.help.Toggle()
			return m, nil
		}
		var cmd tea.Cmd
		m.auth, cmd = m.auth.Update(msg)
		return m, cmd
	}

	if m.timezone.IsVisible() {
		var cmd tea.Cmd
		m.timezone, cmd = m.timezone.Update(msg)
		return m, cmd
	}

	svc := m.svc
	ctx := context.Background()
	switch key {
	case "q":
		return m, tea.Quit
	case "h", "f1":
		m.help = m.help.Toggle()
		return m, nil
	case "a":
		enable := !svc.SchedulerRunning()
		what := "Auto refresh off, name restored"
		if enable {
			what = "Auto refresh on"
		}
		m.store.SetStatus("Working...", false)
		return m, func() tea.Msg {
			return opDoneMsg{what: what, err: svc.SetAutoUpdate(ctx, enable)}
		}
	case "t":
		m.timezone = m.timezone.Show(m.store.Timezone())
		return m, nil
	case "s":
		on := !svc.Config().AutoStart
		return m, func() tea.Msg {
			return opDoneMsg{what: "Start with system " + onOff(on), err: svc.SetAutoStart(on)}
		}
	case "y":
		on := !svc.Config().StartInTray
		return m, func() tea.Msg {
			return opDoneMsg{what: "Start in tray " + onOff(on), err: svc.SetStartInTray(on)}
		}
	case "r":
		return m, func() tea.Msg {
			_, err := svc.Profile(ctx)
			return opDoneMsg{what: "Profile reloaded", err: err}
		}
	case "L":
		return m, func() tea.Msg {
			return loggedOutMsg{err: svc.Logout(ctx)}
		}
	}

	var cmd tea.Cmd
	m.activity, cmd = m.activity.Update(msg)
	return m, cmd
}

func (m Model) submitAuth(msg authSubmitMsg) tea.Cmd {
	svc := m.svc
	ctx := context.Background()
	return func() tea.Msg {
		switch msg.stage {
		case stageCredentials:
			return credentialsSavedMsg{err: svc.SaveCredentials(msg.values[0], msg.values[1])}
		case stagePhone:
			res, err := svc.Login(ctx, msg.values[0])
			return authResultMsg{stage: msg.stage, result: res, err: err}
		case stageCode:
			res, err := svc.SubmitCode(ctx, msg.values[0])
			return authResultMsg{stage: msg.stage, result: res, err: err}
		default:
			res, err := svc.SubmitPassword(ctx, msg.values[0])
			return authResultMsg{stage: msg.stage, result: res, err: err}
		}
	}
}

func (m Model) handleAuthResult(msg authResultMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if msg.err != nil {
		if errors.Is(msg.err, domain.ErrNoPendingRequest) {
			m.auth, cmd = m.auth.Show(stagePhone)
		} else {
			m.auth = m.auth.SetBusy(false)
		}
		m.auth = m.auth.SetError(describeError(msg.err))
		return m, cmd
	}

	switch msg.result.Step {
	case authflow.StepCode:
		m.auth, cmd = m.auth.Show(stageCode)
	case authflow.StepPassword:
		m.auth, cmd = m.auth.Show(stagePassword)
	case authflow.StepSuccess:
		m.auth = m.auth.Hide()
		m.screen = app.ScreenMain
		m.store.SetStatus("Logged in", false)
		m = m.refreshFromStore()
	default:
		// The handshake is over; every retry starts from the phone number.
		m.auth, cmd = m.auth.Show(stagePhone)
		m.auth = m.auth.SetError(describeError(msg.result.Err))
	}
	return m, cmd
}

func describeError(err error) string {
	if kind, ok := domain.AuthKind(err); ok {
		switch kind {
		case domain.InvalidCode:
			return "That code is not valid. Request a new one."
		case domain.ExpiredCode:
			return "That code has expired. Request a new one."
		case domain.InvalidPassword:
			return "Wrong password."
		}
	}
	if domain.IsSessionInvalid(err) {
		return "Session expired, please log in again."
	}
	if err == nil {
		return "Unknown error"
	}
	return err.Error()
}

func (m Model) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true

	if m.width == 0 || m.height == 0 {
		return v
	}

	var base string
	switch {
	case !m.booted:
		base = ""
	case m.auth.IsVisible():
		base = m.auth.View()
	default:
		base = m.mainView()
	}

	mainContent := lipgloss.NewStyle().
		MaxWidth(m.width).
		MaxHeight(m.height).
		Render(base)

	layers := []*lipgloss.Layer{lipgloss.NewLayer(mainContent)}
	if m.timezone.IsVisible() {
		x, y := m.timezone.BoxOffset()
		layers = append(layers, lipgloss.NewLayer(m.timezone.View()).X(x).Y(y).Z(1))
	}
	if m.help.IsVisible() {
		x, y := m.help.BoxOffset()
		layers = append(layers, lipgloss.NewLayer(m.help.View()).X(x).Y(y).Z(2))
	}
	if m.splash.IsVisible() {
		layers = append(layers, lipgloss.NewLayer(m.splash.View()).Z(3))
	}

	if len(layers) == 1 {
		v.SetContent(mainContent)
		return v
	}
	v.SetContent(lipgloss.NewCompositor(layers...).Render())
	return v
}

func (m Model) mainView() string {
	statusBar := m.status.View()
	panels := lipgloss.JoinHorizontal(lipgloss.Top, m.profileView(), m.activity.View())
	return lipgloss.JoinVertical(lipgloss.Left, statusBar, panels)
}

func (m Model) profileView() string {
	cfg := m.svc.Config()
	var b strings.Builder

	if p := m.store.GetProfile(); p != nil {
		b.WriteString(titleStyle.Render(p.DisplayName) + "\n")
		if p.Username != "" {
			b.WriteString(hintStyle.Render("@"+p.Username) + "\n")
		}
		fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("id"), p.ID)
		if p.Avatar != "" {
			b.WriteString(hintStyle.Render("profile photo loaded") + "\n")
		}
	} else {
		b.WriteString(hintStyle.Render("No profile loaded") + "\n")
	}

	b.WriteString("\n")
	base := cfg.OriginalNickname
	if base == "" {
		base = "(captured when enabled)"
	}
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("base name  "), base)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("timezone   "), nickname.TimezoneLabel(cfg.Timezone))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("next name  "), m.preview)
	if last := m.store.LastPublished(); last != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("published  "), last)
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("[a] auto refresh   "), onOff(m.store.AutoUpdate()))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("[s] start w/ system"), onOff(cfg.AutoStart))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("[y] start in tray  "), onOff(cfg.StartInTray))
	b.WriteString("\n" + hintStyle.Render("t timezone · r reload · L log out · h help"))

	height := m.height - 1
	if height < 1 {
		height = 1
	}
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Width(profilePanelWidth).
		Height(height)
	style = applyBorderColor(style, false)

	return style.Render(truncateHeight(b.String(), height-2))
}

func (m Model) distributeSize() Model {
	// One row for the status bar, the rest for the panels.
	contentHeight := m.height - 1
	if contentHeight < 1 {
		contentHeight = 1
	}

	rightWidth := m.width - profilePanelWidth
	if rightWidth < 1 {
		rightWidth = 1
	}

	m.status = m.status.SetWidth(m.width)
	m.activity = m.activity.SetSize(rightWidth, contentHeight).SetFocused(true)
	m.auth = m.auth.SetSize(m.width, m.height)
	m.timezone = m.timezone.SetSize(m.width, m.height)
	m.help = m.help.SetSize(m.width, m.height)
	m.splash = m.splash.SetSize(m.width, m.height)

	return m
}

func (m Model) refreshFromStore() Model {
	m.activity = m.activity.SetEntries(m.store.GetActivity())

	offset := m.store.Timezone()
	m.status.running = m.svc.SchedulerRunning()
	m.status.timezone = nickname.TimezoneLabel(offset)
	m.status.now = time.Now().UTC().Add(time.Duration(offset) * time.Hour)
	m.status.text, m.status.isError = m.store.Status()
	if m.status.text == "" {
		m.status.text = "Ready"
	}
	if p := m.store.GetProfile(); p != nil {
		m.status.userName = p.DisplayName
	} else {
		m.status.userName = ""
	}

	if m.screen == app.ScreenMain {
		m.preview = m.svc.Preview()
	}
	return m
}

// App wraps the Bubble Tea program for external use.
type App struct {
	program *tea.Program
}

// NewApp creates a new App ready to Run.
func NewApp(store *state.Store, svc Service) *App {
	model := NewModel(store, svc)
	p := tea.NewProgram(model)
	return &App{program: p}
}

// Run starts the Bubble Tea event loop (blocks until quit).
func (a *App) Run() error {
	_, err := a.program.Run()
	return err
}

// Send sends a message into the Bubble Tea event loop from external goroutines.
func (a *App) Send(msg tea.Msg) {
	go a.program.Send(msg)
}

// DrawFunc returns a function suitable for state.Store that triggers a re-render.
func (a *App) DrawFunc() func() {
	return func() {
		a.Send(StoreUpdatedMsg{})
	}
}
