package ui

import (
	tea "charm.land/bubbletea/v2"

	"github.com/danhigham/nickclock/internal/app"
	"github.com/danhigham/nickclock/internal/authflow"
)

// StoreUpdatedMsg signals that the store state has changed.
type StoreUpdatedMsg struct{}

// bootDoneMsg carries the first screen decided at startup.
type bootDoneMsg struct {
	screen app.Screen
	err    error
}

// credentialsSavedMsg reports the outcome of saving api credentials.
type credentialsSavedMsg struct {
	err error
}

// authResultMsg delivers the outcome of one login step.
type authResultMsg struct {
	stage  authStage
	result authflow.Result
	err    error
}

// opDoneMsg reports a finished background operation from the main screen.
type opDoneMsg struct {
	what string
	err  error
}

// loggedOutMsg is sent once logout has finished.
type loggedOutMsg struct {
	err error
}

// timezoneSelectedMsg is emitted when the user picks an offset.
type timezoneSelectedMsg struct {
	offset int
}

// SplashDoneMsg signals that the splash screen timeout has elapsed.
type SplashDoneMsg struct{}

// clockTickMsg refreshes the preview and the status bar clock.
type clockTickMsg struct{}

// StoreUpdatedCmd returns a command that emits StoreUpdatedMsg.
func StoreUpdatedCmd() tea.Msg {
	return StoreUpdatedMsg{}
}
