package domain

import "time"

// Credentials identify the application to Telegram (my.telegram.org).
type Credentials struct {
	APIID   int
	APIHash string
}

// Valid reports whether both halves of the credentials are present.
func (c Credentials) Valid() bool {
	return c.APIID > 0 && c.APIHash != ""
}

// Profile is a read-only snapshot of the logged-in account.
type Profile struct {
	ID          int64
	DisplayName string // first name, else username, else "User"
	FirstName   string
	LastName    string
	Username    string
	Avatar      string // data:image/jpeg;base64,... or empty
}

type AuthState int

const (
	AuthStateIdle AuthState = iota
	AuthStateConnecting
	AuthStateAwaitingCode
	AuthStateAwaitingPassword
	AuthStateSucceeded
	AuthStateFailed
)

func (s AuthState) String() string {
	switch s {
	case AuthStateIdle:
		return "idle"
	case AuthStateConnecting:
		return "connecting"
	case AuthStateAwaitingCode:
		return "awaiting code"
	case AuthStateAwaitingPassword:
		return "awaiting password"
	case AuthStateSucceeded:
		return "succeeded"
	case AuthStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no handshake is running in this state.
func (s AuthState) Terminal() bool {
	return s == AuthStateIdle || s == AuthStateSucceeded || s == AuthStateFailed
}

type ActivityKind int

const (
	ActivityPublished ActivityKind = iota
	ActivitySkipped
	ActivityFailed
	ActivityRestored
)

// ActivityEntry is one line of the refresh log shown to the user.
type ActivityEntry struct {
	Kind      ActivityKind
	Name      string
	Detail    string
	Timestamp time.Time
}
