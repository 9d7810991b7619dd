package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoPendingRequest  = errors.New("no pending request")
	ErrAlreadyInProgress = errors.New("authentication already in progress")
)

type ConnectionErrorKind int

const (
	NotConnected ConnectionErrorKind = iota
	SessionInvalid
	TransportFailure
)

func (k ConnectionErrorKind) String() string {
	switch k {
	case NotConnected:
		return "not connected"
	case SessionInvalid:
		return "session invalid"
	case TransportFailure:
		return "transport failure"
	default:
		return "connection error"
	}
}

// ConnectionError is returned by the connector for every failure that
// involves the remote handle.
type ConnectionError struct {
	Kind ConnectionErrorKind
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func NewConnectionError(kind ConnectionErrorKind, err error) *ConnectionError {
	return &ConnectionError{Kind: kind, Err: err}
}

type AuthErrorKind int

const (
	InvalidCode AuthErrorKind = iota
	ExpiredCode
	InvalidPassword
	HandshakeFailure
)

func (k AuthErrorKind) String() string {
	switch k {
	case InvalidCode:
		return "invalid code"
	case ExpiredCode:
		return "expired code"
	case InvalidPassword:
		return "invalid password"
	default:
		return "handshake failure"
	}
}

// AuthError is the terminal failure of an interactive login.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

type SchedulerErrorKind int

const (
	PublishFailure SchedulerErrorKind = iota
)

// SchedulerError is logged by the refresh scheduler and never returned
// from a tick.
type SchedulerError struct {
	Kind SchedulerErrorKind
	Name string
	Err  error
}

func (e *SchedulerError) Error() string {
	return fmt.Sprintf("publish %q: %v", e.Name, e.Err)
}

func (e *SchedulerError) Unwrap() error {
	return e.Err
}

func connectionKind(err error) (ConnectionErrorKind, bool) {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}

func IsSessionInvalid(err error) bool {
	k, ok := connectionKind(err)
	return ok && k == SessionInvalid
}

func IsNotConnected(err error) bool {
	k, ok := connectionKind(err)
	return ok && k == NotConnected
}

// AuthKind returns the kind of an AuthError anywhere in err's chain.
func AuthKind(err error) (AuthErrorKind, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}
