package telegram

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tgerr"

	"github.com/danhigham/nickclock/internal/domain"
)

// RPC error types meaning the stored authorization can no longer be used.
var sessionErrorTypes = []string{
	"SESSION_PASSWORD_NEEDED",
	"AUTH_KEY_UNREGISTERED",
	"AUTH_KEY_INVALID",
	"AUTH_KEY_PERM_EMPTY",
	"SESSION_REVOKED",
	"SESSION_EXPIRED",
	"USER_DEACTIVATED",
	"USER_DEACTIVATED_BAN",
}

var errBadSession = errors.New("malformed session token")

func isSessionError(err error) bool {
	if errors.Is(err, errBadSession) || auth.IsKeyUnregistered(err) || tgerr.Is(err, sessionErrorTypes...) {
		return true
	}
	if rpcErr, ok := tgerr.As(err); ok && rpcErr.Code == 401 {
		return true
	}
	return false
}

// connectionError maps a failure touching the handle to a typed
// ConnectionError. Already typed errors pass through.
func connectionError(err error) error {
	if err == nil {
		return nil
	}
	var ce *domain.ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	if isSessionError(err) {
		return domain.NewConnectionError(domain.SessionInvalid, err)
	}
	return domain.NewConnectionError(domain.TransportFailure, err)
}

// authError maps a failed handshake to a typed AuthError.
func authError(err error) error {
	if err == nil {
		return nil
	}
	var ae *domain.AuthError
	var ce *domain.ConnectionError
	if errors.As(err, &ae) || errors.As(err, &ce) {
		return err
	}

	kind := domain.HandshakeFailure
	switch {
	case tgerr.Is(err, "PHONE_CODE_INVALID", "PHONE_CODE_EMPTY"):
		kind = domain.InvalidCode
	case tgerr.Is(err, "PHONE_CODE_EXPIRED"):
		kind = domain.ExpiredCode
	case errors.Is(err, auth.ErrPasswordInvalid), tgerr.Is(err, "PASSWORD_HASH_INVALID"):
		kind = domain.InvalidPassword
	case errors.Is(err, context.Canceled):
		err = errors.Wrap(err, "handshake abandoned")
	}
	return &domain.AuthError{Kind: kind, Err: err}
}
