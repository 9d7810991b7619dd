package telegram

import (
	"context"

	"github.com/gotd/td/tg"

	"github.com/danhigham/nickclock/internal/domain"
)

// Conn is one open connection to Telegram.
type Conn interface {
	Self(ctx context.Context) (*tg.User, error)
	UpdateProfile(ctx context.Context, firstName, lastName string) error
	DownloadProfilePhoto(ctx context.Context, user *tg.User) ([]byte, error)
	Authenticate(ctx context.Context, p Prompter) error
	// Session returns the raw session blob, nil if none was negotiated yet.
	Session(ctx context.Context) ([]byte, error)
	Alive() bool
	Close(ctx context.Context) error
}

// Dialer opens connections. A non-empty session resumes a previous login.
type Dialer interface {
	Dial(ctx context.Context, creds domain.Credentials, session []byte) (Conn, error)
}
