package telegram

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// Prompter supplies interactive login input. Code and Password block until
// the caller provides a value or ctx is done.
type Prompter interface {
	Phone(ctx context.Context) (string, error)
	Code(ctx context.Context) (string, error)
	Password(ctx context.Context) (string, error)
}

// promptAuth adapts a Prompter to gotd's auth.UserAuthenticator.
type promptAuth struct {
	p Prompter
}

var _ auth.UserAuthenticator = promptAuth{}

func (a promptAuth) Phone(ctx context.Context) (string, error) {
	return a.p.Phone(ctx)
}

func (a promptAuth) Code(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
	return a.p.Code(ctx)
}

func (a promptAuth) Password(ctx context.Context) (string, error) {
	return a.p.Password(ctx)
}

func (a promptAuth) AcceptTermsOfService(ctx context.Context, tos tg.HelpTermsOfService) error {
	return &auth.SignUpRequired{TermsOfService: tos}
}

func (a promptAuth) SignUp(ctx context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("sign up not supported")
}
