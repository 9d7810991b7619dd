package telegram

import (
	"bytes"
	"context"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"

	"github.com/danhigham/nickclock/internal/domain"
)

// GotdDialer opens connections with gotd/td. Sessions live in memory and
// are exported as tokens by the Connector.
type GotdDialer struct {
	logger *zap.Logger
}

func NewGotdDialer(logger *zap.Logger) *GotdDialer {
	return &GotdDialer{logger: logger}
}

// Dial starts a client and returns once the connection is ready.
func (d *GotdDialer) Dial(ctx context.Context, creds domain.Credentials, data []byte) (Conn, error) {
	storage := new(session.StorageMemory)
	if len(data) > 0 {
		if err := storage.StoreSession(ctx, data); err != nil {
			return nil, errors.Wrap(err, "load session")
		}
	}

	client := telegram.NewClient(creds.APIID, creds.APIHash, telegram.Options{
		Logger:         d.logger.Named("gotd").WithOptions(zap.IncreaseLevel(zapcore.WarnLevel)),
		SessionStorage: storage,
		NoUpdates:      true,
	})

	conn := &gotdConn{
		client:  client,
		storage: storage,
		logger:  d.logger,
		done:    make(chan struct{}),
	}
	if err := conn.start(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

// gotdConn keeps client.Run alive in a goroutine for as long as the
// connection is open.
type gotdConn struct {
	client  *telegram.Client
	storage *session.StorageMemory
	logger  *zap.Logger

	alive     atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
	runErr    error
	closeOnce sync.Once
}

func (c *gotdConn) start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})

	go func() {
		defer close(c.done)
		err := c.client.Run(runCtx, func(ctx context.Context) error {
			c.alive.Store(true)
			close(ready)
			<-ctx.Done()
			return nil
		})
		c.alive.Store(false)
		c.runErr = err
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("Telegram client stopped", zap.Error(err))
		}
	}()

	select {
	case <-ready:
		c.cancel = cancel
		return nil
	case <-c.done:
		cancel()
		if c.runErr != nil {
			return errors.Wrap(c.runErr, "run")
		}
		return errors.New("client stopped before becoming ready")
	case <-ctx.Done():
		cancel()
		<-c.done
		return ctx.Err()
	}
}

func (c *gotdConn) Alive() bool {
	return c.alive.Load()
}

func (c *gotdConn) Self(ctx context.Context) (*tg.User, error) {
	return c.client.Self(ctx)
}

func (c *gotdConn) UpdateProfile(ctx context.Context, firstName, lastName string) error {
	req := &tg.AccountUpdateProfileRequest{}
	req.SetFirstName(firstName)
	req.SetLastName(lastName)
	_, err := c.client.API().AccountUpdateProfile(ctx, req)
	return err
}

// DownloadProfilePhoto fetches the small variant of the account's photo.
func (c *gotdConn) DownloadProfilePhoto(ctx context.Context, user *tg.User) ([]byte, error) {
	p, ok := user.GetPhoto()
	if !ok {
		return nil, nil
	}
	photo, ok := p.(*tg.UserProfilePhoto)
	if !ok {
		return nil, nil
	}

	loc := &tg.InputPeerPhotoFileLocation{
		Peer:    &tg.InputPeerSelf{},
		PhotoID: photo.PhotoID,
	}
	var buf bytes.Buffer
	if _, err := downloader.NewDownloader().Download(c.client.API(), loc).Stream(ctx, &buf); err != nil {
		return nil, errors.Wrap(err, "download photo")
	}
	return buf.Bytes(), nil
}

func (c *gotdConn) Authenticate(ctx context.Context, p Prompter) error {
	flow := auth.NewFlow(promptAuth{p: p}, auth.SendCodeOptions{})
	if err := c.client.Auth().IfNecessary(ctx, flow); err != nil {
		return errors.Wrap(err, "auth")
	}
	return nil
}

func (c *gotdConn) Session(ctx context.Context) ([]byte, error) {
	data, err := c.storage.LoadSession(ctx)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// Close stops the client and waits for it to exit or ctx to expire.
func (c *gotdConn) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
	})
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
