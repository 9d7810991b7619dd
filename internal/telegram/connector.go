package telegram

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/danhigham/nickclock/internal/domain"
)

const (
	defaultDialRetries = 4
	defaultDialTimeout = 30 * time.Second
)

// Connector owns the lifecycle of the single remote handle.
type Connector struct {
	dialer      Dialer
	logger      *zap.Logger
	newBackOff  func() backoff.BackOff
	dialTimeout time.Duration

	mu    sync.Mutex
	conn  Conn
	creds domain.Credentials

	// gen changes on every Connect and Disconnect; a dial that finishes
	// under an older gen is discarded.
	gen        uint64
	cancelDial context.CancelFunc

	reconnects singleflight.Group
}

type Option func(*Connector)

// WithBackOff replaces the retry policy used when dialing fails with a
// transport error.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Connector) {
		c.newBackOff = fn
	}
}

// WithDialTimeout bounds a single dial attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Connector) {
		c.dialTimeout = d
	}
}

func NewConnector(dialer Dialer, logger *zap.Logger, opts ...Option) *Connector {
	c := &Connector{
		dialer: dialer,
		logger: logger,
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), defaultDialRetries)
		},
		dialTimeout: defaultDialTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens a fresh handle, tearing down any previous one first. A
// non-empty token is verified with an identity probe. Disconnect aborts a
// Connect that is still dialing.
func (c *Connector) Connect(ctx context.Context, creds domain.Credentials, token string) error {
	if !creds.Valid() {
		return domain.NewConnectionError(domain.NotConnected, errors.New("api credentials are not set"))
	}
	data, err := DecodeSession(token)
	if err != nil {
		return domain.NewConnectionError(domain.SessionInvalid, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.cancelDial != nil {
		c.cancelDial()
	}
	c.cancelDial = cancel
	old := c.conn
	c.conn = nil
	c.mu.Unlock()

	if old != nil {
		if err := old.Close(ctx); err != nil {
			c.logger.Warn("Failed to close previous connection", zap.Error(err))
		}
	}

	conn, err := c.open(ctx, creds, data, token != "")

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		if conn != nil {
			if cerr := conn.Close(context.Background()); cerr != nil {
				c.logger.Warn("Failed to close abandoned connection", zap.Error(cerr))
			}
		}
		return domain.NewConnectionError(domain.NotConnected, errors.New("connect aborted"))
	}
	defer c.mu.Unlock()
	c.cancelDial = nil
	if err != nil {
		return err
	}
	c.conn = conn
	c.creds = creds
	return nil
}

// open dials and, for a resumed session, runs the identity probe.
func (c *Connector) open(ctx context.Context, creds domain.Credentials, data []byte, probe bool) (Conn, error) {
	conn, err := c.dial(ctx, creds, data)
	if err != nil {
		return nil, err
	}
	if !probe {
		return conn, nil
	}
	if _, err := conn.Self(ctx); err != nil {
		c.logger.Error("Session probe failed", zap.Error(err))
		if cerr := conn.Close(ctx); cerr != nil {
			c.logger.Warn("Failed to close rejected connection", zap.Error(cerr))
		}
		return nil, connectionError(err)
	}
	c.logger.Info("Session is valid")
	return conn, nil
}

// dial retries transport failures; an invalid session is permanent.
func (c *Connector) dial(ctx context.Context, creds domain.Credentials, data []byte) (Conn, error) {
	var conn Conn
	op := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
		defer cancel()

		dialed, err := c.dialer.Dial(attemptCtx, creds, data)
		if err != nil {
			c.logger.Warn("Dial failed", zap.Error(err))
			if isSessionError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		conn = dialed
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		return nil, connectionError(errors.Wrap(err, "dial"))
	}
	return conn, nil
}

// Connected reports whether a handle is open.
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// live returns the open handle, redialing once if it reports itself
// disconnected. Concurrent callers share the same redial.
func (c *Connector) live(ctx context.Context) (Conn, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil, domain.NewConnectionError(domain.NotConnected, nil)
	}
	if conn.Alive() {
		return conn, nil
	}

	v, err, _ := c.reconnects.Do("reconnect", func() (any, error) {
		return c.reconnect(ctx, conn)
	})
	if err != nil {
		return nil, err
	}
	return v.(Conn), nil
}

func (c *Connector) reconnect(ctx context.Context, stale Conn) (Conn, error) {
	c.logger.Info("Client disconnected, reconnecting")

	data, err := stale.Session(ctx)
	if err != nil {
		return nil, connectionError(errors.Wrap(err, "read session"))
	}
	if err := stale.Close(ctx); err != nil {
		c.logger.Warn("Failed to close stale connection", zap.Error(err))
	}

	c.mu.Lock()
	creds := c.creds
	c.mu.Unlock()

	fresh, err := c.dial(ctx, creds, data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != stale {
		// Disconnected or replaced while we were dialing.
		if err := fresh.Close(ctx); err != nil {
			c.logger.Warn("Failed to close superseded connection", zap.Error(err))
		}
		if c.conn == nil {
			return nil, domain.NewConnectionError(domain.NotConnected, nil)
		}
		return c.conn, nil
	}
	c.conn = fresh
	return fresh, nil
}

// withConn runs fn on a live handle. If fn fails because the handle
// dropped mid-call, the handle is redialed and fn retried exactly once.
func (c *Connector) withConn(ctx context.Context, fn func(Conn) error) error {
	conn, err := c.live(ctx)
	if err != nil {
		return err
	}
	err = fn(conn)
	if err == nil || conn.Alive() {
		return connectionError(err)
	}

	c.logger.Warn("Connection dropped during call, retrying once", zap.Error(err))
	conn, err = c.live(ctx)
	if err != nil {
		return err
	}
	return connectionError(fn(conn))
}

// Profile fetches the account snapshot. A failed avatar download leaves
// Avatar empty.
func (c *Connector) Profile(ctx context.Context) (domain.Profile, error) {
	var (
		self   *tg.User
		avatar []byte
	)
	err := c.withConn(ctx, func(conn Conn) error {
		u, err := conn.Self(ctx)
		if err != nil {
			return errors.Wrap(err, "get self")
		}
		self = u
		if _, ok := u.GetPhoto(); ok {
			avatar, err = conn.DownloadProfilePhoto(ctx, u)
			if err != nil {
				c.logger.Error("Failed to download photo", zap.Error(err))
				avatar = nil
			}
		}
		return nil
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return profileFromUser(self, avatar), nil
}

// FirstName returns the account's current first name.
func (c *Connector) FirstName(ctx context.Context) (string, error) {
	var first string
	err := c.withConn(ctx, func(conn Conn) error {
		u, err := conn.Self(ctx)
		if err != nil {
			return errors.Wrap(err, "get self")
		}
		first = u.FirstName
		return nil
	})
	return first, err
}

// UpdateDisplayName writes firstName unless it is already current. An
// empty lastName keeps the account's existing last name.
func (c *Connector) UpdateDisplayName(ctx context.Context, firstName, lastName string) (bool, error) {
	var applied bool
	err := c.withConn(ctx, func(conn Conn) error {
		applied = false
		u, err := conn.Self(ctx)
		if err != nil {
			return errors.Wrap(err, "get self")
		}
		if u.FirstName == firstName {
			c.logger.Debug("First name already current, skipping update", zap.String("first_name", firstName))
			return nil
		}
		if lastName == "" {
			lastName = u.LastName
		}
		if err := conn.UpdateProfile(ctx, firstName, lastName); err != nil {
			return errors.Wrap(err, "update profile")
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if applied {
		c.logger.Info("Profile updated", zap.String("first_name", firstName))
	}
	return applied, nil
}

// Authenticate runs the interactive login on the open handle. Failures are
// returned as *domain.AuthError or *domain.ConnectionError.
func (c *Connector) Authenticate(ctx context.Context, p Prompter) error {
	conn, err := c.live(ctx)
	if err != nil {
		return err
	}
	return authError(conn.Authenticate(ctx, p))
}

// ExportSession returns the portable session token for the open handle.
func (c *Connector) ExportSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return "", domain.NewConnectionError(domain.NotConnected, nil)
	}
	data, err := conn.Session(ctx)
	if err != nil {
		return "", connectionError(errors.Wrap(err, "export session"))
	}
	return EncodeSession(data), nil
}

// Disconnect closes the handle and aborts a Connect in progress. Calling it
// without an open handle is a no-op.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(ctx); err != nil {
		return connectionError(errors.Wrap(err, "close"))
	}
	c.logger.Info("Disconnected")
	return nil
}

// EncodeSession turns a raw session blob into the persisted token form.
func EncodeSession(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeSession reverses EncodeSession. An empty token yields nil.
func DecodeSession(token string) ([]byte, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, errors.Wrap(errBadSession, err.Error())
	}
	return data, nil
}

func profileFromUser(u *tg.User, avatar []byte) domain.Profile {
	p := domain.Profile{
		ID:          u.ID,
		DisplayName: displayName(u),
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Username:    u.Username,
	}
	if len(avatar) > 0 {
		p.Avatar = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(avatar)
	}
	return p
}

// displayName returns the name shown for the account.
func displayName(u *tg.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return u.Username
	}
	return "User"
}
