// Package app is the boundary the front ends talk to. It sequences the
// connector, the login controller and the refresh scheduler, and keeps the
// persisted config in step with them.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/danhigham/nickclock/internal/authflow"
	"github.com/danhigham/nickclock/internal/config"
	"github.com/danhigham/nickclock/internal/domain"
	"github.com/danhigham/nickclock/internal/nickname"
	"github.com/danhigham/nickclock/internal/scheduler"
	"github.com/danhigham/nickclock/internal/state"
	"github.com/danhigham/nickclock/internal/telegram"
)

type Screen int

const (
	ScreenCredentials Screen = iota
	ScreenLogin
	ScreenMain
)

func (s Screen) String() string {
	switch s {
	case ScreenCredentials:
		return "credentials"
	case ScreenLogin:
		return "login"
	default:
		return "main"
	}
}

var (
	ErrCredentialsRequired = errors.New("api id and api hash are required")
	ErrInvalidAPIID        = errors.New("api id must be a number")
	ErrInvalidTimezone     = fmt.Errorf("timezone must be between UTC%+d and UTC%+d", nickname.MinTimezone, nickname.MaxTimezone)
	ErrNotLoggedIn         = errors.New("not logged in")
)

// Connector is the remote handle as the service uses it.
type Connector interface {
	Connect(ctx context.Context, creds domain.Credentials, token string) error
	Connected() bool
	Profile(ctx context.Context) (domain.Profile, error)
	FirstName(ctx context.Context) (string, error)
	UpdateDisplayName(ctx context.Context, firstName, lastName string) (bool, error)
	Authenticate(ctx context.Context, p telegram.Prompter) error
	ExportSession(ctx context.Context) (string, error)
	Disconnect(ctx context.Context) error
}

type Option func(*options)

type options struct {
	clock       clockwork.Clock
	stepTimeout time.Duration
}

func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithStepTimeout(d time.Duration) Option {
	return func(o *options) { o.stepTimeout = d }
}

type Service struct {
	conn      Connector
	cfg       *config.Store
	store     *state.Store
	auth      *authflow.Controller
	scheduler *scheduler.Scheduler
	clock     clockwork.Clock
	logger    *zap.Logger
}

func NewService(conn Connector, cfg *config.Store, store *state.Store, logger *zap.Logger, opts ...Option) *Service {
	o := options{
		clock:       clockwork.NewRealClock(),
		stepTimeout: authflow.DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{
		conn:   conn,
		cfg:    cfg,
		store:  store,
		clock:  o.clock,
		logger: logger,
	}

	s.auth = authflow.NewController(conn, logger.Named("auth"))
	s.auth.SetStepTimeout(o.stepTimeout)
	s.auth.SetOnStateChange(store.SetAuthState)

	s.scheduler = scheduler.New(conn, s.targetName, logger.Named("scheduler"), scheduler.WithClock(o.clock))
	s.scheduler.SetOnEvent(store.OnActivity)

	c := cfg.Get()
	store.SetTimezone(c.Timezone)
	return s
}

func (s *Service) Config() config.Config {
	return s.cfg.Get()
}

// Boot decides the first screen and, for a stored session, brings the
// account back to where it was left.
func (s *Service) Boot(ctx context.Context) (Screen, error) {
	c := s.cfg.Get()
	if !c.Credentials().Valid() {
		return ScreenCredentials, nil
	}
	if c.Session == "" {
		return ScreenLogin, nil
	}

	if err := s.resume(ctx, c); err != nil {
		s.logger.Error("Failed to resume session", zap.Error(err))
		if domain.IsSessionInvalid(err) {
			s.logger.Info("Session invalid, clearing")
			if derr := s.conn.Disconnect(ctx); derr != nil {
				s.logger.Warn("Failed to disconnect", zap.Error(derr))
			}
			if uerr := s.cfg.Update(func(c *config.Config) { c.Session = "" }); uerr != nil {
				return ScreenLogin, uerr
			}
		}
		return ScreenLogin, err
	}

	if c.AutoUpdate {
		s.store.SetAutoUpdate(true)
		s.scheduler.Start(ctx)
	}
	return ScreenMain, nil
}

func (s *Service) resume(ctx context.Context, c config.Config) error {
	if err := s.conn.Connect(ctx, c.Credentials(), c.Session); err != nil {
		return err
	}
	profile, err := s.Profile(ctx)
	if err != nil {
		return err
	}

	if c.AutoUpdate && c.OriginalNickname == "" {
		base := nickname.BaseName(profile.DisplayName)
		s.logger.Info("Recovered base name from current name", zap.String("base", base))
		return s.cfg.Update(func(c *config.Config) { c.OriginalNickname = base })
	}
	return nil
}

// SaveCredentials validates and persists the application credentials.
func (s *Service) SaveCredentials(apiID, apiHash string) error {
	apiID = strings.TrimSpace(apiID)
	apiHash = strings.TrimSpace(apiHash)
	if apiID == "" || apiHash == "" {
		return ErrCredentialsRequired
	}
	for _, r := range apiID {
		if r < '0' || r > '9' {
			return ErrInvalidAPIID
		}
	}
	id, err := strconv.Atoi(apiID)
	if err != nil || id <= 0 {
		return ErrInvalidAPIID
	}
	return s.cfg.Update(func(c *config.Config) {
		c.APIID = id
		c.APIHash = apiHash
	})
}

// Connect opens the handle with the stored credentials and session.
func (s *Service) Connect(ctx context.Context) error {
	c := s.cfg.Get()
	return s.conn.Connect(ctx, c.Credentials(), c.Session)
}

// Login opens a fresh handle and starts the handshake for phone.
func (s *Service) Login(ctx context.Context, phone string) (authflow.Result, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return authflow.Result{}, errors.New("phone number is required")
	}
	s.auth.Reset()

	c := s.cfg.Get()
	if err := s.conn.Connect(ctx, c.Credentials(), ""); err != nil {
		return authflow.Result{}, err
	}
	return s.StartAuth(ctx, phone)
}

func (s *Service) StartAuth(ctx context.Context, phone string) (authflow.Result, error) {
	res, err := s.auth.StartAuth(ctx, phone)
	return s.settle(ctx, res, err)
}

func (s *Service) SubmitCode(ctx context.Context, code string) (authflow.Result, error) {
	res, err := s.auth.SubmitCode(ctx, strings.TrimSpace(code))
	return s.settle(ctx, res, err)
}

func (s *Service) SubmitPassword(ctx context.Context, password string) (authflow.Result, error) {
	res, err := s.auth.SubmitPassword(ctx, password)
	return s.settle(ctx, res, err)
}

// settle persists the session of a successful handshake and loads the
// profile.
func (s *Service) settle(ctx context.Context, res authflow.Result, err error) (authflow.Result, error) {
	if err != nil || res.Step != authflow.StepSuccess {
		return res, err
	}
	if err := s.cfg.Update(func(c *config.Config) { c.Session = res.Session }); err != nil {
		return res, fmt.Errorf("save session: %w", err)
	}
	if _, err := s.Profile(ctx); err != nil {
		s.logger.Error("Failed to load profile after login", zap.Error(err))
	}
	return res, nil
}

// Profile fetches the account snapshot and caches it for display.
func (s *Service) Profile(ctx context.Context) (domain.Profile, error) {
	p, err := s.conn.Profile(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	s.store.SetProfile(&p)
	return p, nil
}

func (s *Service) UpdateDisplayName(ctx context.Context, firstName, lastName string) error {
	_, err := s.conn.UpdateDisplayName(ctx, firstName, lastName)
	return err
}

func (s *Service) ExportSession(ctx context.Context) (string, error) {
	return s.conn.ExportSession(ctx)
}

// Disconnect stops everything that uses the handle and closes it.
func (s *Service) Disconnect(ctx context.Context) error {
	s.scheduler.Stop()
	s.auth.Reset()
	return s.conn.Disconnect(ctx)
}

// SetAutoUpdate turns periodic refresh on or off. Enabling captures the
// base name once; disabling puts it back.
func (s *Service) SetAutoUpdate(ctx context.Context, enabled bool) error {
	c := s.cfg.Get()
	if !enabled {
		if !c.AutoUpdate && !s.scheduler.Running() {
			return nil
		}
		s.scheduler.Disable(ctx, c.OriginalNickname)
		s.store.SetAutoUpdate(false)
		return s.cfg.Update(func(c *config.Config) { c.AutoUpdate = false })
	}

	if !s.conn.Connected() {
		return ErrNotLoggedIn
	}
	base := c.OriginalNickname
	if base == "" {
		profile, err := s.Profile(ctx)
		if err != nil {
			return err
		}
		base = nickname.BaseName(profile.DisplayName)
		s.logger.Info("Captured base name", zap.String("base", base))
	}
	if err := s.cfg.Update(func(c *config.Config) {
		c.AutoUpdate = true
		c.OriginalNickname = base
	}); err != nil {
		return err
	}

	s.scheduler.Stop()
	s.store.SetAutoUpdate(true)
	s.scheduler.Start(ctx)
	return nil
}

// SetTimezone changes the UTC offset used from the next refresh on.
func (s *Service) SetTimezone(offset int) error {
	if !nickname.ValidTimezone(offset) {
		return ErrInvalidTimezone
	}
	if err := s.cfg.Update(func(c *config.Config) { c.Timezone = offset }); err != nil {
		return err
	}
	s.store.SetTimezone(offset)
	return nil
}

func (s *Service) SetAutoStart(on bool) error {
	return s.cfg.Update(func(c *config.Config) { c.AutoStart = on })
}

func (s *Service) SetStartInTray(on bool) error {
	return s.cfg.Update(func(c *config.Config) { c.StartInTray = on })
}

// Logout forgets the session and closes the handle. The name is left as it
// is on the server.
func (s *Service) Logout(ctx context.Context) error {
	s.scheduler.Stop()
	s.auth.Reset()
	if err := s.cfg.Update(func(c *config.Config) { c.Session = "" }); err != nil {
		return err
	}
	s.store.Reset()
	if err := s.conn.Disconnect(ctx); err != nil {
		s.logger.Warn("Failed to disconnect on logout", zap.Error(err))
	}
	return nil
}

// Preview returns the name the next refresh would publish.
func (s *Service) Preview() string {
	return s.targetName(s.clock.Now())
}

func (s *Service) SchedulerRunning() bool {
	return s.scheduler.Running()
}

// Shutdown stops the scheduler and closes the handle without touching the
// persisted config.
func (s *Service) Shutdown(ctx context.Context) {
	s.scheduler.Stop()
	s.auth.Reset()
	if err := s.conn.Disconnect(ctx); err != nil {
		s.logger.Warn("Failed to disconnect on shutdown", zap.Error(err))
	}
}

func (s *Service) targetName(now time.Time) string {
	c := s.cfg.Get()
	base := c.OriginalNickname
	if base == "" {
		if p := s.store.GetProfile(); p != nil {
			base = nickname.BaseName(p.DisplayName)
		}
	}
	return nickname.Format(base, c.Timezone, now)
}
