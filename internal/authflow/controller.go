// Package authflow turns the blocking, callback-driven Telegram login into
// discrete steps that a caller drives one request at a time.
//
// StartAuth launches the handshake in the background and returns as soon as
// it needs a code or password (or finishes). Each requirement parks the
// handshake on a single-use slot; SubmitCode and SubmitPassword resolve the
// slot and report what the handshake did next.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danhigham/nickclock/internal/domain"
	"github.com/danhigham/nickclock/internal/telegram"
)

const DefaultStepTimeout = 30 * time.Second

// Connector is the part of telegram.Connector the controller drives.
type Connector interface {
	Connected() bool
	Authenticate(ctx context.Context, p telegram.Prompter) error
	ExportSession(ctx context.Context) (string, error)
	Disconnect(ctx context.Context) error
}

type Step string

const (
	StepCode     Step = "code"
	StepPassword Step = "password"
	StepSuccess  Step = "success"
	StepError    Step = "error"
)

// Result is the outcome of one step. Session is set on StepSuccess, Err on
// StepError.
type Result struct {
	Step    Step
	Session string
	Err     error
}

// ErrorMessage returns Err's text, or "" for non-error steps.
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

type eventKind int

const (
	eventCode eventKind = iota
	eventPassword
	eventDone
)

type event struct {
	kind eventKind
	err  error
}

// slot is a single-use handoff from a submit call to the waiting handshake.
type slot chan string

type Controller struct {
	conn        Connector
	logger      *zap.Logger
	stepTimeout time.Duration

	mu           sync.Mutex
	state        domain.AuthState
	phone        string
	codeSlot     slot
	passwordSlot slot
	events       chan event
	cancel       context.CancelFunc
	onState      func(domain.AuthState)
}

func NewController(conn Connector, logger *zap.Logger) *Controller {
	return &Controller{
		conn:        conn,
		logger:      logger,
		stepTimeout: DefaultStepTimeout,
	}
}

// SetStepTimeout bounds how long a submit waits for the handshake's next
// event.
func (c *Controller) SetStepTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepTimeout = d
}

// SetOnStateChange registers a hook invoked after every transition.
func (c *Controller) SetOnStateChange(fn func(domain.AuthState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *Controller) State() domain.AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// setStateLocked must be called with mu held; the hook runs after unlock.
func (c *Controller) setStateLocked(s domain.AuthState) func() {
	c.state = s
	fn := c.onState
	if fn == nil {
		return func() {}
	}
	return func() { fn(s) }
}

// StartAuth begins a handshake for phone and returns at the first
// requirement or terminal outcome.
func (c *Controller) StartAuth(ctx context.Context, phone string) (Result, error) {
	if !c.conn.Connected() {
		return Result{}, domain.NewConnectionError(domain.NotConnected, nil)
	}

	c.mu.Lock()
	if !c.state.Terminal() {
		c.mu.Unlock()
		return Result{}, domain.ErrAlreadyInProgress
	}
	hsCtx, cancel := context.WithCancel(context.Background())
	events := make(chan event, 2)
	c.phone = phone
	c.codeSlot = nil
	c.passwordSlot = nil
	c.events = events
	c.cancel = cancel
	notify := c.setStateLocked(domain.AuthStateConnecting)
	c.mu.Unlock()
	notify()

	c.logger.Info("Starting auth handshake")
	go c.run(hsCtx, events)

	return c.await(ctx, events)
}

// SubmitCode resolves the pending code requirement.
func (c *Controller) SubmitCode(ctx context.Context, code string) (Result, error) {
	c.mu.Lock()
	s := c.codeSlot
	if s == nil {
		c.mu.Unlock()
		return Result{}, domain.ErrNoPendingRequest
	}
	c.codeSlot = nil
	events := c.events
	notify := c.setStateLocked(domain.AuthStateConnecting)
	c.mu.Unlock()
	notify()

	s <- code
	return c.await(ctx, events)
}

// SubmitPassword resolves the pending password requirement. A rejected
// password tears the connection down: the handle is left in an
// indeterminate state and the caller restarts from the phone step.
func (c *Controller) SubmitPassword(ctx context.Context, password string) (Result, error) {
	c.mu.Lock()
	s := c.passwordSlot
	if s == nil {
		c.mu.Unlock()
		return Result{}, domain.ErrNoPendingRequest
	}
	c.passwordSlot = nil
	events := c.events
	notify := c.setStateLocked(domain.AuthStateConnecting)
	c.mu.Unlock()
	notify()

	s <- password
	res, err := c.await(ctx, events)
	if err == nil && res.Step == StepError {
		if derr := c.conn.Disconnect(ctx); derr != nil {
			c.logger.Warn("Failed to disconnect after password failure", zap.Error(derr))
		}
	}
	return res, err
}

// Reset abandons any running handshake and returns to Idle.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = nil
	c.codeSlot = nil
	c.passwordSlot = nil
	c.events = nil
	notify := c.setStateLocked(domain.AuthStateIdle)
	c.mu.Unlock()
	notify()
}

// await waits for the handshake's next event and turns it into a Result.
func (c *Controller) await(ctx context.Context, events chan event) (Result, error) {
	c.mu.Lock()
	timeout := c.stepTimeout
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-events:
		switch ev.kind {
		case eventCode:
			return Result{Step: StepCode}, nil
		case eventPassword:
			return Result{Step: StepPassword}, nil
		default:
			return c.finish(ctx, events, ev.err), nil
		}
	case <-timer.C:
		c.logger.Warn("Auth step timed out", zap.Duration("timeout", timeout))
		c.abort(events)
		return c.fail(events, &domain.AuthError{
			Kind: domain.HandshakeFailure,
			Err:  fmt.Errorf("no response from server within %s", timeout),
		}), nil
	case <-ctx.Done():
		// Nobody is left to read the next event; abandon the handshake.
		c.abort(events)
		c.fail(events, ctx.Err())
		return Result{}, ctx.Err()
	}
}

// finish records the terminal outcome of the handshake.
func (c *Controller) finish(ctx context.Context, events chan event, err error) Result {
	if err != nil {
		c.logger.Error("Auth failed", zap.Error(err))
		return c.fail(events, err)
	}

	session, err := c.conn.ExportSession(ctx)
	if err != nil {
		c.logger.Error("Failed to export session", zap.Error(err))
		return c.fail(events, err)
	}

	c.mu.Lock()
	if c.events != events {
		c.mu.Unlock()
		return Result{Step: StepError, Err: errors.New("authentication was reset")}
	}
	c.clearLocked()
	notify := c.setStateLocked(domain.AuthStateSucceeded)
	c.mu.Unlock()
	notify()

	c.logger.Info("Auth completed successfully")
	return Result{Step: StepSuccess, Session: session}
}

func (c *Controller) fail(events chan event, err error) Result {
	c.mu.Lock()
	if c.events == events {
		c.clearLocked()
		notify := c.setStateLocked(domain.AuthStateFailed)
		c.mu.Unlock()
		notify()
	} else {
		c.mu.Unlock()
	}
	return Result{Step: StepError, Err: err}
}

func (c *Controller) abort(events chan event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events == events && c.cancel != nil {
		c.cancel()
	}
}

func (c *Controller) clearLocked() {
	c.codeSlot = nil
	c.passwordSlot = nil
	c.events = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// run is the handshake task.
func (c *Controller) run(ctx context.Context, events chan event) {
	err := c.conn.Authenticate(ctx, &prompter{c: c, events: events})
	events <- event{kind: eventDone, err: err}
}

// prompter answers the handshake's callbacks by parking it on slots.
type prompter struct {
	c      *Controller
	events chan event
}

func (p *prompter) Phone(ctx context.Context) (string, error) {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	return p.c.phone, nil
}

func (p *prompter) Code(ctx context.Context) (string, error) {
	return p.park(ctx, eventCode)
}

func (p *prompter) Password(ctx context.Context) (string, error) {
	return p.park(ctx, eventPassword)
}

// park opens a slot for the requirement, announces it, and waits.
func (p *prompter) park(ctx context.Context, kind eventKind) (string, error) {
	s := make(slot, 1)

	p.c.mu.Lock()
	if p.c.events != p.events {
		p.c.mu.Unlock()
		return "", errors.New("authentication was reset")
	}
	var notify func()
	if kind == eventCode {
		p.c.codeSlot = s
		notify = p.c.setStateLocked(domain.AuthStateAwaitingCode)
		p.c.logger.Info("Phone code requested")
	} else {
		p.c.passwordSlot = s
		notify = p.c.setStateLocked(domain.AuthStateAwaitingPassword)
		p.c.logger.Info("Password requested")
	}
	p.c.mu.Unlock()
	notify()

	p.events <- event{kind: kind}

	select {
	case v := <-s:
		return v, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
