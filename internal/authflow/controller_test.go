package authflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/danhigham/nickclock/internal/authflow"
	"github.com/danhigham/nickclock/internal/domain"
	"github.com/danhigham/nickclock/internal/telegram"
)

// scriptedConn plays the server side of a login: it asks for a code, then
// optionally for a password, and checks the answers.
type scriptedConn struct {
	mu sync.Mutex

	connected    bool
	authorized   bool
	needPassword bool
	wantCode     string
	wantPassword string
	// hangAfterCode blocks the handshake after the code until cancelled.
	hangAfterCode bool

	session     string
	phones      []string
	disconnects int
	authErrs    []error
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{connected: true, wantCode: "00000", wantPassword: "hunter2", session: "token-1"}
}

func (s *scriptedConn) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *scriptedConn) Authenticate(ctx context.Context, p telegram.Prompter) (err error) {
	defer func() {
		s.mu.Lock()
		s.authErrs = append(s.authErrs, err)
		s.mu.Unlock()
	}()

	if s.authorized {
		return nil
	}
	phone, err := p.Phone(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.phones = append(s.phones, phone)
	s.mu.Unlock()

	code, err := p.Code(ctx)
	if err != nil {
		return err
	}
	if code != s.wantCode {
		return &domain.AuthError{Kind: domain.InvalidCode, Err: errors.New("PHONE_CODE_INVALID")}
	}
	if s.hangAfterCode {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.needPassword {
		pw, err := p.Password(ctx)
		if err != nil {
			return err
		}
		if pw != s.wantPassword {
			return &domain.AuthError{Kind: domain.InvalidPassword, Err: errors.New("PASSWORD_HASH_INVALID")}
		}
	}
	return nil
}

func (s *scriptedConn) ExportSession(ctx context.Context) (string, error) {
	return s.session, nil
}

func (s *scriptedConn) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	s.connected = false
	return nil
}

func (s *scriptedConn) lastAuthErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.authErrs) == 0 {
		return nil
	}
	return s.authErrs[len(s.authErrs)-1]
}

func (s *scriptedConn) authRuns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.authErrs)
}

func newController(conn authflow.Connector) *authflow.Controller {
	c := authflow.NewController(conn, zap.NewNop())
	c.SetStepTimeout(2 * time.Second)
	return c
}

func TestController_CodeThenSuccess(t *testing.T) {
	conn := newScriptedConn()
	c := newController(conn)
	ctx := context.Background()

	res, err := c.StartAuth(ctx, "+15550100")
	require.NoError(t, err)
	assert.Equal(t, authflow.StepCode, res.Step)
	assert.Equal(t, domain.AuthStateAwaitingCode, c.State())

	res, err = c.SubmitCode(ctx, "00000")
	require.NoError(t, err)
	assert.Equal(t, authflow.StepSuccess, res.Step)
	assert.Equal(t, "token-1", res.Session)
	assert.Equal(t, domain.AuthStateSucceeded, c.State())
	assert.Equal(t, []string{"+15550100"}, conn.phones)
}

func TestController_CodePasswordWrong(t *testing.T) {
	conn := newScriptedConn()
	conn.needPassword = true
	c := newController(conn)
	ctx := context.Background()

	res, err := c.StartAuth(ctx, "+15550100")
	require.NoError(t, err)
	require.Equal(t, authflow.StepCode, res.Step)

	res, err = c.SubmitCode(ctx, "00000")
	require.NoError(t, err)
	assert.Equal(t, authflow.StepPassword, res.Step)
	assert.Equal(t, domain.AuthStateAwaitingPassword, c.State())

	res, err = c.SubmitPassword(ctx, "wrong")
	require.NoError(t, err)
	assert.Equal(t, authflow.StepError, res.Step)
	assert.Contains(t, res.ErrorMessage(), "PASSWORD_HASH_INVALID")
	kind, ok := domain.AuthKind(res.Err)
	require.True(t, ok)
	assert.Equal(t, domain.InvalidPassword, kind)

	assert.Equal(t, 1, conn.disconnects)
	assert.False(t, conn.Connected())
	assert.Equal(t, domain.AuthStateFailed, c.State())
}

func TestController_CodePasswordSuccess(t *testing.T) {
	conn := newScriptedConn()
	conn.needPassword = true
	c := newController(conn)
	ctx := context.Background()

	_, err := c.StartAuth(ctx, "+15550100")
	require.NoError(t, err)
	_, err = c.SubmitCode(ctx, "00000")
	require.NoError(t, err)

	res, err := c.SubmitPassword(ctx, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, authflow.StepSuccess, res.Step)
	assert.Equal(t, "token-1", res.Session)
	assert.Equal(t, 0, conn.disconnects)
}

func TestController_AlreadyAuthorized(t *testing.T) {
	conn := newScriptedConn()
	conn.authorized = true
	c := newController(conn)

	res, err := c.StartAuth(context.Background(), "+15550100")
	require.NoError(t, err)
	assert.Equal(t, authflow.StepSuccess, res.Step)
	assert.Equal(t, "token-1", res.Session)
}

func TestController_SubmitWithoutPendingRequest(t *testing.T) {
	c := newController(newScriptedConn())

	_, err := c.SubmitCode(context.Background(), "00000")
	assert.ErrorIs(t, err, domain.ErrNoPendingRequest)

	_, err = c.SubmitPassword(context.Background(), "pw")
	assert.ErrorIs(t, err, domain.ErrNoPendingRequest)
}

func TestController_CodeSlotResolvedOnlyOnce(t *testing.T) {
	conn := newScriptedConn()
	conn.needPassword = true
	c := newController(conn)
	ctx := context.Background()

	_, err := c.StartAuth(ctx, "+15550100")
	require.NoError(t, err)
	_, err = c.SubmitCode(ctx, "00000")
	require.NoError(t, err)

	_, err = c.SubmitCode(ctx, "00000")
	assert.ErrorIs(t, err, domain.ErrNoPendingRequest)
}

func TestController_RejectsConcurrentStart(t *testing.T) {
	c := newController(newScriptedConn())
	ctx := context.Background()

	_, err := c.StartAuth(ctx, "+15550100")
	require.NoError(t, err)

	_, err = c.StartAuth(ctx, "+15550100")
	assert.ErrorIs(t, err, domain.ErrAlreadyInProgress)
}

func TestController_RequiresConnection(t *testing.T) {
	conn := newScriptedConn()
	conn.connected = false
	c := newController(conn)

	_, err := c.StartAuth(context.Background(), "+15550100")
	assert.True(t, domain.IsNotConnected(err))
	assert.Equal(t, domain.AuthStateIdle, c.State())
}

func TestController_InvalidCodeAllowsRestart(t *testing.T) {
	conn := newScriptedConn()
	c := newController(conn)
	ctx := context.Background()

	_, err := c.StartAuth(ctx, "+15550100")
	require.NoError(t, err)

	res, err := c.SubmitCode(ctx, "11111")
	require.NoError(t, err)
	assert.Equal(t, authflow.StepError, res.Step)
	kind, _ := domain.AuthKind(res.Err)
	assert.Equal(t, domain.InvalidCode, kind)
	assert.Equal(t, domain.AuthStateFailed, c.State())
	assert.Equal(t, 0, conn.disconnects)

	res, err = c.StartAuth(ctx, "+15550100")
	require.NoError(t, err)
	assert.Equal(t, authflow.StepCode, res.Step)
}

func TestController_ResetAbandonsHandshake(t *testing.T) {
	conn := newScriptedConn()
	c := newController(conn)
	ctx := context.Background()

	_, err := c.StartAuth(ctx, "+15550100")
	require.NoError(t, err)

	c.Reset()
	assert.Equal(t, domain.AuthStateIdle, c.State())

	_, err = c.SubmitCode(ctx, "00000")
	assert.ErrorIs(t, err, domain.ErrNoPendingRequest)

	require.Eventually(t, func() bool { return conn.authRuns() == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, conn.lastAuthErr(), context.Canceled)
}

func TestController_StepTimeout(t *testing.T) {
	conn := newScriptedConn()
	conn.hangAfterCode = true
	c := newController(conn)
	c.SetStepTimeout(50 * time.Millisecond)
	ctx := context.Background()

	_, err := c.StartAuth(ctx, "+15550100")
	require.NoError(t, err)

	res, err := c.SubmitCode(ctx, "00000")
	require.NoError(t, err)
	assert.Equal(t, authflow.StepError, res.Step)
	kind, _ := domain.AuthKind(res.Err)
	assert.Equal(t, domain.HandshakeFailure, kind)
	assert.Equal(t, domain.AuthStateFailed, c.State())

	require.Eventually(t, func() bool { return conn.authRuns() == 1 }, time.Second, 5*time.Millisecond)
}

func TestController_StateHook(t *testing.T) {
	conn := newScriptedConn()
	c := newController(conn)

	var (
		mu     sync.Mutex
		states []domain.AuthState
	)
	c.SetOnStateChange(func(s domain.AuthState) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	})

	ctx := context.Background()
	_, err := c.StartAuth(ctx, "+15550100")
	require.NoError(t, err)
	_, err = c.SubmitCode(ctx, "00000")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.AuthState{
		domain.AuthStateConnecting,
		domain.AuthStateAwaitingCode,
		domain.AuthStateConnecting,
		domain.AuthStateSucceeded,
	}, states)
}
