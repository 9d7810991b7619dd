package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/danhigham/nickclock/internal/domain"
)

// ---- fakes ----

type fakeConn struct {
	mu sync.Mutex

	user     tg.User
	selfErr  error
	photo    []byte
	photoErr error
	authErr  error
	session  []byte
	alive    bool

	selfCalls     int
	updateCalls   int
	downloadCalls int
	closeCalls    int
	lastFirst     string
	lastLast      string
	// dropOnUpdate marks the connection dead and fails the next update.
	dropOnUpdate bool
}

func newFakeConn(first string) *fakeConn {
	return &fakeConn{user: tg.User{ID: 42, FirstName: first, LastName: "Smith", Username: "alice"}, alive: true, session: []byte("blob")}
}

func (f *fakeConn) Self(ctx context.Context) (*tg.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selfCalls++
	if f.selfErr != nil {
		return nil, f.selfErr
	}
	u := f.user
	return &u, nil
}

func (f *fakeConn) UpdateProfile(ctx context.Context, firstName, lastName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.dropOnUpdate {
		f.dropOnUpdate = false
		f.alive = false
		return errors.New("connection reset")
	}
	f.lastFirst, f.lastLast = firstName, lastName
	f.user.FirstName, f.user.LastName = firstName, lastName
	return nil
}

func (f *fakeConn) DownloadProfilePhoto(ctx context.Context, user *tg.User) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadCalls++
	return f.photo, f.photoErr
}

func (f *fakeConn) Authenticate(ctx context.Context, p Prompter) error {
	return f.authErr
}

func (f *fakeConn) Session(ctx context.Context) ([]byte, error) {
	return f.session, nil
}

func (f *fakeConn) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeConn) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	f.alive = false
	return nil
}

type fakeDialer struct {
	mu       sync.Mutex
	conns    []*fakeConn
	errs     []error
	calls    int
	sessions [][]byte
}

func (d *fakeDialer) Dial(ctx context.Context, creds domain.Credentials, session []byte) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.sessions = append(d.sessions, session)
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(d.conns) == 0 {
		return nil, errors.New("no more connections")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

// hangingDialer blocks every dial until its context ends.
type hangingDialer struct {
	entered chan struct{}
}

func (d *hangingDialer) Dial(ctx context.Context, creds domain.Credentials, session []byte) (Conn, error) {
	d.entered <- struct{}{}
	<-ctx.Done()
	return nil, ctx.Err()
}

var testCreds = domain.Credentials{APIID: 12345, APIHash: "abcdef"}

func newTestConnector(d Dialer) *Connector {
	return NewConnector(d, zap.NewNop(), WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}))
}

// ---- tests ----

func TestConnector_ConnectRequiresCredentials(t *testing.T) {
	c := newTestConnector(&fakeDialer{})
	err := c.Connect(context.Background(), domain.Credentials{}, "")
	require.Error(t, err)
	assert.True(t, domain.IsNotConnected(err))
}

func TestConnector_ConnectWithoutSessionSkipsProbe(t *testing.T) {
	conn := newFakeConn("Alice")
	c := newTestConnector(&fakeDialer{conns: []*fakeConn{conn}})

	require.NoError(t, c.Connect(context.Background(), testCreds, ""))
	assert.True(t, c.Connected())
	assert.Equal(t, 0, conn.selfCalls)
}

func TestConnector_ConnectProbesSession(t *testing.T) {
	conn := newFakeConn("Alice")
	d := &fakeDialer{conns: []*fakeConn{conn}}
	c := newTestConnector(d)

	token := EncodeSession([]byte("stored"))
	require.NoError(t, c.Connect(context.Background(), testCreds, token))
	assert.Equal(t, 1, conn.selfCalls)
	assert.Equal(t, []byte("stored"), d.sessions[0])
}

func TestConnector_DisconnectAbortsHungConnect(t *testing.T) {
	d := &hangingDialer{entered: make(chan struct{}, 1)}
	c := NewConnector(d, zap.NewNop(), WithDialTimeout(time.Hour))

	errc := make(chan error, 1)
	go func() {
		errc <- c.Connect(context.Background(), testCreds, "")
	}()
	<-d.entered

	// Neither call may wait for the dial.
	assert.False(t, c.Connected())
	require.NoError(t, c.Disconnect(context.Background()))

	select {
	case err := <-errc:
		require.Error(t, err)
		assert.True(t, domain.IsNotConnected(err))
	case <-time.After(5 * time.Second):
		t.Fatal("Connect did not return after Disconnect")
	}
	assert.False(t, c.Connected())
}

func TestConnector_ConnectInvalidSession(t *testing.T) {
	conn := newFakeConn("Alice")
	conn.selfErr = tgerr.New(401, "AUTH_KEY_UNREGISTERED")
	c := newTestConnector(&fakeDialer{conns: []*fakeConn{conn}})

	err := c.Connect(context.Background(), testCreds, EncodeSession([]byte("stale")))
	require.Error(t, err)
	assert.True(t, domain.IsSessionInvalid(err))
	assert.False(t, c.Connected())
	assert.Equal(t, 1, conn.closeCalls)
}

func TestConnector_ConnectPasswordNeededIsSessionInvalid(t *testing.T) {
	conn := newFakeConn("Alice")
	conn.selfErr = tgerr.New(401, "SESSION_PASSWORD_NEEDED")
	c := newTestConnector(&fakeDialer{conns: []*fakeConn{conn}})

	err := c.Connect(context.Background(), testCreds, EncodeSession([]byte("half")))
	assert.True(t, domain.IsSessionInvalid(err))
}

func TestConnector_ConnectMalformedToken(t *testing.T) {
	d := &fakeDialer{}
	c := newTestConnector(d)

	err := c.Connect(context.Background(), testCreds, "not base64 !!!")
	assert.True(t, domain.IsSessionInvalid(err))
	assert.Equal(t, 0, d.calls)
}

func TestConnector_ConnectRetriesTransportFailures(t *testing.T) {
	conn := newFakeConn("Alice")
	d := &fakeDialer{
		conns: []*fakeConn{conn},
		errs:  []error{errors.New("dial tcp: refused"), errors.New("dial tcp: refused")},
	}
	c := newTestConnector(d)

	require.NoError(t, c.Connect(context.Background(), testCreds, ""))
	assert.Equal(t, 3, d.calls)
}

func TestConnector_ConnectGivesUp(t *testing.T) {
	boom := errors.New("dial tcp: refused")
	d := &fakeDialer{errs: []error{boom, boom, boom, boom}}
	c := newTestConnector(d)

	err := c.Connect(context.Background(), testCreds, "")
	require.Error(t, err)
	var ce *domain.ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.TransportFailure, ce.Kind)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, d.calls)
}

func TestConnector_ReconnectTearsDownOldHandle(t *testing.T) {
	first := newFakeConn("Alice")
	second := newFakeConn("Alice")
	c := newTestConnector(&fakeDialer{conns: []*fakeConn{first, second}})

	require.NoError(t, c.Connect(context.Background(), testCreds, ""))
	require.NoError(t, c.Connect(context.Background(), testCreds, ""))
	assert.Equal(t, 1, first.closeCalls)
	assert.Equal(t, 0, second.closeCalls)
}

func TestConnector_UpdateDisplayNameIdempotent(t *testing.T) {
	conn := newFakeConn("Alice | 09:05 | day")
	c := newTestConnector(&fakeDialer{conns: []*fakeConn{conn}})
	require.NoError(t, c.Connect(context.Background(), testCreds, ""))

	applied, err := c.UpdateDisplayName(context.Background(), "Alice | 09:05 | day", "")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 0, conn.updateCalls)
}

func TestConnector_UpdateDisplayNameKeepsLastName(t *testing.T) {
	conn := newFakeConn("Alice")
	c := newTestConnector(&fakeDialer{conns: []*fakeConn{conn}})
	require.NoError(t, c.Connect(context.Background(), testCreds, ""))

	applied, err := c.UpdateDisplayName(context.Background(), "Alice | 09:05 | day", "")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, conn.updateCalls)
	assert.Equal(t, "Alice | 09:05 | day", conn.lastFirst)
	assert.Equal(t, "Smith", conn.lastLast)
}

func TestConnector_UpdateDisplayNameNotConnected(t *testing.T) {
	c := newTestConnector(&fakeDialer{})
	_, err := c.UpdateDisplayName(context.Background(), "Alice", "")
	assert.True(t, domain.IsNotConnected(err))
}

func TestConnector_ProfileReconnectsWhenDisconnected(t *testing.T) {
	first := newFakeConn("Alice")
	second := newFakeConn("Alice")
	second.photo = []byte{0xff, 0xd8}
	second.user.SetPhoto(&tg.UserProfilePhoto{PhotoID: 7})
	d := &fakeDialer{conns: []*fakeConn{first, second}}
	c := newTestConnector(d)
	require.NoError(t, c.Connect(context.Background(), testCreds, ""))

	first.mu.Lock()
	first.alive = false
	first.mu.Unlock()

	p, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, d.calls)
	assert.Equal(t, []byte("blob"), d.sessions[1])
	assert.Equal(t, "Alice", p.DisplayName)
	assert.Equal(t, int64(42), p.ID)
	assert.Equal(t, "data:image/jpeg;base64,/9g=", p.Avatar)
	assert.Equal(t, 0, first.downloadCalls)
	assert.Equal(t, 1, second.downloadCalls)
}

func TestConnector_ProfilePhotoFailureIsNotFatal(t *testing.T) {
	conn := newFakeConn("")
	conn.user.SetPhoto(&tg.UserProfilePhoto{PhotoID: 7})
	conn.photoErr = errors.New("file reference expired")
	c := newTestConnector(&fakeDialer{conns: []*fakeConn{conn}})
	require.NoError(t, c.Connect(context.Background(), testCreds, ""))

	p, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, p.Avatar)
	assert.Equal(t, 1, conn.downloadCalls)
	assert.Equal(t, "alice", p.DisplayName)
}

func TestConnector_UpdateRetriesOnceAfterDrop(t *testing.T) {
	first := newFakeConn("Alice")
	first.dropOnUpdate = true
	second := newFakeConn("Alice")
	d := &fakeDialer{conns: []*fakeConn{first, second}}
	c := newTestConnector(d)
	require.NoError(t, c.Connect(context.Background(), testCreds, ""))

	applied, err := c.UpdateDisplayName(context.Background(), "Alice | 10:00 | day", "")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, first.updateCalls)
	assert.Equal(t, 1, second.updateCalls)
}

func TestConnector_ExportSession(t *testing.T) {
	conn := newFakeConn("Alice")
	c := newTestConnector(&fakeDialer{conns: []*fakeConn{conn}})

	_, err := c.ExportSession(context.Background())
	assert.True(t, domain.IsNotConnected(err))

	require.NoError(t, c.Connect(context.Background(), testCreds, ""))
	token, err := c.ExportSession(context.Background())
	require.NoError(t, err)

	data, err := DecodeSession(token)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), data)
}

func TestConnector_DisconnectIdempotent(t *testing.T) {
	conn := newFakeConn("Alice")
	c := newTestConnector(&fakeDialer{conns: []*fakeConn{conn}})
	require.NoError(t, c.Connect(context.Background(), testCreds, ""))

	require.NoError(t, c.Disconnect(context.Background()))
	require.NoError(t, c.Disconnect(context.Background()))
	assert.False(t, c.Connected())
	assert.Equal(t, 1, conn.closeCalls)
}

func TestConnector_AuthenticateClassifiesErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind domain.AuthErrorKind
	}{
		{"invalid code", tgerr.New(400, "PHONE_CODE_INVALID"), domain.InvalidCode},
		{"expired code", tgerr.New(400, "PHONE_CODE_EXPIRED"), domain.ExpiredCode},
		{"invalid password", tgerr.New(400, "PASSWORD_HASH_INVALID"), domain.InvalidPassword},
		{"other", errors.New("flood wait"), domain.HandshakeFailure},
		{"abandoned", context.Canceled, domain.HandshakeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newFakeConn("Alice")
			conn.authErr = tt.err
			c := newTestConnector(&fakeDialer{conns: []*fakeConn{conn}})
			require.NoError(t, c.Connect(context.Background(), testCreds, ""))

			err := c.Authenticate(context.Background(), nil)
			kind, ok := domain.AuthKind(err)
			require.True(t, ok, "expected AuthError, got %v", err)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	assert.Equal(t, "", EncodeSession(nil))
	data, err := DecodeSession("")
	require.NoError(t, err)
	assert.Nil(t, data)

	blob := []byte{0, 1, 2, 250, 251}
	data, err = DecodeSession(EncodeSession(blob))
	require.NoError(t, err)
	assert.Equal(t, blob, data)
}
