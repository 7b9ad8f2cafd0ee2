package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/sanbridge/internal/session"
	"github.com/systmms/sanbridge/tests/fakes"
)

const (
	rootPath     = "/objects"
	dataPath     = "/objects/1/pools"
	sessionsPath = "/objects/1/sessions"
)

// tokenProtocol is a minimal token-exchange protocol used to exercise the
// manager independently of any vendor.
type tokenProtocol struct {
	inFlight    int32
	maxInFlight int32
}

func (p *tokenProtocol) Name() string { return "stub-token" }

func (p *tokenProtocol) Login(ctx context.Context, c *session.Conn) (bool, error) {
	c.SetDevice(session.DeviceIdentity{StorageDeviceID: "1", Model: "stub", SerialNumber: "42"})
	return true, nil
}

func (p *tokenProtocol) Refresh(ctx context.Context, c *session.Conn) error {
	n := atomic.AddInt32(&p.inFlight, 1)
	defer atomic.AddInt32(&p.inFlight, -1)
	for {
		cur := atomic.LoadInt32(&p.maxInFlight)
		if n <= cur || atomic.CompareAndSwapInt32(&p.maxInFlight, cur, n) {
			break
		}
	}

	password, err := c.Password()
	if err != nil {
		return err
	}
	resp, err := c.Send(ctx, &session.Request{
		Method:    http.MethodPost,
		Path:      sessionsPath,
		BasicAuth: &session.BasicAuth{Username: c.Username(), Password: password},
	})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		if strings.Contains(resp.Text(), "authentication failed") {
			return session.ErrInvalidCredentials
		}
		return &session.BackendError{Op: "token", StatusCode: resp.StatusCode, Message: resp.Text()}
	}

	var body struct {
		SessionID string `json:"sessionId"`
		Token     string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return err
	}
	if err := c.SetSessionID(body.SessionID); err != nil {
		return err
	}
	return c.SealHeader("Authorization", "Session "+body.Token)
}

func (p *tokenProtocol) Logout(ctx context.Context, c *session.Conn) error {
	id, ok, err := c.SessionID()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if _, err := c.Call(ctx, &session.Request{Method: http.MethodDelete, Path: sessionsPath + "/" + id}); err != nil {
		return err
	}
	return c.Reset()
}

func (p *tokenProtocol) SessionInvalid(status int) bool { return status == 403 || status == 409 }

func (p *tokenProtocol) Bootstrap(path string) bool { return path == rootPath }

func (p *tokenProtocol) LogoutCall(method, path string) bool {
	return method == http.MethodDelete && strings.HasPrefix(path, sessionsPath+"/")
}

func (p *tokenProtocol) Payload(body []byte) (json.RawMessage, error) {
	return json.RawMessage(body), nil
}

// stubArray plays the array side: it mints tokens and rejects requests
// that do not carry the current one.
type stubArray struct {
	mu        sync.Mutex
	minted    int
	valid     string
	password  string
	dataReply func() (*session.Response, error)
	tokenSlow time.Duration
}

func newStubArray() *stubArray {
	return &stubArray{password: "s3cret"}
}

func (a *stubArray) revoke() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.valid = ""
}

func (a *stubArray) handle(req *session.Request) (*session.Response, error) {
	switch {
	case req.Method == http.MethodPost && req.Path == sessionsPath:
		if a.tokenSlow > 0 {
			time.Sleep(a.tokenSlow)
		}
		if req.BasicAuth == nil || req.BasicAuth.Password != a.password {
			return fakes.TextResponse(401, `{"message":"authentication failed"}`), nil
		}
		a.mu.Lock()
		a.minted++
		a.valid = fmt.Sprintf("tok-%d", a.minted)
		token := a.valid
		id := fmt.Sprintf("%d", a.minted)
		a.mu.Unlock()
		return fakes.JSONResponse(200, map[string]string{"sessionId": id, "token": token}), nil

	case req.Path == rootPath:
		return fakes.JSONResponse(200, map[string]string{"root": "yes"}), nil

	case req.Method == http.MethodDelete && strings.HasPrefix(req.Path, sessionsPath+"/"):
		if !a.authorized(req) {
			return fakes.TextResponse(403, "session invalid"), nil
		}
		return fakes.TextResponse(200, "{}"), nil

	default:
		if !a.authorized(req) {
			return fakes.TextResponse(403, "session invalid"), nil
		}
		if a.dataReply != nil {
			return a.dataReply()
		}
		return fakes.JSONResponse(200, map[string]int{"pools": 3}), nil
	}
}

func (a *stubArray) authorized(req *session.Request) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.valid != "" && req.Header["Authorization"] == "Session "+a.valid
}

func newManager(t *testing.T, arr *stubArray, observers ...session.Observer) (*session.Manager, *fakes.FakeTransport, *tokenProtocol, *fakes.FakeVault) {
	t.Helper()

	vault := fakes.NewFakeVault()
	creds, err := session.NewCredentials(vault, "maintenance", "s3cret")
	require.NoError(t, err)

	ft := fakes.NewFakeTransport(arr.handle)
	proto := &tokenProtocol{}
	mgr, err := session.New(proto, session.Config{
		Name:        "stub-array",
		Address:     "10.0.0.5",
		Credentials: creds,
		Vault:       vault,
		Dial:        ft.Dialer(),
		Observers:   observers,
	})
	require.NoError(t, err)
	return mgr, ft, proto, vault
}

func TestNewValidatesCollaborators(t *testing.T) {
	t.Parallel()

	vault := fakes.NewFakeVault()
	dial := fakes.NewFakeTransport(nil).Dialer()

	tests := []struct {
		name   string
		proto  session.Protocol
		cfg    session.Config
		errMsg string
	}{
		{name: "missing protocol", cfg: session.Config{Vault: vault, Dial: dial}, errMsg: "protocol"},
		{name: "missing vault", proto: &tokenProtocol{}, cfg: session.Config{Dial: dial}, errMsg: "vault"},
		{name: "missing dialer", proto: &tokenProtocol{}, cfg: session.Config{Vault: vault}, errMsg: "dialer"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := session.New(tt.proto, tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestGetInfoMintsTokenOnFirstRead(t *testing.T) {
	t.Parallel()

	arr := newStubArray()
	mgr, ft, _, _ := newManager(t, arr)
	ctx := context.Background()

	ok, err := mgr.Login(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	payload, err := mgr.GetInfo(ctx, dataPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pools":3}`, string(payload))
	assert.Equal(t, 1, ft.Count(http.MethodPost, sessionsPath))
	assert.Equal(t, 1, ft.Count(http.MethodGet, dataPath))

	_, err = mgr.GetInfo(ctx, dataPath)
	require.NoError(t, err)
	assert.Equal(t, 1, ft.Count(http.MethodPost, sessionsPath), "token is reused")
}

func TestGetInfoReturnsNilOnNon200(t *testing.T) {
	t.Parallel()

	arr := newStubArray()
	arr.dataReply = func() (*session.Response, error) {
		return fakes.TextResponse(404, "not found"), nil
	}
	mgr, _, _, _ := newManager(t, arr)

	payload, err := mgr.GetInfo(context.Background(), dataPath)
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestCall503FailsFastWithoutRetry(t *testing.T) {
	t.Parallel()

	arr := newStubArray()
	arr.dataReply = func() (*session.Response, error) {
		return fakes.TextResponse(503, "busy"), nil
	}
	mgr, ft, _, _ := newManager(t, arr)

	payload, err := mgr.GetInfo(context.Background(), dataPath)
	assert.Nil(t, payload)
	require.Error(t, err)

	var fault *session.HardFaultError
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, 503, fault.StatusCode)
	assert.True(t, session.IsHardFault(err))
	assert.Equal(t, 1, ft.Count(http.MethodGet, dataPath))
	assert.Equal(t, 1, ft.Count(http.MethodPost, sessionsPath), "only the initial token, no refresh")
}

func TestCallRetriesExactlyOnce(t *testing.T) {
	t.Parallel()

	arr := newStubArray()
	mgr, ft, _, _ := newManager(t, arr)
	ctx := context.Background()

	// The array keeps rejecting the resource even with a fresh token.
	arr.dataReply = func() (*session.Response, error) {
		return fakes.TextResponse(409, "session in use"), nil
	}

	resp, err := mgr.Call(ctx, &session.Request{Method: http.MethodGet, Path: dataPath})
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)
	assert.Equal(t, 2, ft.Count(http.MethodGet, dataPath))
	assert.Equal(t, 1, ft.Count(http.MethodPost, sessionsPath))
}

func TestCallReturnsOriginalResponseWhenRefreshFails(t *testing.T) {
	t.Parallel()

	arr := newStubArray()
	arr.password = "rotated"
	mgr, ft, _, _ := newManager(t, arr)

	resp, err := mgr.Call(context.Background(), &session.Request{Method: http.MethodGet, Path: dataPath})
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)
	assert.Equal(t, "session invalid", resp.Text())
	assert.Equal(t, 1, ft.Count(http.MethodGet, dataPath))
}

func TestGetInfoSurfacesInvalidCredentials(t *testing.T) {
	t.Parallel()

	arr := newStubArray()
	arr.password = "rotated"
	mgr, _, _, _ := newManager(t, arr)

	_, err := mgr.GetInfo(context.Background(), dataPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrInvalidCredentials)
}

func TestLogoutCallIsNeverRetried(t *testing.T) {
	t.Parallel()

	arr := newStubArray()
	mgr, ft, _, _ := newManager(t, arr)

	resp, err := mgr.Call(context.Background(), &session.Request{Method: http.MethodDelete, Path: sessionsPath + "/7"})
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)
	assert.Equal(t, "session invalid", resp.Text())
	assert.Equal(t, 1, ft.Count(http.MethodDelete, sessionsPath+"/7"))
	assert.Equal(t, 0, ft.Count(http.MethodPost, sessionsPath))
}

func TestConcurrentRejectionsRefreshOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping concurrency test in short mode")
	}
	t.Parallel()

	arr := newStubArray()
	arr.tokenSlow = 20 * time.Millisecond
	mgr, ft, proto, _ := newManager(t, arr)
	ctx := context.Background()

	_, err := mgr.GetInfo(ctx, dataPath)
	require.NoError(t, err)
	require.Equal(t, 1, ft.Count(http.MethodPost, sessionsPath))

	arr.revoke()

	const callers = 25
	var wg sync.WaitGroup
	wg.Add(callers)
	results := make(chan json.RawMessage, callers)
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			payload, err := mgr.GetInfo(ctx, dataPath)
			if err != nil {
				errs <- err
				return
			}
			results <- payload
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Timeout waiting for concurrent calls")
	}
	close(results)
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	n := 0
	for payload := range results {
		assert.JSONEq(t, `{"pools":3}`, string(payload))
		n++
	}
	assert.Equal(t, callers, n)
	assert.Equal(t, 2, ft.Count(http.MethodPost, sessionsPath), "one initial token plus one refresh")
	assert.Equal(t, int32(1), atomic.LoadInt32(&proto.maxInFlight))
}

func TestSharedStateOnlyHoldsSealedValues(t *testing.T) {
	t.Parallel()

	arr := newStubArray()
	mgr, ft, _, vault := newManager(t, arr)
	ctx := context.Background()

	_, err := mgr.Login(ctx)
	require.NoError(t, err)
	_, err = mgr.GetInfo(ctx, dataPath)
	require.NoError(t, err)

	snap := mgr.Snapshot()
	header := snap.SealedHeaders["Authorization"]
	require.NotEmpty(t, header)
	assert.True(t, fakes.IsSealed(header))
	assert.NotContains(t, header, "tok-1")
	assert.True(t, fakes.IsSealed(snap.SealedSessionID))

	opened, err := vault.Decode(header)
	require.NoError(t, err)
	assert.Equal(t, "Session tok-1", opened)

	// The wire saw plaintext, once, for the data request only.
	reqs := ft.Requests()
	last := reqs[len(reqs)-1]
	assert.Equal(t, "Session tok-1", last.Header["Authorization"])
}

func TestBootstrapPathSkipsAuthorization(t *testing.T) {
	t.Parallel()

	arr := newStubArray()
	mgr, ft, _, _ := newManager(t, arr)
	ctx := context.Background()

	_, err := mgr.GetInfo(ctx, dataPath)
	require.NoError(t, err)

	payload, err := mgr.GetInfo(ctx, rootPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"root":"yes"}`, string(payload))

	for _, r := range ft.Requests() {
		if r.Path == rootPath {
			assert.NotContains(t, r.Header, "Authorization")
		}
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	t.Parallel()

	arr := newStubArray()
	mgr, ft, _, _ := newManager(t, arr)
	ctx := context.Background()

	_, err := mgr.Login(ctx)
	require.NoError(t, err)
	_, err = mgr.GetInfo(ctx, dataPath)
	require.NoError(t, err)

	require.NoError(t, mgr.Logout(ctx))
	require.NoError(t, mgr.Logout(ctx))

	assert.Equal(t, 1, ft.Count(http.MethodDelete, sessionsPath+"/1"))
	assert.Equal(t, 1, ft.Closed())

	snap := mgr.Snapshot()
	assert.False(t, snap.Open)
	assert.Empty(t, snap.SealedSessionID)
	assert.Empty(t, snap.SealedHeaders)
	assert.Nil(t, snap.Device)
	_, ok := mgr.Device()
	assert.False(t, ok)
}

func TestLogoutWrapsFailures(t *testing.T) {
	t.Parallel()

	unreachable := &session.UnreachableError{Method: http.MethodDelete, URL: sessionsPath + "/1", Err: errors.New("connection refused")}
	failing := &failingProtocol{tokenProtocol: &tokenProtocol{}, err: unreachable}
	mgr, err := session.New(failing, session.Config{
		Vault: fakes.NewFakeVault(),
		Dial:  fakes.NewFakeTransport(nil).Dialer(),
	})
	require.NoError(t, err)

	err = mgr.Logout(context.Background())
	require.Error(t, err)
	var le *session.LogoutError
	require.ErrorAs(t, err, &le)
	assert.True(t, session.IsUnreachable(err))
	assert.Contains(t, err.Error(), "failed to logout")
}

type failingProtocol struct {
	*tokenProtocol
	err error
}

func (p *failingProtocol) Logout(ctx context.Context, c *session.Conn) error {
	return p.err
}

func TestTransportErrorsAreReturnedUnchanged(t *testing.T) {
	t.Parallel()

	want := &session.UnreachableError{Method: http.MethodGet, URL: dataPath, Err: errors.New("no route to host")}
	ft := fakes.NewFakeTransport(func(req *session.Request) (*session.Response, error) {
		return nil, want
	})
	mgr, err := session.New(&tokenProtocol{}, session.Config{Vault: fakes.NewFakeVault(), Dial: ft.Dialer()})
	require.NoError(t, err)

	_, err = mgr.Call(context.Background(), &session.Request{Path: dataPath})
	require.Error(t, err)
	var got *session.UnreachableError
	require.ErrorAs(t, err, &got)
	assert.Same(t, want, got)
	assert.Equal(t, 1, ft.Total())
}

func TestObserversSeeLifecycle(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var kinds []session.EventKind
	obs := session.ObserverFunc(func(e session.Event) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "stub-array", e.Array)
		assert.Equal(t, "stub-token", e.Protocol)
		kinds = append(kinds, e.Kind)
	})

	arr := newStubArray()
	mgr, _, _, _ := newManager(t, arr, obs)
	ctx := context.Background()

	_, err := mgr.Login(ctx)
	require.NoError(t, err)
	_, err = mgr.GetInfo(ctx, dataPath)
	require.NoError(t, err)
	require.NoError(t, mgr.Logout(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []session.EventKind{
		session.EventLogin,
		session.EventRefresh,
		session.EventCall,
		session.EventCall,
		session.EventLogout,
	}, kinds)
}

func TestCredentialsNeverPrintSecret(t *testing.T) {
	t.Parallel()

	creds, err := session.NewCredentials(fakes.NewFakeVault(), "admin", "p4ssw0rd")
	require.NoError(t, err)
	assert.NotContains(t, creds.String(), "p4ssw0rd")
	assert.NotContains(t, fmt.Sprintf("%v", creds), "p4ssw0rd")
	assert.True(t, fakes.IsSealed(creds.Sealed()))

	_, err = session.NewCredentials(fakes.NewFakeVault().FailEncode(errors.New("locked")), "admin", "x")
	require.Error(t, err)
}

// flakyLogin fails its first logins with the scripted results.
type flakyLogin struct {
	*tokenProtocol
	mu      sync.Mutex
	results []error
}

var errNoMatch = errors.New("no match")

func (p *flakyLogin) Login(ctx context.Context, c *session.Conn) (bool, error) {
	p.mu.Lock()
	var next error
	if len(p.results) > 0 {
		next, p.results = p.results[0], p.results[1:]
	}
	p.mu.Unlock()

	switch {
	case next == errNoMatch:
		return false, nil
	case next != nil:
		return false, next
	}
	return p.tokenProtocol.Login(ctx, c)
}

func TestFailedLoginResetsSession(t *testing.T) {
	t.Parallel()

	vault := fakes.NewFakeVault()
	creds, err := session.NewCredentials(vault, "maintenance", "s3cret")
	require.NoError(t, err)

	ft := fakes.NewFakeTransport(newStubArray().handle)
	proto := &flakyLogin{
		tokenProtocol: &tokenProtocol{},
		results:       []error{&session.UnreachableError{Method: "GET", URL: rootPath, Err: errors.New("connection refused")}, errNoMatch},
	}
	mgr, err := session.New(proto, session.Config{Name: "stub-array", Address: "10.0.0.5", Credentials: creds, Vault: vault, Dial: ft.Dialer()})
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := mgr.Login(ctx)
	assert.False(t, ok)
	assert.True(t, session.IsUnreachable(err))
	assert.False(t, mgr.Established())
	assert.False(t, mgr.Snapshot().Open)
	assert.Equal(t, 1, ft.Closed())

	ok, err = mgr.Login(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mgr.Established())
	assert.Equal(t, 2, ft.Closed())

	ok, err = mgr.Login(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mgr.Established())
	assert.True(t, mgr.Snapshot().Open)
	assert.Equal(t, 3, ft.Dials())
}
