package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/systmms/sanbridge/internal/logging"
)

// DefaultTimeout applies to requests that do not set their own.
const DefaultTimeout = 90 * time.Second

// Config holds everything a Manager needs besides its Protocol.
type Config struct {
	// Name labels the array in logs, metrics and audit records.
	Name string

	// Address is the management address, matched against discovery results.
	Address string

	Credentials Credentials
	Vault       CredentialVault
	Dial        DialFunc

	Timeout   time.Duration
	Logger    *logging.Logger
	Observers []Observer
}

// Manager owns the authenticated session with one storage array. It is
// safe for concurrent use; one Manager per array.
type Manager struct {
	cfg   Config
	proto Protocol
	log   *logging.Logger
	conn  *Conn

	// refreshMu serialises token refresh and the decision whether one is
	// still needed.
	refreshMu sync.Mutex

	mu sync.RWMutex
	st state
}

// New creates a Manager for proto.
func New(proto Protocol, cfg Config) (*Manager, error) {
	if proto == nil {
		return nil, fmt.Errorf("protocol is required")
	}
	if cfg.Vault == nil {
		return nil, fmt.Errorf("credential vault is required")
	}
	if cfg.Dial == nil {
		return nil, fmt.Errorf("transport dialer is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	m := &Manager{
		cfg:   cfg,
		proto: proto,
		log:   cfg.Logger.With("array", cfg.Name).With("protocol", proto.Name()),
	}
	m.conn = &Conn{m: m}
	return m, nil
}

// Name returns the configured array name.
func (m *Manager) Name() string {
	return m.cfg.Name
}

// Protocol returns the protocol name.
func (m *Manager) Protocol() string {
	return m.proto.Name()
}

// Login establishes the session. A false result with a nil error means the
// array answered but no device matched the configured address.
func (m *Manager) Login(ctx context.Context) (bool, error) {
	start := time.Now()

	if _, err := m.handle(); err != nil {
		m.log.Error("Login error: %v", err)
		m.emit(Event{Kind: EventLogin, Err: err, Duration: time.Since(start)})
		return false, err
	}

	ok, err := m.proto.Login(ctx, m.conn)
	m.emit(Event{Kind: EventLogin, Err: err, Duration: time.Since(start)})
	if err != nil {
		m.log.Error("Login error: %v", err)
		m.resetAfterLogin()
		return false, err
	}
	if !ok {
		m.log.Warn("Login could not identify a storage device at %s", m.cfg.Address)
		m.resetAfterLogin()
	}
	return ok, nil
}

// resetAfterLogin closes the transport a failed login dialed, so the next
// Login starts from NoSession.
func (m *Manager) resetAfterLogin() {
	if err := m.reset(); err != nil {
		m.log.Warn("failed to close transport after login: %v", err)
	}
}

// Established reports whether Login succeeded and the session has not been
// reset since: a device is resolved or authorization headers are sealed.
func (m *Manager) Established() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.transport != nil && (m.st.device != nil || len(m.st.sealed) > 0)
}

// Logout tears the session down. Failures are always returned wrapped in
// *LogoutError.
func (m *Manager) Logout(ctx context.Context) error {
	start := time.Now()
	err := m.proto.Logout(ctx, m.conn)
	m.emit(Event{Kind: EventLogout, Err: err, Duration: time.Since(start)})
	if err == nil {
		return nil
	}

	m.log.Error("logout error: %v", err)
	var le *LogoutError
	if errors.As(err, &le) {
		return err
	}
	return &LogoutError{Err: err}
}

// Call performs req with the session's authorization. A session-invalid
// reply triggers one refresh and one retry, except for logout calls which
// are returned as is. A 503 becomes *HardFaultError. Transport errors are
// returned unchanged.
func (m *Manager) Call(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	resp, seen, err := m.send(ctx, req)
	if err != nil {
		m.log.Error("Get RestHandler.call failed: %v", err)
		m.emit(Event{Kind: EventCall, Method: req.method(), Path: req.Path, Err: err, Duration: time.Since(start)})
		return nil, err
	}

	if m.proto.SessionInvalid(resp.StatusCode) {
		m.log.Error("Failed to get token==%d==%s, get token again", resp.StatusCode, resp.Text())
		if m.proto.LogoutCall(req.method(), req.Path) {
			m.emit(Event{Kind: EventCall, Method: req.method(), Path: req.Path, Status: resp.StatusCode, Err: ErrSessionExpired, Duration: time.Since(start)})
			return resp, nil
		}

		if rerr := m.refresh(ctx, seen); rerr != nil {
			if IsUnreachable(rerr) {
				return nil, rerr
			}
			m.log.Error("Login error, get access_session failed: %v", rerr)
			m.emit(Event{Kind: EventCall, Method: req.method(), Path: req.Path, Status: resp.StatusCode, Err: ErrSessionExpired, Duration: time.Since(start)})
			return resp, nil
		}

		retried, _, err := m.send(ctx, req)
		if err != nil {
			m.log.Error("Get RestHandler.call failed: %v", err)
			m.emit(Event{Kind: EventRetry, Method: req.method(), Path: req.Path, Err: err, Duration: time.Since(start)})
			return nil, err
		}
		m.emit(Event{Kind: EventRetry, Method: req.method(), Path: req.Path, Status: retried.StatusCode, Duration: time.Since(start)})
		resp = retried
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		fault := &HardFaultError{StatusCode: resp.StatusCode, Body: resp.Text()}
		m.log.Error("Get RestHandler.call failed: %v", fault)
		m.emit(Event{Kind: EventFault, Method: req.method(), Path: req.Path, Status: resp.StatusCode, Err: fault, Duration: time.Since(start)})
		return nil, fault
	}

	m.emit(Event{Kind: EventCall, Method: req.method(), Path: req.Path, Status: resp.StatusCode, Duration: time.Since(start)})
	return resp, nil
}

// InfoOption adjusts the request built by GetInfo.
type InfoOption func(*Request)

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) InfoOption {
	return func(r *Request) { r.Timeout = d }
}

// WithBody attaches a JSON body.
func WithBody(body interface{}) InfoOption {
	return func(r *Request) { r.Body = body }
}

// WithMethod overrides the GET default, for read endpoints that take
// arguments in a POST body.
func WithMethod(method string) InfoOption {
	return func(r *Request) { r.Method = method }
}

// GetInfo reads path and returns its payload on 200. Any other status
// yields nil with a nil error; only transport failures, 503s and refresh
// failures are returned as errors.
func (m *Manager) GetInfo(ctx context.Context, path string, opts ...InfoOption) (json.RawMessage, error) {
	req := &Request{Method: http.MethodGet, Path: path}
	for _, opt := range opts {
		opt(req)
	}

	if !m.proto.Bootstrap(path) {
		m.mu.RLock()
		authorized := len(m.st.sealed) > 0
		seen := m.st.generation
		m.mu.RUnlock()

		if !authorized {
			if err := m.refresh(ctx, seen); err != nil {
				return nil, err
			}
		}
	}

	resp, err := m.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		m.log.Debug("GET %s returned status %d, treating as no data", path, resp.StatusCode)
		return nil, nil
	}

	payload, err := m.proto.Payload(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return payload, nil
}

// Device returns the device identity resolved at login.
func (m *Manager) Device() (DeviceIdentity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.st.device == nil {
		return DeviceIdentity{}, false
	}
	return *m.st.device, true
}

// Snapshot returns a copy of the session state with secrets in sealed form.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.snapshot()
}

// refresh runs Protocol.Refresh unless another goroutine already replaced
// the authorization observed at generation seen.
func (m *Manager) refresh(ctx context.Context, seen uint64) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.mu.RLock()
	fresh := m.st.generation != seen && len(m.st.sealed) > 0
	m.mu.RUnlock()
	if fresh {
		m.log.Debug("authorization already refreshed by a concurrent caller")
		return nil
	}

	if _, err := m.handle(); err != nil {
		return err
	}

	start := time.Now()
	err := m.proto.Refresh(ctx, m.conn)
	m.emit(Event{Kind: EventRefresh, Err: err, Duration: time.Since(start)})
	if err != nil {
		m.log.Error("Get token error: %v", err)
		return err
	}

	m.mu.Lock()
	m.st.generation++
	m.mu.Unlock()
	return nil
}

// send opens the sealed headers into a per-request copy and performs one
// exchange. It returns the authorization generation the request used.
func (m *Manager) send(ctx context.Context, req *Request) (*Response, uint64, error) {
	t, err := m.handle()
	if err != nil {
		return nil, 0, err
	}

	m.mu.RLock()
	seen := m.st.generation
	sealed := make(map[string]string, len(m.st.sealed))
	for k, v := range m.st.sealed {
		sealed[k] = v
	}
	m.mu.RUnlock()

	out := *req
	out.Method = req.method()
	out.Header = make(map[string]string, len(req.Header)+len(sealed))
	for k, v := range req.Header {
		out.Header[k] = v
	}
	if !m.proto.Bootstrap(req.Path) {
		for name, value := range sealed {
			plain, err := m.cfg.Vault.Decode(value)
			if err != nil {
				return nil, seen, fmt.Errorf("failed to open %s header: %w", name, err)
			}
			out.Header[name] = plain
		}
	}
	if out.Timeout <= 0 {
		out.Timeout = m.cfg.Timeout
	}

	resp, err := t.Do(ctx, &out)
	return resp, seen, err
}

// handle returns the transport, dialing one if the session has none.
func (m *Manager) handle() (Transport, error) {
	m.mu.RLock()
	t := m.st.transport
	m.mu.RUnlock()
	if t != nil {
		return t, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st.transport == nil {
		t, err := m.cfg.Dial()
		if err != nil {
			return nil, fmt.Errorf("failed to open transport: %w", err)
		}
		m.st.transport = t
	}
	return m.st.transport, nil
}

func (m *Manager) reset() error {
	m.mu.Lock()
	t := m.st.transport
	m.st = state{generation: m.st.generation + 1}
	m.mu.Unlock()

	if t != nil {
		return t.Close()
	}
	return nil
}

func (m *Manager) emit(e Event) {
	if len(m.cfg.Observers) == 0 {
		return
	}
	e.Array = m.cfg.Name
	e.Protocol = m.proto.Name()
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	for _, o := range m.cfg.Observers {
		o.Observe(e)
	}
}
