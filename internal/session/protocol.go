package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/systmms/sanbridge/internal/logging"
)

// Protocol is the vendor-specific half of a session. The Manager owns the
// state, locking and retry policy; a Protocol only knows how to talk to one
// family of arrays.
type Protocol interface {
	// Name identifies the protocol in logs and metrics.
	Name() string

	// Login establishes the session. It returns false with a nil error when
	// the array answered but could not be identified.
	Login(ctx context.Context, c *Conn) (bool, error)

	// Refresh obtains fresh authorization and seals it on c. It runs inside
	// the manager's refresh critical section and must only use c.Send.
	Refresh(ctx context.Context, c *Conn) error

	// Logout tears down the server side session, then resets c.
	Logout(ctx context.Context, c *Conn) error

	// SessionInvalid reports whether a status code means the authorization
	// was rejected and one refresh may help.
	SessionInvalid(status int) bool

	// Bootstrap reports whether path is served without authorization.
	Bootstrap(path string) bool

	// LogoutCall reports whether method and path tear the session down.
	LogoutCall(method, path string) bool

	// Payload extracts the document callers care about from a 200 body.
	Payload(body []byte) (json.RawMessage, error)
}

// Conn is the view of a Manager handed to its Protocol.
type Conn struct {
	m *Manager
}

// Address returns the configured management address of the array.
func (c *Conn) Address() string {
	return c.m.cfg.Address
}

// Username returns the management account name.
func (c *Conn) Username() string {
	return c.m.cfg.Credentials.Username()
}

// Password opens the sealed password. Callers must use the result for a
// single request and drop it.
func (c *Conn) Password() (string, error) {
	return c.m.cfg.Vault.Decode(c.m.cfg.Credentials.Sealed())
}

// Timeout is the default per-request timeout.
func (c *Conn) Timeout() time.Duration {
	return c.m.cfg.Timeout
}

// Logger returns the manager's logger.
func (c *Conn) Logger() *logging.Logger {
	return c.m.log
}

// Send performs a single exchange with sealed headers opened for this
// request only. It never retries.
func (c *Conn) Send(ctx context.Context, req *Request) (*Response, error) {
	resp, _, err := c.m.send(ctx, req)
	return resp, err
}

// Call is Manager.Call.
func (c *Conn) Call(ctx context.Context, req *Request) (*Response, error) {
	return c.m.Call(ctx, req)
}

// GetInfo is Manager.GetInfo.
func (c *Conn) GetInfo(ctx context.Context, path string, opts ...InfoOption) (json.RawMessage, error) {
	return c.m.GetInfo(ctx, path, opts...)
}

// SealHeader stores a header value in sealed form. It is sent, opened, on
// every non-bootstrap request.
func (c *Conn) SealHeader(name, plaintext string) error {
	sealed, err := c.m.cfg.Vault.Encode(plaintext)
	if err != nil {
		return err
	}

	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if c.m.st.sealed == nil {
		c.m.st.sealed = make(map[string]string)
	}
	c.m.st.sealed[name] = sealed
	return nil
}

// HasHeader reports whether a sealed header is set.
func (c *Conn) HasHeader(name string) bool {
	c.m.mu.RLock()
	defer c.m.mu.RUnlock()
	_, ok := c.m.st.sealed[name]
	return ok
}

// SetSessionID seals and stores the server-issued session id.
func (c *Conn) SetSessionID(plaintext string) error {
	sealed, err := c.m.cfg.Vault.Encode(plaintext)
	if err != nil {
		return err
	}

	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.m.st.sessionID = sealed
	return nil
}

// SessionID opens the session id. ok is false when none is held.
func (c *Conn) SessionID() (id string, ok bool, err error) {
	c.m.mu.RLock()
	sealed := c.m.st.sessionID
	c.m.mu.RUnlock()

	if sealed == "" {
		return "", false, nil
	}
	id, err = c.m.cfg.Vault.Decode(sealed)
	if err != nil {
		return "", true, err
	}
	return id, true, nil
}

// SetDevice records the resolved device identity. The identity is set at
// most once per session; later calls leave it unchanged and return false.
func (c *Conn) SetDevice(d DeviceIdentity) bool {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if c.m.st.device != nil {
		return false
	}
	c.m.st.device = &d
	return true
}

// Device returns the resolved device identity.
func (c *Conn) Device() (DeviceIdentity, bool) {
	return c.m.Device()
}

// Reset drops the session id, device identity, sealed headers and the
// transport handle in one step.
func (c *Conn) Reset() error {
	return c.m.reset()
}
