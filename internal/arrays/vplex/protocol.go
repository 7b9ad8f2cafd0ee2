// Package vplex speaks the Dell EMC VPLEX management REST API.
//
// VPLEX has no session token. The account name and password travel as
// request headers on every call, so the session only holds those headers
// in sealed form.
package vplex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/systmms/sanbridge/internal/session"
)

const (
	BaseContext = "/vplex"
	AuthURL     = BaseContext + "/clusters"

	UsernameHeader = "username"
	PasswordHeader = "password"

	authFailedMarker = "User authentication failed"
)

// Protocol is the header-credential session protocol.
type Protocol struct{}

// New creates the protocol.
func New() *Protocol {
	return &Protocol{}
}

func (p *Protocol) Name() string { return "dell-vplex" }

// Login seals the credential headers and checks AuthURL with them.
func (p *Protocol) Login(ctx context.Context, c *session.Conn) (bool, error) {
	if err := p.Refresh(ctx, c); err != nil {
		return false, err
	}

	resp, err := c.Send(ctx, &session.Request{Method: http.MethodGet, Path: AuthURL, Body: map[string]interface{}{}})
	if err != nil {
		c.Logger().Error("Login error: %v", err)
		if rerr := c.Reset(); rerr != nil {
			c.Logger().Warn("failed to reset session after login error: %v", rerr)
		}
		return false, err
	}
	if resp.StatusCode == http.StatusOK {
		return true, nil
	}

	text := resp.Text()
	c.Logger().Error("Login error. URL: %s Reason: %s", AuthURL, text)
	if rerr := c.Reset(); rerr != nil {
		c.Logger().Warn("failed to reset session after rejected login: %v", rerr)
	}
	if strings.Contains(text, authFailedMarker) {
		return false, session.ErrInvalidCredentials
	}
	return false, &session.BackendError{Op: "login", StatusCode: resp.StatusCode, Message: text}
}

// Refresh reseals the credential headers. It never touches the network.
func (p *Protocol) Refresh(ctx context.Context, c *session.Conn) error {
	password, err := c.Password()
	if err != nil {
		return fmt.Errorf("failed to open password: %w", err)
	}
	if err := c.SealHeader(UsernameHeader, c.Username()); err != nil {
		return err
	}
	return c.SealHeader(PasswordHeader, password)
}

// Logout closes the transport. There is no server session to delete.
func (p *Protocol) Logout(ctx context.Context, c *session.Conn) error {
	return c.Reset()
}

// SessionInvalid is always false; credential headers do not expire.
func (p *Protocol) SessionInvalid(status int) bool { return false }

func (p *Protocol) Bootstrap(path string) bool { return false }

func (p *Protocol) LogoutCall(method, path string) bool { return false }

// Payload returns the "response" member of the reply, or nil when absent.
func (p *Protocol) Payload(body []byte) (json.RawMessage, error) {
	var reply struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, err
	}
	if len(reply.Response) == 0 || string(reply.Response) == "null" {
		return nil, nil
	}
	return reply.Response, nil
}
