// Package vsp speaks the Hitachi VSP configuration manager REST API.
//
// The array is identified first: the storage list at CommURL is read
// without authorization and the entry whose controller or SVP address
// matches the configured address becomes the session's device. Basic
// credentials are then exchanged for a session id and a bearer token.
package vsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/systmms/sanbridge/internal/session"
)

const (
	// CommURL lists every storage system known to the configuration manager.
	CommURL = "/ConfigurationManager/v1/objects/storages"
	// LogoutURL is the session collection outside of a storage scope.
	LogoutURL = "/ConfigurationManager/v1/objects/sessions/"

	AuthHeader = "Authorization"

	SessionInvalidCode = http.StatusForbidden
	SessionInUseCode   = http.StatusConflict

	TokenTimeout     = 30 * time.Second
	DiscoveryTimeout = 10 * time.Second

	// LdevsPerRequest is the default page size for logical devices.
	LdevsPerRequest = 300

	authFailedMarker = "authentication failed"
	backendMarker    = "KART30005-E"
)

// DefaultModels are matched on controller addresses; any other model is
// matched on its SVP address.
var DefaultModels = []string{
	"VSP G350", "VSP G370", "VSP G700", "VSP G900",
	"VSP F350", "VSP F370", "VSP F700", "VSP F900",
}

// ErrBadResponse is returned when the token exchange fails for a reason the
// array does not explain.
var ErrBadResponse = errors.New("bad response from storage backend")

// StorageSystem is one entry of the storage list.
type StorageSystem struct {
	StorageDeviceID string `json:"storageDeviceId"`
	Model           string `json:"model"`
	SerialNumber    string `json:"serialNumber"`
	Ctl1IP          string `json:"ctl1Ip"`
	Ctl2IP          string `json:"ctl2Ip"`
	SvpIP           string `json:"svpIp"`
}

type storageList struct {
	Data []StorageSystem `json:"data"`
}

type tokenReply struct {
	SessionID json.RawMessage `json:"sessionId"`
	Token     string          `json:"token"`
}

// Protocol is the token-exchange session protocol.
type Protocol struct {
	models map[string]struct{}
}

// New creates the protocol. A nil or empty models list selects DefaultModels.
func New(models []string) *Protocol {
	if len(models) == 0 {
		models = DefaultModels
	}
	p := &Protocol{models: make(map[string]struct{}, len(models))}
	for _, m := range models {
		p.models[m] = struct{}{}
	}
	return p
}

func (p *Protocol) Name() string { return "hitachi-vsp" }

// Match returns the first system reachable at address.
func (p *Protocol) Match(systems []StorageSystem, address string) (StorageSystem, bool) {
	for _, s := range systems {
		if _, ok := p.models[s.Model]; ok {
			if s.Ctl1IP == address || s.Ctl2IP == address {
				return s, true
			}
		} else if s.SvpIP == address {
			return s, true
		}
	}
	return StorageSystem{}, false
}

// Login resolves the device identity from the storage list.
func (p *Protocol) Login(ctx context.Context, c *session.Conn) (bool, error) {
	log := c.Logger()

	payload, err := c.GetInfo(ctx, CommURL, session.WithTimeout(DiscoveryTimeout))
	if err != nil {
		log.Error("Get device id error: %v", err)
		return false, err
	}
	if payload == nil {
		log.Error("Get device id fail, storage list unavailable")
		return false, nil
	}

	var list storageList
	if err := json.Unmarshal(payload, &list); err != nil {
		log.Error("Get device id error: %v", err)
		return false, &session.BackendError{Op: "discovery", Message: err.Error()}
	}

	system, ok := p.Match(list.Data, c.Address())
	if !ok {
		log.Error("Get device id fail,model or something is wrong")
		return false, nil
	}

	if !c.SetDevice(session.DeviceIdentity{
		StorageDeviceID: system.StorageDeviceID,
		Model:           system.Model,
		SerialNumber:    system.SerialNumber,
	}) {
		current, _ := c.Device()
		if current.StorageDeviceID != system.StorageDeviceID {
			log.Warn("session is bound to storage device %s, ignoring %s until logout",
				current.StorageDeviceID, system.StorageDeviceID)
		}
		return true, nil
	}
	log.Debug("resolved storage device %s (%s)", system.StorageDeviceID, system.Model)
	return true, nil
}

// Refresh trades basic credentials for a session token.
func (p *Protocol) Refresh(ctx context.Context, c *session.Conn) error {
	device, ok := c.Device()
	if !ok {
		c.Logger().Error("Token Parameter error")
		return session.ErrNoDevice
	}

	password, err := c.Password()
	if err != nil {
		return fmt.Errorf("failed to open password: %w", err)
	}

	url := SessionsURL(device.StorageDeviceID)
	resp, err := c.Send(ctx, &session.Request{
		Method:    http.MethodPost,
		Path:      url,
		Body:      map[string]interface{}{},
		BasicAuth: &session.BasicAuth{Username: c.Username(), Password: password},
		Timeout:   TokenTimeout,
	})
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		text := resp.Text()
		c.Logger().Error("Login error. URL: %s Reason: %s", url, text)
		switch {
		case strings.Contains(text, authFailedMarker):
			return session.ErrInvalidCredentials
		case strings.Contains(text, backendMarker):
			return &session.BackendError{Op: "token", StatusCode: resp.StatusCode, Message: text}
		default:
			return fmt.Errorf("%w: %s", ErrBadResponse, text)
		}
	}

	var reply tokenReply
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	id := strings.Trim(string(reply.SessionID), `"`)
	if id == "" || reply.Token == "" {
		return fmt.Errorf("%w: token reply without session", ErrBadResponse)
	}
	if err := c.SetSessionID(id); err != nil {
		return err
	}
	return c.SealHeader(AuthHeader, "Session "+reply.Token)
}

// Logout deletes the server session and resets the connection.
func (p *Protocol) Logout(ctx context.Context, c *session.Conn) error {
	id, ok, err := c.SessionID()
	if err != nil {
		return err
	}
	if !ok {
		c.Logger().Error("logout error:session id not found")
		return nil
	}

	device, ok := c.Device()
	if !ok {
		return session.ErrNoDevice
	}

	if _, err := c.Call(ctx, &session.Request{
		Method: http.MethodDelete,
		Path:   SessionsURL(device.StorageDeviceID) + "/" + id,
	}); err != nil {
		return err
	}
	return c.Reset()
}

func (p *Protocol) SessionInvalid(status int) bool {
	return status == SessionInvalidCode || status == SessionInUseCode
}

func (p *Protocol) Bootstrap(path string) bool {
	return path == CommURL
}

// LogoutCall matches session deletes, both under a storage and on the
// global session collection.
func (p *Protocol) LogoutCall(method, path string) bool {
	if method != http.MethodDelete {
		return false
	}
	if strings.Contains(path, LogoutURL) {
		return true
	}
	return strings.HasPrefix(path, CommURL+"/") && strings.Contains(path, "/sessions/")
}

func (p *Protocol) Payload(body []byte) (json.RawMessage, error) {
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: body is not JSON", ErrBadResponse)
	}
	return json.RawMessage(body), nil
}

// SessionsURL is the session collection of one storage system.
func SessionsURL(storageDeviceID string) string {
	return StorageURL(storageDeviceID) + "/sessions"
}

// StorageURL is the root of one storage system.
func StorageURL(storageDeviceID string) string {
	return CommURL + "/" + storageDeviceID
}
