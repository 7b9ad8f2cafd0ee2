package vsp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/systmms/sanbridge/internal/session"
)

// Session is the part of session.Manager the resource client needs.
type Session interface {
	GetInfo(ctx context.Context, path string, opts ...session.InfoOption) (json.RawMessage, error)
	Device() (session.DeviceIdentity, bool)
}

// Client reads resources of the logged-in storage system. Every method
// returns a nil payload when the array answers with anything but 200.
type Client struct {
	s Session
}

// NewClient creates a resource client over s.
func NewClient(s Session) *Client {
	return &Client{s: s}
}

// SystemInfo returns the storage list used for device discovery.
func (c *Client) SystemInfo(ctx context.Context) (json.RawMessage, error) {
	return c.s.GetInfo(ctx, CommURL, session.WithTimeout(DiscoveryTimeout))
}

// FirmwareVersion returns the DKC microcode version, or "" when the array
// did not report one.
func (c *Client) FirmwareVersion(ctx context.Context) (string, error) {
	path, err := c.path("")
	if err != nil {
		return "", err
	}
	payload, err := c.s.GetInfo(ctx, path)
	if err != nil || payload == nil {
		return "", err
	}

	var storage struct {
		DkcMicroVersion string `json:"dkcMicroVersion"`
	}
	if err := json.Unmarshal(payload, &storage); err != nil {
		return "", fmt.Errorf("failed to decode storage details: %w", err)
	}
	return storage.DkcMicroVersion, nil
}

// Storage returns the storage system details.
func (c *Client) Storage(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "")
}

// Capacity returns total capacities.
func (c *Client) Capacity(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/total-capacities/instance")
}

// Pools returns all pools.
func (c *Client) Pools(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/pools")
}

// Volumes returns up to count logical devices starting at headID. A count
// of zero or less uses LdevsPerRequest.
func (c *Client) Volumes(ctx context.Context, headID, count int) (json.RawMessage, error) {
	if count <= 0 {
		count = LdevsPerRequest
	}
	return c.get(ctx, fmt.Sprintf("/ldevs?headLdevId=%d&count=%d", headID, count))
}

// Controllers returns the component instance.
func (c *Client) Controllers(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/components/instance")
}

// Disks returns all drives.
func (c *Client) Disks(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/drives")
}

// Ports returns all ports.
func (c *Client) Ports(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/ports")
}

// PortDetail returns one port.
func (c *Client) PortDetail(ctx context.Context, portID string) (json.RawMessage, error) {
	if portID == "" {
		return nil, fmt.Errorf("port id is required")
	}
	return c.get(ctx, "/ports/"+url.PathEscape(portID))
}

func (c *Client) get(ctx context.Context, suffix string) (json.RawMessage, error) {
	path, err := c.path(suffix)
	if err != nil {
		return nil, err
	}
	return c.s.GetInfo(ctx, path)
}

func (c *Client) path(suffix string) (string, error) {
	device, ok := c.s.Device()
	if !ok {
		return "", session.ErrNoDevice
	}
	return StorageURL(device.StorageDeviceID) + suffix, nil
}
