package vplex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/systmms/sanbridge/internal/session"
)

// Session is the part of session.Manager the resource client needs.
type Session interface {
	GetInfo(ctx context.Context, path string, opts ...session.InfoOption) (json.RawMessage, error)
}

// Client reads VPLEX resources. Methods return the "response" member of
// the reply, or nil for any status but 200.
type Client struct {
	s Session
}

func NewClient(s Session) *Client {
	return &Client{s: s}
}

func (c *Client) Clusters(ctx context.Context) (json.RawMessage, error) {
	return c.s.GetInfo(ctx, BaseContext+"/clusters")
}

func (c *Client) Cluster(ctx context.Context, cluster string) (json.RawMessage, error) {
	return c.get(ctx, "/clusters/%s", cluster)
}

func (c *Client) VirtualVolumes(ctx context.Context, cluster string) (json.RawMessage, error) {
	return c.get(ctx, "/clusters/%s/virtual-volumes", cluster)
}

func (c *Client) VirtualVolume(ctx context.Context, cluster, volume string) (json.RawMessage, error) {
	return c.get(ctx, "/clusters/%s/virtual-volumes/%s", cluster, volume)
}

func (c *Client) Devices(ctx context.Context, cluster string) (json.RawMessage, error) {
	return c.get(ctx, "/clusters/%s/devices", cluster)
}

func (c *Client) Device(ctx context.Context, cluster, device string) (json.RawMessage, error) {
	return c.get(ctx, "/clusters/%s/devices/%s", cluster, device)
}

// HealthCheck runs "health-check -l".
func (c *Client) HealthCheck(ctx context.Context) (json.RawMessage, error) {
	return c.command(ctx, "/health-check", "-l")
}

// StorageVolumeSummary runs "storage-volume summary" for one cluster.
func (c *Client) StorageVolumeSummary(ctx context.Context, cluster string) (json.RawMessage, error) {
	return c.command(ctx, "/storage-volume+summary", "--clusters "+cluster)
}

// DeviceSummary runs "local-device summary" for one cluster.
func (c *Client) DeviceSummary(ctx context.Context, cluster string) (json.RawMessage, error) {
	return c.command(ctx, "/local-device+summary", "--clusters "+cluster)
}

// VirtualVolumeSummary runs "virtual-volume summary" for one cluster.
func (c *Client) VirtualVolumeSummary(ctx context.Context, cluster string) (json.RawMessage, error) {
	return c.command(ctx, "/virtual-volume+summary", "--clusters "+cluster)
}

// Version runs "version -a --verbose".
func (c *Client) Version(ctx context.Context) (json.RawMessage, error) {
	return c.command(ctx, "/version", "-a --verbose")
}

func (c *Client) EngineDirectors(ctx context.Context) (json.RawMessage, error) {
	return c.s.GetInfo(ctx, BaseContext+"/engines/*/directors/*")
}

func (c *Client) ExportPorts(ctx context.Context) (json.RawMessage, error) {
	return c.s.GetInfo(ctx, BaseContext+"/clusters/*/exports/ports/*")
}

func (c *Client) HardwarePorts(ctx context.Context) (json.RawMessage, error) {
	return c.s.GetInfo(ctx, BaseContext+"/engines/*/directors/*/hardware/ports/*")
}

func (c *Client) get(ctx context.Context, format string, names ...string) (json.RawMessage, error) {
	args := make([]interface{}, len(names))
	for i, n := range names {
		if n == "" {
			return nil, fmt.Errorf("resource name is required")
		}
		args[i] = url.PathEscape(n)
	}
	return c.s.GetInfo(ctx, BaseContext+fmt.Sprintf(format, args...))
}

func (c *Client) command(ctx context.Context, path, args string) (json.RawMessage, error) {
	return c.s.GetInfo(ctx, BaseContext+path,
		session.WithMethod(http.MethodPost),
		session.WithBody(map[string]string{"args": args}),
	)
}
