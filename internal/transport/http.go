// Package transport provides the HTTP transport the session managers use to
// reach an array's management API.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/systmms/sanbridge/internal/session"
)

// DefaultPort is the management API port of both vendors.
const DefaultPort = 443

// maxBody caps how much of a reply is read.
const maxBody = 64 << 20

// Config holds the settings of one array's transport.
type Config struct {
	Address string
	Port    int

	// Scheme defaults to https.
	Scheme string

	InsecureSkipVerify bool
	CACertFile         string

	// DialTimeout bounds the TCP connect and TLS handshake.
	DialTimeout time.Duration
}

// BaseURL returns scheme://address:port.
func (c Config) BaseURL() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "https"
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return scheme + "://" + net.JoinHostPort(c.Address, strconv.Itoa(port))
}

// HTTP is a session.Transport over net/http. Each HTTP value owns its own
// connection pool, so closing it drops the array's connections.
type HTTP struct {
	baseURL string
	client  *http.Client
}

// New creates an HTTP transport for cfg.
func New(cfg Config) (*HTTP, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("address is required")
	}

	tlsConfig, err := tlsConfigFor(cfg)
	if err != nil {
		return nil, err
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	return &HTTP{
		baseURL: strings.TrimSuffix(cfg.BaseURL(), "/"),
		client: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   dialTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSClientConfig:       tlsConfig,
				TLSHandshakeTimeout:   dialTimeout,
				ExpectContinueTimeout: 1 * time.Second,
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   4,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}, nil
}

// Dialer returns a session.DialFunc that opens a fresh HTTP transport for
// cfg on every call.
func Dialer(cfg Config) session.DialFunc {
	return func() (session.Transport, error) {
		return New(cfg)
	}
}

func tlsConfigFor(cfg Config) (*tls.Config, error) {
	// #nosec G402 -- skip-verify is opt-in per array
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.CACertFile == "" {
		return tlsConfig, nil
	}

	pem, err := os.ReadFile(cfg.CACertFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", cfg.CACertFile)
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// BaseURL returns the URL every request path is appended to.
func (h *HTTP) BaseURL() string {
	return h.baseURL
}

// Do performs one exchange. Failures without a status code are returned as
// *session.UnreachableError; any status code is a successful exchange.
func (h *HTTP) Do(ctx context.Context, req *session.Request) (*session.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	url := h.baseURL + req.Path

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}
	if req.BasicAuth != nil {
		httpReq.SetBasicAuth(req.BasicAuth.Username, req.BasicAuth.Password)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, &session.UnreachableError{Method: method, URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &session.UnreachableError{Method: method, URL: url, Err: err}
	}
	return &session.Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// Close drops idle connections.
func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
