package commands

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/sanbridge/internal/arrays"
	"github.com/systmms/sanbridge/internal/arrays/vplex"
	"github.com/systmms/sanbridge/internal/arrays/vsp"
	"github.com/systmms/sanbridge/internal/config"
	"github.com/systmms/sanbridge/internal/session"
	"github.com/systmms/sanbridge/tests/fakes"
	tu "github.com/systmms/sanbridge/tests/testutil"
)

const (
	vspPassword   = "raid-maintenance"
	vplexPassword = "Mi@Dim7T"
	storageURL    = vsp.CommURL + "/800000011111"
)

// backends hands out one fake transport per array address.
var backends sync.Map

func TestMain(m *testing.M) {
	dialFor = func(ac config.ArrayConfig) session.DialFunc {
		return backendFor(ac).Dialer()
	}
	os.Exit(m.Run())
}

func backendFor(ac config.ArrayConfig) *fakes.FakeTransport {
	handler := vspBackend(ac.Address)
	if ac.Vendor == arrays.VendorVPLEX {
		handler = vplexBackend
	}
	ft, _ := backends.LoadOrStore(ac.Address, fakes.NewFakeTransport(handler))
	return ft.(*fakes.FakeTransport)
}

// vspBackend answers for one storage system whose controller is at address.
func vspBackend(address string) fakes.HandlerFunc {
	return func(req *session.Request) (*session.Response, error) {
		if req.Path == vsp.CommURL {
			return fakes.JSONResponse(200, map[string]interface{}{"data": []map[string]string{
				{"storageDeviceId": "800000011111", "model": "VSP G900", "serialNumber": "11111", "ctl1Ip": address},
			}}), nil
		}
		return vspSession(req)
	}
}

func vspSession(req *session.Request) (*session.Response, error) {
	switch {
	case req.Method == http.MethodPost && req.Path == storageURL+"/sessions":
		if req.BasicAuth == nil || req.BasicAuth.Password != vspPassword {
			return fakes.TextResponse(401, "authentication failed"), nil
		}
		return fakes.JSONResponse(200, map[string]interface{}{"token": "tok-1", "sessionId": 1}), nil
	case req.Header[vsp.AuthHeader] != "Session tok-1":
		return fakes.TextResponse(403, "session invalid"), nil
	case req.Method == http.MethodDelete:
		return fakes.TextResponse(200, "{}"), nil
	case req.Path == storageURL:
		return fakes.JSONResponse(200, map[string]string{"storageDeviceId": "800000011111", "dkcMicroVersion": "88-08-02/00"}), nil
	case req.Path == storageURL+"/pools":
		return fakes.JSONResponse(200, map[string]interface{}{"data": []map[string]interface{}{{"poolId": 0, "poolName": "DP_POOL_00"}}}), nil
	}
	return fakes.TextResponse(404, "not found"), nil
}

func vplexBackend(req *session.Request) (*session.Response, error) {
	if req.Header[vplex.UsernameHeader] != "service" || req.Header[vplex.PasswordHeader] != vplexPassword {
		return fakes.TextResponse(401, "User authentication failed"), nil
	}
	if req.Path == vplex.AuthURL {
		return fakes.JSONResponse(200, map[string]interface{}{"response": map[string]interface{}{
			"context": []map[string]string{{"name": "cluster-1"}},
		}}), nil
	}
	return fakes.TextResponse(404, "not found"), nil
}

func newConfig(t *testing.T, path string) (*config.Config, *tu.TestLogger) {
	t.Helper()

	logger := tu.NewTestLogger(t)
	return &config.Config{Path: path, Logger: logger.Logger}, logger
}

func execute(t *testing.T, cmd interface {
	SetArgs([]string)
	SetOut(io.Writer)
	SetErr(io.Writer)
	Execute() error
}, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd.SetArgs(append([]string{}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func TestArraysCommand(t *testing.T) {
	t.Parallel()

	path := tu.NewTestConfig(t).
		WithArray("vsp01", tu.VSPArray("10.0.1.5", "maintenance", vspPassword)).
		WithArray("vplex01", tu.VPLEXArray("vplex.lab", "service", vplexPassword)).
		Write()
	cfg, _ := newConfig(t, path)

	out, err := execute(t, NewArraysCommand(cfg))
	require.NoError(t, err)

	tu.AssertLinesContain(t, out, []string{
		"NAME",
		"vplex01  dell-vplex",
		"vsp01    hitachi-vsp",
		"https://10.0.1.5:443",
	})
	assert.Less(t, strings.Index(out, "vplex01"), strings.Index(out, "vsp01"))
	tu.AssertNoSecretLeak(t, out, []string{vspPassword, vplexPassword})
}

func TestArraysCommandMissingConfig(t *testing.T) {
	t.Parallel()

	cfg, _ := newConfig(t, "/nonexistent/sanbridge.yaml")
	_, err := execute(t, NewArraysCommand(cfg))
	tu.AssertErrorContains(t, err, "configuration file not found")
}

func TestArraysCommandInvalidConfig(t *testing.T) {
	t.Parallel()

	path := tu.WriteTestConfig(t, "version: 1\narrays: [unclosed\n")
	cfg, _ := newConfig(t, path)

	_, err := execute(t, NewArraysCommand(cfg))
	tu.AssertErrorContains(t, err, "invalid YAML syntax")
}

func TestLoginCommand(t *testing.T) {
	t.Parallel()

	path := tu.NewTestConfig(t).
		WithArray("vsp01", tu.VSPArray("10.0.2.5", "maintenance", vspPassword)).
		Write()
	cfg, logger := newConfig(t, path)

	out, err := execute(t, NewLoginCommand(cfg), "vsp01")
	require.NoError(t, err)

	tu.AssertLinesContain(t, out, []string{
		"Logged in to vsp01 (hitachi-vsp)",
		"Storage device: 800000011111",
		"Model:          VSP G900",
		"Session:        open (read storage)",
	})
	tu.AssertNoSecretLeak(t, out, []string{vspPassword, "tok-1"})
	logger.AssertNotContains(t, vspPassword)
	logger.AssertNotContains(t, "tok-1")

	ft := backendFor(config.ArrayConfig{Address: "10.0.2.5"})
	assert.Equal(t, 1, ft.Count(http.MethodDelete, storageURL+"/sessions/1"))
}

func TestLoginCommandErrors(t *testing.T) {
	t.Parallel()

	wrong := tu.VPLEXArray("10.0.3.5", "service", "wrong")
	path := tu.NewTestConfig(t).
		WithArray("vplex01", wrong).
		Write()
	cfg, _ := newConfig(t, path)

	tests := []struct {
		name   string
		args   []string
		errMsg string
	}{
		{name: "unknown_array", args: []string{"vsp99"}, errMsg: "array not found in configuration"},
		{name: "bad_password", args: []string{"vplex01"}, errMsg: "dell-vplex array error during login"},
		{name: "no_args", args: nil, errMsg: "accepts 1 arg(s)"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, NewLoginCommand(cfg), tt.args...)
			tu.AssertErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestGetCommand(t *testing.T) {
	t.Parallel()

	path := tu.NewTestConfig(t).
		WithArray("vsp01", tu.VSPArray("10.0.4.5", "maintenance", vspPassword)).
		Write()
	cfg, _ := newConfig(t, path)

	t.Run("lists_resources", func(t *testing.T) {
		out, err := execute(t, NewGetCommand(cfg), "vsp01")
		require.NoError(t, err)
		tu.AssertLinesContain(t, out, []string{"RESOURCE", "pools", "port <port-id>", "volumes [head-ldev-id] [count]"})
	})

	t.Run("prints_json", func(t *testing.T) {
		out, err := execute(t, NewGetCommand(cfg), "vsp01", "firmware")
		require.NoError(t, err)
		assert.JSONEq(t, `{"dkcMicroVersion":"88-08-02/00"}`, out)
		assert.Contains(t, out, "\n  \"dkcMicroVersion\"")
	})

	t.Run("bad_usage", func(t *testing.T) {
		_, err := execute(t, NewGetCommand(cfg), "vsp01", "port")
		tu.AssertErrorContains(t, err, "usage: port <port-id>")
	})
}

func TestServe(t *testing.T) {
	t.Parallel()

	path := tu.NewTestConfig(t).
		WithArray("vsp01", tu.VSPArray("10.0.5.5", "maintenance", vspPassword)).
		WithArray("vplex01", tu.VPLEXArray("10.0.5.6", "service", vplexPassword)).
		WithAudit("memory", "").
		WithMetrics("127.0.0.1:0").
		WithPollInterval("20ms").
		Write()
	cfg, logger := newConfig(t, path)
	require.NoError(t, cfg.Load())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, cfg, ServeOptions{
			Ready: func(addr string) { ready <- addr },
		})
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not start")
	}

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `sanbridge_session_open{array="vsp01",protocol="hitachi-vsp"} 1`)
	assert.Contains(t, string(body), `sanbridge_session_open{array="vplex01",protocol="dell-vplex"} 1`)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}

	vspFT := backendFor(config.ArrayConfig{Address: "10.0.5.5"})
	assert.Equal(t, 1, vspFT.Count(http.MethodDelete, storageURL+"/sessions/1"))
	logger.AssertContains(t, "Shutting down")
	tu.AssertNoSecretLeak(t, logger.GetOutput(), []string{vspPassword, vplexPassword})
}

func TestHealthTracker(t *testing.T) {
	t.Parallel()

	h := newHealthTracker()
	assert.NoError(t, h.check(context.Background()))

	h.set("vsp01", nil)
	h.set("vplex01", errNotPolled)
	err := h.check(context.Background())
	tu.AssertErrorContains(t, err, "vplex01: not polled yet")

	h.set("vplex01", nil)
	assert.NoError(t, h.check(context.Background()))
}

func TestOpenJournal(t *testing.T) {
	t.Parallel()

	j, err := openJournal(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, j)

	j, err = openJournal(context.Background(), &config.AuditConfig{Driver: "memory"}, nil)
	require.NoError(t, err)
	require.NotNil(t, j)

	_, err = openJournal(context.Background(), &config.AuditConfig{Driver: "sqlite", DSN: "x"}, nil)
	tu.AssertErrorContains(t, err, "failed to open audit store")
}

func TestCompleteArrayNames(t *testing.T) {
	t.Parallel()

	path := tu.NewTestConfig(t).
		WithArray("vsp01", tu.VSPArray("10.0.6.5", "maintenance", vspPassword)).
		WithArray("vsp02", tu.VSPArray("10.0.6.6", "maintenance", vspPassword)).
		WithArray("vplex01", tu.VPLEXArray("10.0.6.7", "service", vplexPassword)).
		Write()
	cfg, _ := newConfig(t, path)
	complete := completeArrayNames(cfg)

	names, _ := complete(NewGetCommand(cfg), nil, "vsp")
	assert.Equal(t, []string{"vsp01", "vsp02"}, names)

	names, _ = complete(NewGetCommand(cfg), []string{"vsp01"}, "")
	assert.Empty(t, names)
}

func TestCompletionCommand(t *testing.T) {
	t.Parallel()

	cfg, _ := newConfig(t, "")
	out, err := execute(t, NewCompletionCommand(cfg), "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "bash completion")

	_, err = execute(t, NewCompletionCommand(cfg), "tcsh")
	require.Error(t, err)
}


func TestPollOnceLogsInAgainAfterOutage(t *testing.T) {
	t.Parallel()

	const address = "10.0.7.5"
	var mu sync.Mutex
	down := true
	ft := fakes.NewFakeTransport(func(req *session.Request) (*session.Response, error) {
		mu.Lock()
		failing := down && req.Path == vsp.CommURL
		down = down && !failing
		mu.Unlock()
		if failing {
			return nil, &session.UnreachableError{Method: req.Method, URL: req.Path, Err: errors.New("connection refused")}
		}
		return vspBackend(address)(req)
	})
	backends.Store(address, ft)

	path := tu.NewTestConfig(t).
		WithArray("vsp01", tu.VSPArray(address, "maintenance", vspPassword)).
		Write()
	cfg, _ := newConfig(t, path)
	require.NoError(t, cfg.Load())

	ctx := context.Background()
	a, cleanup, err := openArray(ctx, cfg, "vsp01")
	require.NoError(t, err)
	defer cleanup()

	err = pollOnce(ctx, a)
	assert.True(t, session.IsUnreachable(err))
	assert.False(t, a.Session.Established())

	require.NoError(t, pollOnce(ctx, a))
	require.NoError(t, pollOnce(ctx, a))
	assert.True(t, a.Session.Established())
	assert.Equal(t, 2, ft.Count(http.MethodGet, vsp.CommURL))
	assert.Equal(t, 2, ft.Count(http.MethodGet, storageURL))

	logout(a, cfg.Logger)
}
