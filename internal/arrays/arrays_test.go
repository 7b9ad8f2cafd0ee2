package arrays_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/sanbridge/internal/arrays"
	"github.com/systmms/sanbridge/internal/arrays/vplex"
	"github.com/systmms/sanbridge/internal/arrays/vsp"
	"github.com/systmms/sanbridge/internal/config"
	"github.com/systmms/sanbridge/internal/session"
	"github.com/systmms/sanbridge/tests/fakes"
)

const storageURL = "/ConfigurationManager/v1/objects/storages/800000011111"

func vspBackend(req *session.Request) (*session.Response, error) {
	switch {
	case req.Path == vsp.CommURL:
		return fakes.JSONResponse(200, map[string]interface{}{"data": []map[string]string{
			{"storageDeviceId": "800000011111", "model": "VSP G900", "serialNumber": "11111", "ctl1Ip": "10.0.0.5"},
		}}), nil
	case req.Method == http.MethodPost && req.Path == storageURL+"/sessions":
		if req.BasicAuth == nil || req.BasicAuth.Password != "raid-maintenance" {
			return fakes.TextResponse(401, "authentication failed"), nil
		}
		return fakes.JSONResponse(200, map[string]interface{}{"token": "tok-1", "sessionId": 1}), nil
	case req.Header[vsp.AuthHeader] != "Session tok-1":
		return fakes.TextResponse(403, "session invalid"), nil
	case req.Path == storageURL:
		return fakes.JSONResponse(200, map[string]string{"storageDeviceId": "800000011111", "dkcMicroVersion": "88-08-02/00"}), nil
	case req.Path == storageURL+"/ldevs?headLdevId=0&count=300", req.Path == storageURL+"/ldevs?headLdevId=512&count=10":
		return fakes.JSONResponse(200, map[string]interface{}{"data": []interface{}{}}), nil
	case req.Path == storageURL+"/ports/CL1-A":
		return fakes.JSONResponse(200, map[string]string{"portId": "CL1-A"}), nil
	case req.Method == http.MethodDelete:
		return fakes.TextResponse(200, "{}"), nil
	}
	return fakes.TextResponse(404, "not found"), nil
}

func vplexBackend(req *session.Request) (*session.Response, error) {
	if req.Header[vplex.UsernameHeader] != "service" || req.Header[vplex.PasswordHeader] != "Mi@Dim7T" {
		return fakes.TextResponse(401, "User authentication failed"), nil
	}
	switch req.Path {
	case vplex.AuthURL:
		return fakes.JSONResponse(200, map[string]interface{}{"response": map[string]interface{}{
			"context": []map[string]string{{"name": "cluster-1"}},
		}}), nil
	case "/vplex/clusters/cluster-1":
		return fakes.JSONResponse(200, map[string]interface{}{"response": map[string]string{"name": "cluster-1"}}), nil
	}
	return fakes.TextResponse(404, "not found"), nil
}

func build(t *testing.T, name string, ac config.ArrayConfig, ft *fakes.FakeTransport) *arrays.Array {
	t.Helper()

	a, err := arrays.Build(context.Background(), name, ac, arrays.BuildOptions{
		Vault: fakes.NewFakeVault(),
		Dial:  func(config.ArrayConfig) session.DialFunc { return ft.Dialer() },
	})
	require.NoError(t, err)
	return a
}

func vspConfig() config.ArrayConfig {
	return config.ArrayConfig{
		Vendor:   arrays.VendorVSP,
		Address:  "10.0.0.5",
		Username: "maintenance",
		Password: config.PasswordRef{Source: "literal", Key: "raid-maintenance"},
	}
}

func vplexConfig() config.ArrayConfig {
	return config.ArrayConfig{
		Vendor:   arrays.VendorVPLEX,
		Address:  "vplex.lab",
		Username: "service",
		Password: config.PasswordRef{Source: "literal", Key: "Mi@Dim7T"},
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := arrays.NewRegistry()
	assert.Equal(t, []string{"dell-vplex", "hitachi-vsp"}, r.SupportedVendors())
	assert.True(t, r.IsSupported("hitachi-vsp"))
	assert.False(t, r.IsSupported("netapp"))

	_, err := r.Create("netapp", arrays.Spec{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown array vendor: netapp")
}

func TestBuildRequiresVault(t *testing.T) {
	t.Parallel()

	_, err := arrays.Build(context.Background(), "vsp01", vspConfig(), arrays.BuildOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credential vault is required")
}

func TestBuildSurfacesSourceErrors(t *testing.T) {
	t.Parallel()

	ac := vspConfig()
	ac.Password = config.PasswordRef{Source: "literal"}

	_, err := arrays.Build(context.Background(), "vsp01", ac, arrays.BuildOptions{Vault: fakes.NewFakeVault()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "literal password source error")
}

func TestVSPArray(t *testing.T) {
	t.Parallel()

	ft := fakes.NewFakeTransport(vspBackend)
	a := build(t, "vsp01", vspConfig(), ft)
	ctx := context.Background()

	assert.Equal(t, "vsp01", a.Name)
	assert.Equal(t, arrays.VendorVSP, a.Vendor)
	assert.Equal(t, "storage", a.CheckResource())

	ok, err := a.Login(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, a.Check(ctx))

	fw, err := a.Fetch(ctx, "firmware", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"dkcMicroVersion":"88-08-02/00"}`, string(fw))

	_, err = a.Fetch(ctx, "volumes", nil)
	require.NoError(t, err)
	_, err = a.Fetch(ctx, "volumes", []string{"512", "10"})
	require.NoError(t, err)

	port, err := a.Fetch(ctx, "port", []string{"CL1-A"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"portId":"CL1-A"}`, string(port))

	_, err = a.Fetch(ctx, "pools", nil)
	assert.ErrorIs(t, err, arrays.ErrNoData)

	require.NoError(t, a.Logout(ctx))
	assert.Equal(t, 1, ft.Count(http.MethodDelete, storageURL+"/sessions/1"))
}

func TestFetchValidatesArguments(t *testing.T) {
	t.Parallel()

	a := build(t, "vsp01", vspConfig(), fakes.NewFakeTransport(vspBackend))
	ctx := context.Background()

	tests := []struct {
		name     string
		resource string
		args     []string
		errMsg   string
	}{
		{name: "unknown_resource", resource: "snapshots", errMsg: `unknown hitachi-vsp resource "snapshots"`},
		{name: "missing_arg", resource: "port", errMsg: "usage: port <port-id>"},
		{name: "extra_arg", resource: "pools", args: []string{"x"}, errMsg: "usage: pools"},
		{name: "too_many_optional", resource: "volumes", args: []string{"1", "2", "3"}, errMsg: "usage: volumes [head-ldev-id] [count]"},
		{name: "bad_head", resource: "volumes", args: []string{"-1"}, errMsg: "invalid head-ldev-id"},
		{name: "bad_count", resource: "volumes", args: []string{"0", "none"}, errMsg: "invalid count"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Fetch(ctx, tt.resource, tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestVPLEXArray(t *testing.T) {
	t.Parallel()

	ft := fakes.NewFakeTransport(vplexBackend)
	a := build(t, "vplex01", vplexConfig(), ft)
	ctx := context.Background()

	ok, err := a.Login(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, a.Check(ctx))

	got, err := a.Fetch(ctx, "cluster", []string{"cluster-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"cluster-1"}`, string(got))

	_, err = a.Fetch(ctx, "virtual-volume", []string{"cluster-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage: virtual-volume <cluster> <volume>")

	_, err = a.Fetch(ctx, "devices", []string{"cluster-9"})
	assert.True(t, errors.Is(err, arrays.ErrNoData))

	require.NoError(t, a.Logout(ctx))
}

func TestVPLEXWrongPassword(t *testing.T) {
	t.Parallel()

	ac := vplexConfig()
	ac.Password.Key = "wrong"
	a := build(t, "vplex01", ac, fakes.NewFakeTransport(vplexBackend))

	ok, err := a.Login(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, session.ErrInvalidCredentials)
}

func TestResourcesAreSorted(t *testing.T) {
	t.Parallel()

	a := build(t, "vplex01", vplexConfig(), fakes.NewFakeTransport(vplexBackend))

	var names []string
	for _, r := range a.Resources() {
		names = append(names, r.Name)
		assert.NotEmpty(t, r.Description, r.Name)
	}
	assert.True(t, sortedStrings(names), strings.Join(names, ","))
	assert.Len(t, names, 14)
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}

