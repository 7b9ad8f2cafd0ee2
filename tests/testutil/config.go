// Package testutil provides test helpers shared by sanbridge packages.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/systmms/sanbridge/internal/config"
)

// TestConfigBuilder builds sanbridge.yaml files for tests.
//
// Example usage:
//
//	path := NewTestConfig(t).
//	    WithArray("vsp01", VSPArray("10.0.0.5", "maintenance", "raid-maintenance")).
//	    WithAudit("memory", "").
//	    Write()
type TestConfigBuilder struct {
	config  *config.Definition
	tempDir string
	t       *testing.T
}

// NewTestConfig creates a builder holding version 1 and no arrays.
func NewTestConfig(t *testing.T) *TestConfigBuilder {
	t.Helper()

	return &TestConfigBuilder{
		config: &config.Definition{
			Version: 1,
			Arrays:  make(map[string]config.ArrayConfig),
		},
		tempDir: t.TempDir(),
		t:       t,
	}
}

// VSPArray returns a Hitachi VSP array whose password is a literal.
func VSPArray(address, username, password string) config.ArrayConfig {
	return config.ArrayConfig{
		Vendor:   "hitachi-vsp",
		Address:  address,
		Username: username,
		Password: config.PasswordRef{Source: "literal", Key: password},
	}
}

// VPLEXArray returns a Dell VPLEX array whose password is a literal.
func VPLEXArray(address, username, password string) config.ArrayConfig {
	return config.ArrayConfig{
		Vendor:   "dell-vplex",
		Address:  address,
		Username: username,
		Password: config.PasswordRef{Source: "literal", Key: password},
	}
}

// WithArray adds an array.
func (b *TestConfigBuilder) WithArray(name string, ac config.ArrayConfig) *TestConfigBuilder {
	b.config.Arrays[name] = ac
	return b
}

// WithAudit enables the audit journal.
func (b *TestConfigBuilder) WithAudit(driver, dsn string) *TestConfigBuilder {
	b.config.Audit = &config.AuditConfig{Driver: driver, DSN: dsn}
	return b
}

// WithMetrics sets the metrics listen address.
func (b *TestConfigBuilder) WithMetrics(listen string) *TestConfigBuilder {
	b.config.Metrics.Listen = listen
	return b
}

// WithPollInterval sets serve.poll_interval.
func (b *TestConfigBuilder) WithPollInterval(interval string) *TestConfigBuilder {
	b.config.Serve.PollInterval = interval
	return b
}

// Write writes sanbridge.yaml to a temporary directory and returns its path.
func (b *TestConfigBuilder) Write() string {
	b.t.Helper()

	data, err := yaml.Marshal(b.config)
	if err != nil {
		b.t.Fatalf("Failed to marshal test config: %v", err)
	}
	return writeFile(b.t, filepath.Join(b.tempDir, "sanbridge.yaml"), data)
}

// WriteTestConfig writes hand-written YAML to a temporary sanbridge.yaml.
func WriteTestConfig(t *testing.T, yamlContent string) string {
	t.Helper()

	return writeFile(t, filepath.Join(t.TempDir(), "sanbridge.yaml"), []byte(yamlContent))
}

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()

	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}
