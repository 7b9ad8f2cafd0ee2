// Package config loads sanbridge.yaml: the arrays to manage, where their
// passwords live, and the metrics and audit settings.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/systmms/sanbridge/internal/credentials"
	dserrors "github.com/systmms/sanbridge/internal/errors"
	"github.com/systmms/sanbridge/internal/logging"
	"github.com/systmms/sanbridge/internal/transport"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "sanbridge.yaml"

// DefaultPollInterval is how often serve polls each array.
const DefaultPollInterval = 60 * time.Second

//go:embed schema.json
var schema []byte

// Config holds the runtime configuration
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition
}

// Definition represents the sanbridge.yaml structure
type Definition struct {
	Version int                    `yaml:"version"`
	Metrics MetricsConfig          `yaml:"metrics,omitempty"`
	Serve   ServeConfig            `yaml:"serve,omitempty"`
	Audit   *AuditConfig           `yaml:"audit,omitempty"`
	Arrays  map[string]ArrayConfig `yaml:"arrays"`
}

// MetricsConfig configures the /metrics listener.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// ServeConfig configures the serve command.
type ServeConfig struct {
	PollInterval string `yaml:"poll_interval,omitempty"`
}

// AuditConfig selects the session journal backend.
type AuditConfig struct {
	Driver    string `yaml:"driver"`
	DSN       string `yaml:"dsn,omitempty"`
	QueueSize int    `yaml:"queue_size,omitempty"`
}

// ArrayConfig describes one managed storage array.
type ArrayConfig struct {
	Vendor   string      `yaml:"vendor"`
	Address  string      `yaml:"address"`
	Port     int         `yaml:"port,omitempty"`
	Username string      `yaml:"username"`
	Password PasswordRef `yaml:"password"`
	Timeout  string      `yaml:"timeout,omitempty"`
	TLS      TLSConfig   `yaml:"tls,omitempty"`
	Models   []string    `yaml:"models,omitempty"`
}

// PasswordRef points at the array password in a credential source.
type PasswordRef struct {
	Source string                 `yaml:"source"`
	Key    string                 `yaml:"key,omitempty"`
	Config map[string]interface{} `yaml:"config,omitempty"`
}

// TLSConfig holds per-array certificate settings.
type TLSConfig struct {
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty"`
	CACert             string `yaml:"ca_cert,omitempty"`
}

// Load reads, validates and parses the configuration file
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return dserrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Create sanbridge.yaml or pass --config with the path to your configuration",
			}
		}
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	def, err := Parse(data)
	if err != nil {
		return err
	}
	c.Definition = def
	return nil
}

// Parse validates raw YAML against the schema and decodes it.
func Parse(data []byte) (*Definition, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, dserrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, dserrors.ConfigError{
			Message:    "invalid configuration",
			Suggestion: err.Error(),
		}
	}

	for name, a := range def.Arrays {
		if _, err := a.TimeoutDuration(); err != nil {
			return nil, dserrors.ConfigError{
				Field:      "arrays." + name + ".timeout",
				Value:      a.Timeout,
				Message:    "invalid duration",
				Suggestion: "Use a Go duration such as 90s or 2m",
			}
		}
	}
	if _, err := def.PollInterval(); err != nil {
		return nil, dserrors.ConfigError{
			Field:   "serve.poll_interval",
			Value:   def.Serve.PollInterval,
			Message: "invalid duration",
		}
	}

	return &def, nil
}

func validateSchema(raw map[string]interface{}) error {
	doc, err := json.Marshal(raw)
	if err != nil {
		return dserrors.ConfigError{
			Message:    "configuration cannot be represented as JSON",
			Suggestion: "Use string keys only",
		}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var messages []string
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}
	sort.Strings(messages)
	return dserrors.ConfigError{
		Message:    "schema validation failed:\n  - " + strings.Join(messages, "\n  - "),
		Suggestion: "See the configuration reference for the supported fields",
	}
}

// GetArray returns the configuration for one array.
func (c *Config) GetArray(name string) (ArrayConfig, error) {
	if c.Definition == nil {
		return ArrayConfig{}, dserrors.UserError{
			Message:    "Configuration not loaded",
			Suggestion: "This is an internal error. Please report it",
		}
	}

	a, ok := c.Definition.Arrays[name]
	if !ok {
		suggestion := "Add the array to the 'arrays:' section of your sanbridge.yaml"
		if names := c.ArrayNames(); len(names) > 0 {
			suggestion = fmt.Sprintf("Available arrays: %s", strings.Join(names, ", "))
		}
		return ArrayConfig{}, dserrors.ConfigError{
			Field:      "array",
			Value:      name,
			Message:    "array not found in configuration",
			Suggestion: suggestion,
		}
	}
	return a, nil
}

// ArrayNames returns the configured array names, sorted.
func (c *Config) ArrayNames() []string {
	if c.Definition == nil {
		return nil
	}
	names := make([]string, 0, len(c.Definition.Arrays))
	for name := range c.Definition.Arrays {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PollInterval returns the serve poll interval.
func (d *Definition) PollInterval() (time.Duration, error) {
	if d.Serve.PollInterval == "" {
		return DefaultPollInterval, nil
	}
	return time.ParseDuration(d.Serve.PollInterval)
}

// TimeoutDuration returns the socket timeout, or 0 for the default.
func (a ArrayConfig) TimeoutDuration() (time.Duration, error) {
	if a.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(a.Timeout)
}

// CredentialRef returns where to read the array password from.
func (a ArrayConfig) CredentialRef() credentials.Ref {
	return credentials.Ref{
		Source: a.Password.Source,
		Key:    a.Password.Key,
		Config: a.Password.Config,
	}
}

// TransportConfig returns the HTTP transport settings of the array.
func (a ArrayConfig) TransportConfig() transport.Config {
	return transport.Config{
		Address:            a.Address,
		Port:               a.Port,
		InsecureSkipVerify: a.TLS.InsecureSkipVerify,
		CACertFile:         a.TLS.CACert,
	}
}
