// Package credentials resolves array management passwords from the places
// operators keep them: environment variables, the OS keychain, cloud secret
// stores, Akeyless and HashiCorp Vault.
//
// A password is resolved once, at startup, and sealed into the session's
// credential vault straight away. Sources never cache plaintext.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when the referenced secret does not exist.
var ErrNotFound = errors.New("secret not found")

// Source resolves a secret by key.
type Source interface {
	Name() string
	Resolve(ctx context.Context, key string) (string, error)
}

// Ref points at a password: which source type, the key within it and the
// source's own settings.
type Ref struct {
	Source string
	Key    string
	Config map[string]interface{}
}

// Factory creates a source from its settings.
type Factory func(name string, config map[string]interface{}) (Source, error)

// Registry manages source creation
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry with every built-in source type.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.RegisterFactory("env", NewEnvSourceFactory)
	r.RegisterFactory("literal", NewLiteralSourceFactory)
	r.RegisterFactory("keychain", NewKeychainSourceFactory)
	r.RegisterFactory("aws.secretsmanager", NewSecretsManagerSourceFactory)
	r.RegisterFactory("aws.ssm", NewSSMSourceFactory)
	r.RegisterFactory("azure.keyvault", NewKeyVaultSourceFactory)
	r.RegisterFactory("gcp.secretmanager", NewGCPSecretManagerSourceFactory)
	r.RegisterFactory("akeyless", NewAkeylessSourceFactory)
	r.RegisterFactory("vault", NewVaultSourceFactory)

	return r
}

// RegisterFactory registers a factory for a source type
func (r *Registry) RegisterFactory(sourceType string, factory Factory) {
	r.factories[sourceType] = factory
}

// Create builds a source of the given type.
func (r *Registry) Create(name, sourceType string, config map[string]interface{}) (Source, error) {
	factory, ok := r.factories[sourceType]
	if !ok {
		return nil, fmt.Errorf("unknown password source type: %s", sourceType)
	}
	if config == nil {
		config = map[string]interface{}{}
	}
	return factory(name, config)
}

// Resolve creates the source named by ref and reads ref.Key from it.
func (r *Registry) Resolve(ctx context.Context, name string, ref Ref) (string, error) {
	src, err := r.Create(name, ref.Source, ref.Config)
	if err != nil {
		return "", err
	}
	return src.Resolve(ctx, ref.Key)
}

// SupportedTypes returns the registered source types, sorted.
func (r *Registry) SupportedTypes() []string {
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsSupported checks if a source type is registered
func (r *Registry) IsSupported(sourceType string) bool {
	_, ok := r.factories[sourceType]
	return ok
}

// splitKey separates "secret#field" into the secret name and the JSON field.
func splitKey(key string) (name, field string) {
	if i := strings.LastIndex(key, "#"); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}

// extractField reads one dotted path out of a JSON object secret.
func extractField(value, field string) (string, error) {
	if field == "" {
		return value, nil
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(value), &doc); err != nil {
		return "", fmt.Errorf("secret is not a JSON object: %w", err)
	}

	current := doc
	for _, part := range strings.Split(field, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return "", fmt.Errorf("field %q: %q is not an object", field, part)
		}
		current, ok = obj[part]
		if !ok {
			return "", fmt.Errorf("field %q not found", field)
		}
	}

	switch v := current.(type) {
	case string:
		return v, nil
	case float64, bool:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("field %q is not a scalar", field)
	}
}

func stringOpt(config map[string]interface{}, key, def string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return def
}

func boolOpt(config map[string]interface{}, key string, def bool) bool {
	if v, ok := config[key].(bool); ok {
		return v
	}
	return def
}

func durationOpt(config map[string]interface{}, key string, def time.Duration) time.Duration {
	switch v := config[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return def
}
