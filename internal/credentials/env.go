package credentials

import (
	"context"
	"fmt"
	"os"
)

// EnvSource reads passwords from environment variables.
type EnvSource struct {
	name   string
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvSource creates an env source. prefix is prepended to every key.
func NewEnvSource(name, prefix string) *EnvSource {
	return &EnvSource{name: name, prefix: prefix, lookup: os.LookupEnv}
}

// NewEnvSourceFactory creates an env source from its settings.
func NewEnvSourceFactory(name string, config map[string]interface{}) (Source, error) {
	return NewEnvSource(name, stringOpt(config, "prefix", "")), nil
}

func (s *EnvSource) Name() string { return s.name }

func (s *EnvSource) Resolve(ctx context.Context, key string) (string, error) {
	variable := s.prefix + key
	value, ok := s.lookup(variable)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrNotFound, variable)
	}
	return value, nil
}

// LiteralSource returns the key itself. Only meant for lab arrays.
type LiteralSource struct {
	name string
}

// NewLiteralSourceFactory creates a literal source.
func NewLiteralSourceFactory(name string, config map[string]interface{}) (Source, error) {
	return &LiteralSource{name: name}, nil
}

func (s *LiteralSource) Name() string { return s.name }

func (s *LiteralSource) Resolve(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: literal password is empty", ErrNotFound)
	}
	return key, nil
}
