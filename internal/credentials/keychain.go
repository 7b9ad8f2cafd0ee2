package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeychainSource reads passwords from the OS keychain (macOS Keychain,
// Secret Service on Linux, Windows Credential Manager).
//
// Keys have the form "service/account". With a service prefix configured
// the key may be just the account.
type KeychainSource struct {
	name    string
	service string
}

// NewKeychainSource creates a keychain source. service is used when a key
// carries no service part.
func NewKeychainSource(name, service string) *KeychainSource {
	return &KeychainSource{name: name, service: service}
}

// NewKeychainSourceFactory creates a keychain source from its settings.
func NewKeychainSourceFactory(name string, config map[string]interface{}) (Source, error) {
	return NewKeychainSource(name, stringOpt(config, "service", "")), nil
}

func (s *KeychainSource) Name() string { return s.name }

func (s *KeychainSource) Resolve(ctx context.Context, key string) (string, error) {
	service, account := s.parseKey(key)
	if service == "" || account == "" {
		return "", fmt.Errorf("invalid keychain key %q: expected service/account", key)
	}

	secret, err := keyring.Get(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s/%s not found in keyring", ErrNotFound, service, account)
		}
		return "", err
	}
	return secret, nil
}

func (s *KeychainSource) parseKey(key string) (service, account string) {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[:i], key[i+1:]
	}
	return s.service, key
}
