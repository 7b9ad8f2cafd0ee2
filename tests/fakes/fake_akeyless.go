package fakes

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakeAkeylessClient is a test double for credentials.AkeylessAPI
type FakeAkeylessClient struct {
	mu sync.Mutex

	// Token is the token returned by Authenticate
	Token string

	// TokenTTL is the TTL returned by Authenticate
	TokenTTL time.Duration

	// Secrets is a map of path to secret value
	Secrets map[string]string

	// AuthErr is returned by Authenticate if set
	AuthErr error

	// GetErr is returned by GetSecretValue if set
	GetErr error

	// AuthCallCount tracks how many times Authenticate was called
	AuthCallCount int

	// GetCallCount tracks how many times GetSecretValue was called
	GetCallCount int

	// Tokens records the token passed to each GetSecretValue call
	Tokens []string
}

// NewFakeAkeylessClient creates a new fake Akeyless client with defaults
func NewFakeAkeylessClient() *FakeAkeylessClient {
	return &FakeAkeylessClient{
		Token:    "fake-akeyless-token",
		TokenTTL: 30 * time.Minute,
		Secrets:  make(map[string]string),
	}
}

// SetSecret adds a secret to the fake Akeyless
func (f *FakeAkeylessClient) SetSecret(path, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[path] = value
}

// Authenticate implements credentials.AkeylessAPI
func (f *FakeAkeylessClient) Authenticate(ctx context.Context) (string, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.AuthCallCount++
	if f.AuthErr != nil {
		return "", 0, f.AuthErr
	}
	return f.Token, f.TokenTTL, nil
}

// GetSecretValue implements credentials.AkeylessAPI
func (f *FakeAkeylessClient) GetSecretValue(ctx context.Context, token, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.GetCallCount++
	f.Tokens = append(f.Tokens, token)
	if f.GetErr != nil {
		return "", f.GetErr
	}
	value, ok := f.Secrets[path]
	if !ok {
		return "", fmt.Errorf("item %s not found", path)
	}
	return value, nil
}
