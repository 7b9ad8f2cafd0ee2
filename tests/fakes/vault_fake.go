package fakes

import (
	"encoding/base64"
	"errors"
	"strings"
	"sync"
)

const sealPrefix = "sealed:"

// ErrFakeVaultCorrupt is returned when Decode sees a value it did not seal.
var ErrFakeVaultCorrupt = errors.New("fake vault: value was not sealed")

// FakeVault is a reversible session.CredentialVault. Sealed values are
// recognisable ("sealed:" + base64) so tests can assert that shared state
// never holds plaintext.
type FakeVault struct {
	mu        sync.Mutex
	encodeErr error
	encodes   int
	decodes   int
}

// NewFakeVault creates a working fake vault.
func NewFakeVault() *FakeVault {
	return &FakeVault{}
}

// FailEncode makes every later Encode return err.
func (v *FakeVault) FailEncode(err error) *FakeVault {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.encodeErr = err
	return v
}

// Encode seals plaintext.
func (v *FakeVault) Encode(plaintext string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.encodes++
	if v.encodeErr != nil {
		return "", v.encodeErr
	}
	return sealPrefix + base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
}

// Decode opens a value produced by Encode.
func (v *FakeVault) Decode(sealed string) (string, error) {
	v.mu.Lock()
	v.decodes++
	v.mu.Unlock()

	if !strings.HasPrefix(sealed, sealPrefix) {
		return "", ErrFakeVaultCorrupt
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealPrefix))
	if err != nil {
		return "", ErrFakeVaultCorrupt
	}
	return string(raw), nil
}

// IsSealed reports whether s looks like a value produced by Encode.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, sealPrefix)
}

// Decodes returns how many times Decode ran.
func (v *FakeVault) Decodes() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.decodes
}
