package secure

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrCorrupt is returned when a blob was not produced by this vault or was
// tampered with.
var ErrCorrupt = errors.New("sealed value is corrupt or was sealed with another key")

// Vault seals short secrets (passwords, tokens, session ids) with
// NaCl secretbox. Blobs are base64 of nonce||box and are only valid for
// the process that created the Vault unless the key is supplied.
type Vault struct {
	key *keyEnclave
}

// NewVault creates a vault with a fresh random key.
func NewVault() *Vault {
	return &Vault{key: newRandomKey()}
}

// NewVaultWithKey creates a vault from a 32 byte key. The slice is wiped.
func NewVaultWithKey(key []byte) (*Vault, error) {
	k, err := newKey(key)
	if err != nil {
		return nil, err
	}
	return &Vault{key: k}, nil
}

// Encode seals plaintext.
func (v *Vault) Encode(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	var out []byte
	err := v.key.with(func(key *[KeySize]byte) error {
		out = secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
		return nil
	})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Decode opens a blob produced by Encode.
func (v *Vault) Decode(sealed string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrCorrupt
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	var plain []byte
	err = v.key.with(func(key *[KeySize]byte) error {
		var ok bool
		plain, ok = secretbox.Open(nil, raw[nonceSize:], &nonce, key)
		if !ok {
			return ErrCorrupt
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Destroy drops the key. Later Encode and Decode calls fail.
func (v *Vault) Destroy() {
	v.key.destroy()
}
