package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// KeySize is the length of a vault key in bytes.
const KeySize = 32

// ErrDestroyed is returned once a key has been destroyed.
var ErrDestroyed = errors.New("vault key destroyed")

// keyEnclave keeps the vault key encrypted in a memguard enclave. The key
// is only decrypted into a locked buffer for the duration of one seal or
// open.
type keyEnclave struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	destroyed bool
}

func newRandomKey() *keyEnclave {
	return &keyEnclave{enclave: memguard.NewEnclaveRandom(KeySize)}
}

// newKey moves key into an enclave. memguard wipes the source slice.
func newKey(key []byte) (*keyEnclave, error) {
	if len(key) != KeySize {
		return nil, errors.New("vault key must be 32 bytes")
	}
	return &keyEnclave{enclave: memguard.NewEnclave(key)}, nil
}

// with opens the key into a locked buffer, runs fn and destroys the buffer.
func (k *keyEnclave) with(fn func(key *[KeySize]byte) error) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.destroyed {
		return ErrDestroyed
	}

	locked, err := k.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()

	return fn(locked.ByteArray32())
}

// destroy is idempotent.
func (k *keyEnclave) destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.destroyed {
		return
	}
	k.enclave = nil
	k.destroyed = true
}
