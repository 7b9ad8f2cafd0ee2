// Package secure seals the secrets a storage session keeps in memory.
//
// A Vault holds a 32 byte key inside a memguard enclave and seals strings
// with NaCl secretbox (XSalsa20-Poly1305). The session manager stores only
// sealed blobs; each blob is opened for the single request that needs it.
//
// # Usage
//
//	vault := secure.NewVault()
//	defer vault.Destroy()
//
//	blob, err := vault.Encode("array-password")
//	...
//	plain, err := vault.Decode(blob)
//
// # Platform Behavior
//
// The key enclave relies on mlock. On Linux this needs RLIMIT_MEMLOCK to
// allow a few pages; memguard falls back to ordinary memory when locking
// fails. Call memguard.Purge at process exit to wipe every enclave.
//
// It does NOT protect against:
//
//   - Attackers with root access to the running process
//   - Hardware-level attacks (cold boot, DMA)
package secure
