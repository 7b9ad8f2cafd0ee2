package session

import "fmt"

// CredentialVault seals and opens secrets. Sealed values are opaque strings
// that are safe to keep in memory for the life of a session.
type CredentialVault interface {
	Encode(plaintext string) (string, error)
	Decode(sealed string) (string, error)
}

// Credentials identify the management account on the array. The password
// is only ever held in sealed form.
type Credentials struct {
	username string
	secret   string
}

// NewCredentials seals password with vault and returns immutable credentials.
func NewCredentials(vault CredentialVault, username, password string) (Credentials, error) {
	sealed, err := vault.Encode(password)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to seal password: %w", err)
	}
	return Credentials{username: username, secret: sealed}, nil
}

// SealedCredentials wraps a password that is already sealed by the vault.
func SealedCredentials(username, sealedSecret string) Credentials {
	return Credentials{username: username, secret: sealedSecret}
}

// Username returns the account name.
func (c Credentials) Username() string {
	return c.username
}

// Sealed returns the sealed password blob.
func (c Credentials) Sealed() string {
	return c.secret
}

// String never prints the secret.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{username: %q}", c.username)
}
