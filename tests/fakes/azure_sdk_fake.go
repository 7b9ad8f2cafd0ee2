package fakes

import (
	"context"
	"net/http"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// FakeKeyVaultClient is an in-memory Key Vault that satisfies
// credentials.KeyVaultAPI. Versioned secrets are stored as "name/version".
type FakeKeyVaultClient struct {
	mu sync.Mutex

	Secrets map[string]string
	Errors  map[string]error

	// Calls records "name/version" for every read
	Calls []string
}

// NewFakeKeyVaultClient creates an empty fake.
func NewFakeKeyVaultClient() *FakeKeyVaultClient {
	return &FakeKeyVaultClient{
		Secrets: make(map[string]string),
		Errors:  make(map[string]error),
	}
}

// SetSecret stores the current version of a secret.
func (f *FakeKeyVaultClient) SetSecret(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[name] = value
}

// SetSecretVersion stores a specific version of a secret.
func (f *FakeKeyVaultClient) SetSecretVersion(name, version, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[name+"/"+version] = value
}

// GetSecret mocks the azsecrets GetSecret operation
func (f *FakeKeyVaultClient) GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := name
	if version != "" {
		key = name + "/" + version
	}
	f.Calls = append(f.Calls, key)

	if err, ok := f.Errors[name]; ok {
		return azsecrets.GetSecretResponse{}, err
	}
	value, ok := f.Secrets[key]
	if !ok {
		return azsecrets.GetSecretResponse{}, &azcore.ResponseError{
			ErrorCode:  "SecretNotFound",
			StatusCode: http.StatusNotFound,
		}
	}
	v := value
	return azsecrets.GetSecretResponse{Secret: azsecrets.Secret{Value: &v}}, nil
}
