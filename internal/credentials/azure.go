package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// KeyVaultAPI is the subset of the azsecrets client used here.
type KeyVaultAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// KeyVaultConfig holds Azure Key Vault settings.
type KeyVaultConfig struct {
	VaultURL           string
	TenantID           string
	ClientID           string
	ClientSecret       string
	UseManagedIdentity bool
	UserAssignedID     string
}

// KeyVaultSource reads passwords from Azure Key Vault. Keys are
// "name", "name/version" or either with "#json.field".
type KeyVaultSource struct {
	name   string
	client KeyVaultAPI
}

// KeyVaultOption configures a KeyVaultSource.
type KeyVaultOption func(*KeyVaultSource)

// WithKeyVaultClient sets a custom client (for testing)
func WithKeyVaultClient(client KeyVaultAPI) KeyVaultOption {
	return func(s *KeyVaultSource) { s.client = client }
}

// NewKeyVaultSource creates a Key Vault source.
func NewKeyVaultSource(name string, config map[string]interface{}, opts ...KeyVaultOption) (*KeyVaultSource, error) {
	s := &KeyVaultSource{name: name}
	for _, opt := range opts {
		opt(s)
	}
	if s.client != nil {
		return s, nil
	}

	kv := KeyVaultConfig{
		VaultURL:           stringOpt(config, "vault_url", ""),
		TenantID:           stringOpt(config, "tenant_id", ""),
		ClientID:           stringOpt(config, "client_id", ""),
		ClientSecret:       stringOpt(config, "client_secret", ""),
		UseManagedIdentity: boolOpt(config, "use_managed_identity", false),
		UserAssignedID:     stringOpt(config, "user_assigned_id", ""),
	}
	if kv.VaultURL == "" {
		return nil, fmt.Errorf("azure.keyvault: vault_url is required")
	}

	client, err := newKeyVaultClient(kv)
	if err != nil {
		return nil, err
	}
	s.client = client
	return s, nil
}

// NewKeyVaultSourceFactory creates a Key Vault source from its settings.
func NewKeyVaultSourceFactory(name string, config map[string]interface{}) (Source, error) {
	return NewKeyVaultSource(name, config)
}

func newKeyVaultClient(config KeyVaultConfig) (*azsecrets.Client, error) {
	var cred azcore.TokenCredential
	var err error

	switch {
	case config.UseManagedIdentity && config.UserAssignedID != "":
		cred, err = azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
			ID: azidentity.ClientID(config.UserAssignedID),
		})
	case config.UseManagedIdentity:
		cred, err = azidentity.NewManagedIdentityCredential(nil)
	case config.ClientSecret != "":
		cred, err = azidentity.NewClientSecretCredential(config.TenantID, config.ClientID, config.ClientSecret, nil)
	default:
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	client, err := azsecrets.NewClient(config.VaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
	}
	return client, nil
}

func (s *KeyVaultSource) Name() string { return s.name }

func (s *KeyVaultSource) Resolve(ctx context.Context, key string) (string, error) {
	ref, field := splitKey(key)
	secretName, version := ref, ""
	if i := strings.Index(ref, "/"); i >= 0 {
		secretName, version = ref[:i], ref[i+1:]
	}

	resp, err := s.client.GetSecret(ctx, secretName, version, nil)
	if err != nil {
		var re *azcore.ResponseError
		if errors.As(err, &re) && re.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%w: %s", ErrNotFound, secretName)
		}
		return "", err
	}
	if resp.Value == nil {
		return "", fmt.Errorf("secret has no value")
	}
	return extractField(*resp.Value, field)
}
