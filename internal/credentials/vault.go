package credentials

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// DefaultVaultTimeout bounds one Vault read.
const DefaultVaultTimeout = 30 * time.Second

// VaultSource reads passwords from a HashiCorp Vault KV mount over the HTTP
// API. Keys are "path#field"; field defaults to "password". KV v2 responses
// are unwrapped from data.data.
type VaultSource struct {
	name      string
	address   string
	token     string
	namespace string
	client    *http.Client
}

// NewVaultSource creates a Vault source. The token comes from the settings
// or from VAULT_TOKEN.
func NewVaultSource(name string, config map[string]interface{}) (*VaultSource, error) {
	s := &VaultSource{
		name:      name,
		address:   strings.TrimSuffix(stringOpt(config, "address", os.Getenv("VAULT_ADDR")), "/"),
		token:     stringOpt(config, "token", os.Getenv("VAULT_TOKEN")),
		namespace: stringOpt(config, "namespace", os.Getenv("VAULT_NAMESPACE")),
	}
	if s.address == "" {
		return nil, fmt.Errorf("vault: address is required (set address or VAULT_ADDR)")
	}
	if s.token == "" {
		return nil, fmt.Errorf("vault: token is required (set token or VAULT_TOKEN)")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if boolOpt(config, "tls_skip", false) {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- explicit opt-in
	}
	s.client = &http.Client{
		Transport: transport,
		Timeout:   durationOpt(config, "timeout", DefaultVaultTimeout),
	}
	return s, nil
}

// NewVaultSourceFactory creates a Vault source from its settings.
func NewVaultSourceFactory(name string, config map[string]interface{}) (Source, error) {
	return NewVaultSource(name, config)
}

func (s *VaultSource) Name() string { return s.name }

func (s *VaultSource) Resolve(ctx context.Context, key string) (string, error) {
	path, field := splitKey(key)
	if field == "" {
		field = "password"
	}

	data, err := s.read(ctx, path)
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return extractField(string(raw), field)
}

func (s *VaultSource) read(ctx context.Context, path string) (map[string]interface{}, error) {
	url := s.address + "/v1/" + strings.TrimPrefix(path, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", s.token)
	if s.namespace != "" {
		req.Header.Set("X-Vault-Namespace", s.namespace)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("vault returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	// KV v2 nests the secret under data.data next to metadata.
	if inner, ok := response.Data["data"].(map[string]interface{}); ok {
		if _, hasMeta := response.Data["metadata"]; hasMeta {
			return inner, nil
		}
	}
	return response.Data, nil
}
