package credentials

import (
	"context"
	"fmt"
	"time"

	akeyless "github.com/akeylesslabs/akeyless-go/v3"
)

// DefaultAkeylessGateway is the public Akeyless API.
const DefaultAkeylessGateway = "https://api.akeyless.io"

// akeylessTokenTTL is shorter than the 30 minute token lifetime.
const akeylessTokenTTL = 25 * time.Minute

// AkeylessAPI abstracts the Akeyless SDK calls used here.
type AkeylessAPI interface {
	Authenticate(ctx context.Context) (token string, ttl time.Duration, err error)
	GetSecretValue(ctx context.Context, token, path string) (string, error)
}

// AkeylessConfig holds Akeyless settings.
type AkeylessConfig struct {
	AccessID   string
	AccessKey  string
	AccessType string
	GatewayURL string
}

type akeylessSDKClient struct {
	api    *akeyless.APIClient
	config AkeylessConfig
}

func newAkeylessSDKClient(cfg AkeylessConfig) *akeylessSDKClient {
	configuration := akeyless.NewConfiguration()
	configuration.Servers = []akeyless.ServerConfiguration{{URL: cfg.GatewayURL}}
	return &akeylessSDKClient{api: akeyless.NewAPIClient(configuration), config: cfg}
}

func (c *akeylessSDKClient) Authenticate(ctx context.Context) (string, time.Duration, error) {
	body := akeyless.NewAuthWithDefaults()
	body.SetAccessId(c.config.AccessID)
	switch c.config.AccessType {
	case "", "api_key", "access_key":
		body.SetAccessKey(c.config.AccessKey)
	default:
		body.SetAccessType(c.config.AccessType)
	}

	res, _, err := c.api.V2Api.Auth(ctx).Body(*body).Execute()
	if err != nil {
		return "", 0, fmt.Errorf("%s authentication failed: %w", c.config.AccessType, err)
	}
	return res.GetToken(), akeylessTokenTTL, nil
}

func (c *akeylessSDKClient) GetSecretValue(ctx context.Context, token, path string) (string, error) {
	body := akeyless.NewGetSecretValue([]string{path})
	body.SetToken(token)

	res, _, err := c.api.V2Api.GetSecretValue(ctx).Body(*body).Execute()
	if err != nil {
		return "", err
	}
	value, ok := res[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return value, nil
}

// AkeylessSource reads passwords from Akeyless. The access token is cached
// in memory until shortly before it expires.
type AkeylessSource struct {
	name   string
	client AkeylessAPI
	tokens *TokenCache
}

// AkeylessOption configures an AkeylessSource.
type AkeylessOption func(*AkeylessSource)

// WithAkeylessClient sets a custom client (for testing)
func WithAkeylessClient(client AkeylessAPI) AkeylessOption {
	return func(s *AkeylessSource) { s.client = client }
}

// NewAkeylessSource creates an Akeyless source.
func NewAkeylessSource(name string, config map[string]interface{}, opts ...AkeylessOption) (*AkeylessSource, error) {
	s := &AkeylessSource{name: name, tokens: NewTokenCache()}
	for _, opt := range opts {
		opt(s)
	}
	if s.client != nil {
		return s, nil
	}

	cfg := AkeylessConfig{
		AccessID:   stringOpt(config, "access_id", ""),
		AccessKey:  stringOpt(config, "access_key", ""),
		AccessType: stringOpt(config, "access_type", "api_key"),
		GatewayURL: stringOpt(config, "gateway_url", DefaultAkeylessGateway),
	}
	if cfg.AccessID == "" {
		return nil, fmt.Errorf("akeyless: access_id is required")
	}
	s.client = newAkeylessSDKClient(cfg)
	return s, nil
}

// NewAkeylessSourceFactory creates an Akeyless source from its settings.
func NewAkeylessSourceFactory(name string, config map[string]interface{}) (Source, error) {
	return NewAkeylessSource(name, config)
}

func (s *AkeylessSource) Name() string { return s.name }

func (s *AkeylessSource) Resolve(ctx context.Context, key string) (string, error) {
	path, field := splitKey(key)

	token, err := s.token(ctx)
	if err != nil {
		return "", err
	}
	value, err := s.client.GetSecretValue(ctx, token, path)
	if err != nil {
		return "", err
	}
	return extractField(value, field)
}

func (s *AkeylessSource) token(ctx context.Context) (string, error) {
	if token, ok := s.tokens.Get(); ok {
		return token, nil
	}
	token, ttl, err := s.client.Authenticate(ctx)
	if err != nil {
		return "", err
	}
	s.tokens.Set(token, ttl)
	return token, nil
}
