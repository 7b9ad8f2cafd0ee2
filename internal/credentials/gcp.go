package credentials

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GCPSecretManagerAPI is the subset of the Secret Manager client used here.
type GCPSecretManagerAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// gcpClient drops the call options so the real client fits GCPSecretManagerAPI.
type gcpClient struct {
	c *secretmanager.Client
}

func (g gcpClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	return g.c.AccessSecretVersion(ctx, req)
}

// GCPSecretManagerSource reads passwords from Google Secret Manager. Keys
// are a secret name, "name/version" or a full resource name, optionally
// followed by "#json.field".
type GCPSecretManagerSource struct {
	name      string
	projectID string
	client    GCPSecretManagerAPI
}

// GCPOption configures a GCPSecretManagerSource.
type GCPOption func(*GCPSecretManagerSource)

// WithGCPClient sets a custom client (for testing)
func WithGCPClient(client GCPSecretManagerAPI) GCPOption {
	return func(s *GCPSecretManagerSource) { s.client = client }
}

// NewGCPSecretManagerSource creates a Secret Manager source.
func NewGCPSecretManagerSource(name string, config map[string]interface{}, opts ...GCPOption) (*GCPSecretManagerSource, error) {
	s := &GCPSecretManagerSource{
		name:      name,
		projectID: stringOpt(config, "project_id", gcpProjectFromEnv()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client != nil {
		return s, nil
	}

	var clientOptions []option.ClientOption
	if keyPath := stringOpt(config, "service_account_key_path", ""); keyPath != "" {
		if strings.HasPrefix(keyPath, "~/") {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			keyPath = filepath.Join(home, keyPath[2:])
		}
		clientOptions = append(clientOptions, option.WithCredentialsFile(keyPath))
	}

	client, err := secretmanager.NewClient(context.Background(), clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	s.client = gcpClient{c: client}
	return s, nil
}

// NewGCPSecretManagerSourceFactory creates a Secret Manager source from its settings.
func NewGCPSecretManagerSourceFactory(name string, config map[string]interface{}) (Source, error) {
	return NewGCPSecretManagerSource(name, config)
}

func gcpProjectFromEnv() string {
	for _, v := range []string{"GOOGLE_CLOUD_PROJECT", "GCLOUD_PROJECT", "GCP_PROJECT"} {
		if p := os.Getenv(v); p != "" {
			return p
		}
	}
	return ""
}

func (s *GCPSecretManagerSource) Name() string { return s.name }

func (s *GCPSecretManagerSource) Resolve(ctx context.Context, key string) (string, error) {
	ref, field := splitKey(key)
	resource, err := s.resourceName(ref)
	if err != nil {
		return "", err
	}

	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", fmt.Errorf("%w: %s", ErrNotFound, resource)
		}
		return "", err
	}
	if resp.Payload == nil || resp.Payload.Data == nil {
		return "", fmt.Errorf("secret has no data")
	}
	return extractField(string(resp.Payload.Data), field)
}

func (s *GCPSecretManagerSource) resourceName(ref string) (string, error) {
	if strings.HasPrefix(ref, "projects/") {
		if strings.Contains(ref, "/versions/") {
			return ref, nil
		}
		return ref + "/versions/latest", nil
	}

	secretName, version := ref, "latest"
	if i := strings.Index(ref, "/"); i >= 0 {
		secretName, version = ref[:i], ref[i+1:]
	}
	if s.projectID == "" {
		return "", fmt.Errorf("gcp.secretmanager: project_id is required for %q", ref)
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", s.projectID, secretName, version), nil
}
