package fakes

import (
	"context"
	"sync"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FakeGCPSecretManagerClient is an in-memory Secret Manager keyed by full
// version resource name. It satisfies credentials.GCPSecretManagerAPI.
type FakeGCPSecretManagerClient struct {
	mu sync.Mutex

	Versions map[string][]byte
	Errors   map[string]error

	// Requested records every resource name read
	Requested []string
}

// NewFakeGCPSecretManagerClient creates an empty fake.
func NewFakeGCPSecretManagerClient() *FakeGCPSecretManagerClient {
	return &FakeGCPSecretManagerClient{
		Versions: make(map[string][]byte),
		Errors:   make(map[string]error),
	}
}

// AddVersion stores payload under a full resource name such as
// projects/p/secrets/s/versions/latest.
func (f *FakeGCPSecretManagerClient) AddVersion(resource string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Versions[resource] = payload
}

// AccessSecretVersion mocks the AccessSecretVersion operation
func (f *FakeGCPSecretManagerClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Requested = append(f.Requested, req.GetName())

	if err, ok := f.Errors[req.GetName()]; ok {
		return nil, err
	}
	data, ok := f.Versions[req.GetName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "secret version %s not found", req.GetName())
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: data},
	}, nil
}
