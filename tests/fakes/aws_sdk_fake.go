package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// FakeSecretsManagerClient is an in-memory Secrets Manager that satisfies
// credentials.SecretsManagerAPI.
type FakeSecretsManagerClient struct {
	mu sync.Mutex

	// Secrets maps secret ids to their string value
	Secrets map[string]string
	// Binary maps secret ids to binary values
	Binary map[string][]byte
	// Errors maps secret ids to errors to return
	Errors map[string]error

	// Inputs records every request
	Inputs []*secretsmanager.GetSecretValueInput
}

// NewFakeSecretsManagerClient creates an empty fake.
func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{
		Secrets: make(map[string]string),
		Binary:  make(map[string][]byte),
		Errors:  make(map[string]error),
	}
}

// AddSecretString stores a string secret.
func (f *FakeSecretsManagerClient) AddSecretString(id, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[id] = value
}

// AddSecretBinary stores a binary secret.
func (f *FakeSecretsManagerClient) AddSecretBinary(id string, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Binary[id] = value
}

// AddError makes reads of id fail with err.
func (f *FakeSecretsManagerClient) AddError(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[id] = err
}

// GetSecretValue mocks the GetSecretValue operation
func (f *FakeSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Inputs = append(f.Inputs, params)
	id := aws.ToString(params.SecretId)

	if err, ok := f.Errors[id]; ok {
		return nil, err
	}
	if value, ok := f.Secrets[id]; ok {
		return &secretsmanager.GetSecretValueOutput{Name: params.SecretId, SecretString: aws.String(value)}, nil
	}
	if value, ok := f.Binary[id]; ok {
		return &secretsmanager.GetSecretValueOutput{Name: params.SecretId, SecretBinary: value}, nil
	}
	return nil, &types.ResourceNotFoundException{
		Message: aws.String(fmt.Sprintf("Secrets Manager can't find the specified secret: %s", id)),
	}
}

// FakeSSMClient is an in-memory Parameter Store that satisfies
// credentials.SSMAPI.
type FakeSSMClient struct {
	mu sync.Mutex

	// Parameters maps parameter names to values
	Parameters map[string]string
	// Errors maps parameter names to errors to return
	Errors map[string]error

	// Inputs records every request
	Inputs []*ssm.GetParameterInput
}

// NewFakeSSMClient creates an empty fake.
func NewFakeSSMClient() *FakeSSMClient {
	return &FakeSSMClient{
		Parameters: make(map[string]string),
		Errors:     make(map[string]error),
	}
}

// AddParameter stores a parameter.
func (f *FakeSSMClient) AddParameter(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Parameters[name] = value
}

// GetParameter mocks the GetParameter operation
func (f *FakeSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Inputs = append(f.Inputs, params)
	name := aws.ToString(params.Name)

	if err, ok := f.Errors[name]; ok {
		return nil, err
	}
	value, ok := f.Parameters[name]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{Message: aws.String("parameter not found: " + name)}
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{
			Name:  params.Name,
			Type:  ssmtypes.ParameterTypeSecureString,
			Value: aws.String(value),
		},
	}, nil
}
