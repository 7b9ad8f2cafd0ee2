package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SSMAPI is the subset of the SSM client used here.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// AWSConfig holds the settings shared by the AWS sources.
type AWSConfig struct {
	Region   string
	Profile  string
	Endpoint string

	// Static credentials, for LocalStack
	AccessKeyID     string
	SecretAccessKey string

	// AssumeRole is an IAM role ARN assumed through STS before reading.
	AssumeRole  string
	ExternalID  string
	SessionName string
}

func parseAWSConfig(config map[string]interface{}) AWSConfig {
	return AWSConfig{
		Region:          stringOpt(config, "region", "us-east-1"),
		Profile:         stringOpt(config, "profile", ""),
		Endpoint:        stringOpt(config, "endpoint", ""),
		AccessKeyID:     stringOpt(config, "access_key_id", ""),
		SecretAccessKey: stringOpt(config, "secret_access_key", ""),
		AssumeRole:      stringOpt(config, "assume_role", ""),
		ExternalID:      stringOpt(config, "external_id", ""),
		SessionName:     stringOpt(config, "session_name", "sanbridge"),
	}
}

// loadAWSConfig loads the default credential chain, then layers static
// credentials and an assumed role on top when configured.
func loadAWSConfig(ctx context.Context, c AWSConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(c.Region))
	if c.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.Profile))
	}
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if c.AssumeRole != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), c.AssumeRole, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = c.SessionName
			if c.ExternalID != "" {
				o.ExternalID = aws.String(c.ExternalID)
			}
		})
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	return cfg, nil
}

// SecretsManagerSource reads passwords from AWS Secrets Manager. Keys are
// "secret-id" or "secret-id#json.field".
type SecretsManagerSource struct {
	name   string
	client SecretsManagerAPI
	stage  string
}

// SecretsManagerOption configures a SecretsManagerSource.
type SecretsManagerOption func(*SecretsManagerSource)

// WithSecretsManagerClient sets a custom client (for testing)
func WithSecretsManagerClient(client SecretsManagerAPI) SecretsManagerOption {
	return func(s *SecretsManagerSource) { s.client = client }
}

// NewSecretsManagerSource creates a Secrets Manager source.
func NewSecretsManagerSource(name string, config map[string]interface{}, opts ...SecretsManagerOption) (*SecretsManagerSource, error) {
	s := &SecretsManagerSource{name: name, stage: stringOpt(config, "version_stage", "")}
	for _, opt := range opts {
		opt(s)
	}
	if s.client != nil {
		return s, nil
	}

	c := parseAWSConfig(config)
	cfg, err := loadAWSConfig(context.Background(), c)
	if err != nil {
		return nil, err
	}
	var clientOpts []func(*secretsmanager.Options)
	if c.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(c.Endpoint)
		})
	}
	s.client = secretsmanager.NewFromConfig(cfg, clientOpts...)
	return s, nil
}

// NewSecretsManagerSourceFactory creates a Secrets Manager source from its settings.
func NewSecretsManagerSourceFactory(name string, config map[string]interface{}) (Source, error) {
	return NewSecretsManagerSource(name, config)
}

func (s *SecretsManagerSource) Name() string { return s.name }

func (s *SecretsManagerSource) Resolve(ctx context.Context, key string) (string, error) {
	secretID, field := splitKey(key)

	input := &secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID)}
	if s.stage != "" {
		input.VersionStage = aws.String(s.stage)
	}

	out, err := s.client.GetSecretValue(ctx, input)
	if err != nil {
		var nf *smtypes.ResourceNotFoundException
		if errors.As(err, &nf) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, secretID)
		}
		return "", err
	}

	var value string
	switch {
	case out.SecretString != nil:
		value = *out.SecretString
	case out.SecretBinary != nil:
		value = string(out.SecretBinary)
	default:
		return "", fmt.Errorf("secret '%s' has no value", secretID)
	}
	return extractField(value, field)
}

// SSMSource reads SecureString parameters from SSM Parameter Store.
type SSMSource struct {
	name   string
	client SSMAPI
	prefix string
}

// SSMOption configures an SSMSource.
type SSMOption func(*SSMSource)

// WithSSMClient sets a custom client (for testing)
func WithSSMClient(client SSMAPI) SSMOption {
	return func(s *SSMSource) { s.client = client }
}

// NewSSMSource creates a Parameter Store source.
func NewSSMSource(name string, config map[string]interface{}, opts ...SSMOption) (*SSMSource, error) {
	s := &SSMSource{name: name, prefix: stringOpt(config, "parameter_prefix", "")}
	for _, opt := range opts {
		opt(s)
	}
	if s.client != nil {
		return s, nil
	}

	c := parseAWSConfig(config)
	cfg, err := loadAWSConfig(context.Background(), c)
	if err != nil {
		return nil, err
	}
	var clientOpts []func(*ssm.Options)
	if c.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *ssm.Options) {
			o.BaseEndpoint = aws.String(c.Endpoint)
		})
	}
	s.client = ssm.NewFromConfig(cfg, clientOpts...)
	return s, nil
}

// NewSSMSourceFactory creates a Parameter Store source from its settings.
func NewSSMSourceFactory(name string, config map[string]interface{}) (Source, error) {
	return NewSSMSource(name, config)
}

func (s *SSMSource) Name() string { return s.name }

func (s *SSMSource) Resolve(ctx context.Context, key string) (string, error) {
	parameter, field := splitKey(key)
	parameter = s.prefix + parameter

	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(parameter),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var nf *ssmtypes.ParameterNotFound
		if errors.As(err, &nf) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, parameter)
		}
		return "", err
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("parameter has no value")
	}
	return extractField(*out.Parameter.Value, field)
}
