package arrays

import (
	"context"
	"errors"

	"github.com/systmms/sanbridge/internal/config"
	"github.com/systmms/sanbridge/internal/credentials"
	dserrors "github.com/systmms/sanbridge/internal/errors"
	"github.com/systmms/sanbridge/internal/logging"
	"github.com/systmms/sanbridge/internal/session"
	"github.com/systmms/sanbridge/internal/transport"
)

// BuildOptions carries the shared collaborators used by Build.
type BuildOptions struct {
	Registry  *Registry
	Sources   *credentials.Registry
	Vault     session.CredentialVault
	Logger    *logging.Logger
	Observers []session.Observer

	// Dial overrides the HTTP transport, for tests.
	Dial func(config.ArrayConfig) session.DialFunc
}

// Build resolves the array's password, seals it straight away and creates
// the array from its configuration.
func Build(ctx context.Context, name string, ac config.ArrayConfig, opts BuildOptions) (*Array, error) {
	if opts.Vault == nil {
		return nil, errors.New("credential vault is required")
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Sources == nil {
		opts.Sources = credentials.NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	ref := ac.CredentialRef()
	password, err := opts.Sources.Resolve(ctx, name, ref)
	if err != nil {
		return nil, dserrors.SourceError(ref.Source, "resolve password for "+name, err)
	}
	creds, err := session.NewCredentials(opts.Vault, ac.Username, password)
	if err != nil {
		return nil, err
	}
	logger.Debug("Resolved password for %s from %s", name, ref.Source)

	timeout, err := ac.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	dial := transport.Dialer(ac.TransportConfig())
	if opts.Dial != nil {
		dial = opts.Dial(ac)
	}

	return opts.Registry.Create(ac.Vendor, Spec{
		Name:        name,
		Address:     ac.Address,
		Credentials: creds,
		Vault:       opts.Vault,
		Dial:        dial,
		Timeout:     timeout,
		Logger:      logger.With("array", name),
		Observers:   opts.Observers,
		Models:      ac.Models,
	})
}
