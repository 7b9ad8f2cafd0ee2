package arrays

import (
	"fmt"
	"sort"
	"time"

	"github.com/systmms/sanbridge/internal/logging"
	"github.com/systmms/sanbridge/internal/session"
)

// Spec holds everything needed to build one array.
type Spec struct {
	Name        string
	Address     string
	Credentials session.Credentials
	Vault       session.CredentialVault
	Dial        session.DialFunc
	Timeout     time.Duration
	Logger      *logging.Logger
	Observers   []session.Observer

	// Models overrides the VSP supported-model allow-list.
	Models []string
}

func (s Spec) sessionConfig() session.Config {
	return session.Config{
		Name:        s.Name,
		Address:     s.Address,
		Credentials: s.Credentials,
		Vault:       s.Vault,
		Dial:        s.Dial,
		Timeout:     s.Timeout,
		Logger:      s.Logger,
		Observers:   s.Observers,
	}
}

// Factory creates an array for one vendor.
type Factory func(spec Spec) (*Array, error)

// Registry manages array creation per vendor
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in vendors
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.RegisterFactory(VendorVSP, NewVSPArray)
	r.RegisterFactory(VendorVPLEX, NewVPLEXArray)

	return r
}

// RegisterFactory registers a factory for a vendor
func (r *Registry) RegisterFactory(vendor string, factory Factory) {
	r.factories[vendor] = factory
}

// Create builds an array of the given vendor.
func (r *Registry) Create(vendor string, spec Spec) (*Array, error) {
	factory, ok := r.factories[vendor]
	if !ok {
		return nil, fmt.Errorf("unknown array vendor: %s", vendor)
	}
	return factory(spec)
}

// SupportedVendors returns the registered vendors, sorted.
func (r *Registry) SupportedVendors() []string {
	vendors := make([]string, 0, len(r.factories))
	for v := range r.factories {
		vendors = append(vendors, v)
	}
	sort.Strings(vendors)
	return vendors
}

// IsSupported checks if a vendor is registered
func (r *Registry) IsSupported(vendor string) bool {
	_, ok := r.factories[vendor]
	return ok
}
