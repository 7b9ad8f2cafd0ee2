// Package arrays builds managed storage arrays: a session manager speaking
// the vendor's login protocol plus the table of resources the CLI and the
// poller can fetch through it.
package arrays

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/systmms/sanbridge/internal/session"
)

// ErrNoData is returned when the array answered with anything but 200.
var ErrNoData = errors.New("array returned no data")

// FetchFunc reads one resource. args are already checked against the
// resource's declared arguments.
type FetchFunc func(ctx context.Context, args []string) (json.RawMessage, error)

// Resource is one readable resource of an array.
type Resource struct {
	Name        string
	Description string
	// Args are required positional arguments, Optional follow them.
	Args     []string
	Optional []string
	Fetch    FetchFunc
}

// Usage returns "name <arg> [opt]".
func (r Resource) Usage() string {
	parts := []string{r.Name}
	for _, a := range r.Args {
		parts = append(parts, "<"+a+">")
	}
	for _, a := range r.Optional {
		parts = append(parts, "["+a+"]")
	}
	return strings.Join(parts, " ")
}

// Array is a managed storage array.
type Array struct {
	Name    string
	Vendor  string
	Session *session.Manager

	resources map[string]Resource
	check     string
}

func newArray(name, vendor string, mgr *session.Manager, check string, resources []Resource) *Array {
	a := &Array{
		Name:      name,
		Vendor:    vendor,
		Session:   mgr,
		resources: make(map[string]Resource, len(resources)),
		check:     check,
	}
	for _, r := range resources {
		a.resources[r.Name] = r
	}
	return a
}

// Resources returns the array's resources sorted by name.
func (a *Array) Resources() []Resource {
	out := make([]Resource, 0, len(a.resources))
	for _, r := range a.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Fetch reads a resource by name.
func (a *Array) Fetch(ctx context.Context, name string, args []string) (json.RawMessage, error) {
	r, ok := a.resources[name]
	if !ok {
		return nil, fmt.Errorf("unknown %s resource %q", a.Vendor, name)
	}
	if len(args) < len(r.Args) || len(args) > len(r.Args)+len(r.Optional) {
		return nil, fmt.Errorf("usage: %s", r.Usage())
	}

	payload, err := r.Fetch(ctx, args)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNoData)
	}
	return payload, nil
}

// Check fetches the array's cheapest resource to check the session.
func (a *Array) Check(ctx context.Context) error {
	_, err := a.Fetch(ctx, a.check, nil)
	return err
}

// CheckResource names the resource Check reads.
func (a *Array) CheckResource() string {
	return a.check
}

// Login opens the session.
func (a *Array) Login(ctx context.Context) (bool, error) {
	return a.Session.Login(ctx)
}

// Logout closes the session.
func (a *Array) Logout(ctx context.Context) error {
	return a.Session.Logout(ctx)
}

func noArgs(f func(ctx context.Context) (json.RawMessage, error)) FetchFunc {
	return func(ctx context.Context, _ []string) (json.RawMessage, error) {
		return f(ctx)
	}
}

func oneArg(f func(ctx context.Context, a string) (json.RawMessage, error)) FetchFunc {
	return func(ctx context.Context, args []string) (json.RawMessage, error) {
		return f(ctx, args[0])
	}
}

func twoArgs(f func(ctx context.Context, a, b string) (json.RawMessage, error)) FetchFunc {
	return func(ctx context.Context, args []string) (json.RawMessage, error) {
		return f(ctx, args[0], args[1])
	}
}
