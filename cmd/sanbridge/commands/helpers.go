package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/systmms/sanbridge/internal/arrays"
	"github.com/systmms/sanbridge/internal/config"
	"github.com/systmms/sanbridge/internal/logging"
	"github.com/systmms/sanbridge/internal/secure"
	"github.com/systmms/sanbridge/internal/session"
)

// logoutTimeout bounds the logout sent on the way out.
const logoutTimeout = 30 * time.Second

// dialFor replaces the HTTP transport when set. Tests point it at fakes.
var dialFor func(config.ArrayConfig) session.DialFunc

// loadConfig loads the configuration and makes sure a logger is set.
func loadConfig(cfg *config.Config) error {
	if cfg.Logger == nil {
		cfg.Logger = logging.New(false, true)
	}
	return cfg.Load()
}

// openArray builds one configured array with a fresh credential vault.
// The returned cleanup destroys the vault.
func openArray(ctx context.Context, cfg *config.Config, name string, observers ...session.Observer) (*arrays.Array, func(), error) {
	ac, err := cfg.GetArray(name)
	if err != nil {
		return nil, nil, err
	}

	vault := secure.NewVault()
	a, err := arrays.Build(ctx, name, ac, arrays.BuildOptions{
		Vault:     vault,
		Logger:    cfg.Logger,
		Observers: observers,
		Dial:      dialFor,
	})
	if err != nil {
		vault.Destroy()
		return nil, nil, err
	}
	return a, vault.Destroy, nil
}

// logout closes the session with its own deadline so it still runs after
// ctx is cancelled.
func logout(a *arrays.Array, logger *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
	defer cancel()
	if err := a.Logout(ctx); err != nil {
		logger.Warn("%s: %v", a.Name, err)
	}
}

func printJSON(w io.Writer, payload json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
