package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/systmms/sanbridge/internal/arrays"
	"github.com/systmms/sanbridge/internal/audit"
	"github.com/systmms/sanbridge/internal/config"
	dserrors "github.com/systmms/sanbridge/internal/errors"
	"github.com/systmms/sanbridge/internal/logging"
	"github.com/systmms/sanbridge/internal/metrics"
	"github.com/systmms/sanbridge/internal/secure"
	"github.com/systmms/sanbridge/internal/session"
)

// ServeOptions overrides settings from the configuration file.
type ServeOptions struct {
	Listen       string
	PollInterval time.Duration
	Ready        func(addr string)
}

func NewServeCommand(cfg *config.Config) *cobra.Command {
	var (
		listen   string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep sessions open to every array and export metrics",
		Long: `Log in to every configured array and read a cheap resource from each one
on an interval so the sessions stay alive. Session events are exported on
/metrics and recorded in the audit store when one is configured. /healthz
fails while any array cannot be read.

The process logs out of every array on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return Serve(ctx, cfg, ServeOptions{Listen: listen, PollInterval: interval})
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Metrics listen address (overrides metrics.listen)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval (overrides serve.poll_interval)")

	return cmd
}

// Serve runs until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config, opts ServeOptions) error {
	logger := cfg.Logger
	def := cfg.Definition

	interval := opts.PollInterval
	if interval <= 0 {
		var err error
		if interval, err = def.PollInterval(); err != nil {
			return err
		}
	}
	listen := opts.Listen
	if listen == "" {
		listen = def.Metrics.Listen
	}

	reg := prometheus.NewRegistry()
	observers := []session.Observer{metrics.New(reg)}

	journal, err := openJournal(ctx, def.Audit, logger)
	if err != nil {
		return err
	}
	if journal != nil {
		// Stopped explicitly so logout events are still recorded.
		journal.Start(context.Background())
		defer func() {
			journal.Stop()
			if err := journal.Store().Close(); err != nil {
				logger.Warn("Failed to close audit store: %v", err)
			}
		}()
		observers = append(observers, journal)
	}

	vault := secure.NewVault()
	defer vault.Destroy()

	health := newHealthTracker()
	var built []*arrays.Array
	for _, name := range cfg.ArrayNames() {
		ac, _ := cfg.GetArray(name)
		a, err := arrays.Build(ctx, name, ac, arrays.BuildOptions{
			Vault:     vault,
			Logger:    logger,
			Observers: observers,
			Dial:      dialFor,
		})
		if err != nil {
			for _, b := range built {
				logout(b, logger)
			}
			return err
		}
		built = append(built, a)
		health.set(name, errNotPolled)
	}

	server := metrics.NewServer(metrics.ServerConfig{
		Listen:   listen,
		Gatherer: reg,
		Health:   health.check,
	}, logger)
	if err := server.Start(); err != nil {
		return err
	}
	logger.Info("Serving metrics on %s for %d arrays", server.Addr(), len(built))
	if opts.Ready != nil {
		opts.Ready(server.Addr())
	}

	var wg sync.WaitGroup
	for _, a := range built {
		wg.Add(1)
		go func(a *arrays.Array) {
			defer wg.Done()
			poll(ctx, a, interval, health, logger.With("array", a.Name))
		}(a)
	}
	wg.Wait()

	logger.Info("Shutting down")
	for _, a := range built {
		logout(a, logger)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
	defer cancel()
	return server.Stop(stopCtx)
}

func openJournal(ctx context.Context, ac *config.AuditConfig, logger *logging.Logger) (*audit.Journal, error) {
	if ac == nil {
		return nil, nil
	}

	var store audit.Store
	switch ac.Driver {
	case "memory":
		store = audit.NewMemoryStore(0)
	default:
		s, err := audit.OpenSQL(ctx, ac.Driver, ac.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit store: %w", err)
		}
		store = s
	}
	return audit.NewJournal(store, ac.QueueSize, logger), nil
}

// poll logs in and reads the check resource every interval until ctx is done.
func poll(ctx context.Context, a *arrays.Array, interval time.Duration, health *healthTracker, logger *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := pollOnce(ctx, a)
		if ctx.Err() != nil {
			return
		}
		health.set(a.Name, err)
		switch {
		case err == nil:
			logger.Debug("Read %s", a.CheckResource())
		case dserrors.IsRetryable(err):
			logger.Warn("Poll failed, retrying in %s: %v", interval, err)
		default:
			logger.Error("Poll failed: %v", dserrors.ArrayError(a.Vendor, "read "+a.CheckResource(), err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce logs in again whenever the session is not established, so an
// array that was down at startup recovers on a later tick.
func pollOnce(ctx context.Context, a *arrays.Array) error {
	if !a.Session.Established() {
		ok, err := a.Login(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no storage device matched %s", a.Name)
		}
	}
	return a.Check(ctx)
}

var errNotPolled = errors.New("not polled yet")

type healthTracker struct {
	mu     sync.RWMutex
	status map[string]error
}

func newHealthTracker() *healthTracker {
	return &healthTracker{status: make(map[string]error)}
}

func (h *healthTracker) set(name string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status[name] = err
}

// check fails while any array's last poll failed.
func (h *healthTracker) check(ctx context.Context) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var failed []string
	for name, err := range h.status {
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	sort.Strings(failed)
	return errors.New(strings.Join(failed, "\n"))
}
