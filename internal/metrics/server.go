package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/systmms/sanbridge/internal/logging"
)

// DefaultListen is the default metrics listen address.
const DefaultListen = ":9464"

// HealthFunc reports whether the process is healthy. A nil error is healthy.
type HealthFunc func(ctx context.Context) error

// ServerConfig holds configuration for the metrics HTTP server.
type ServerConfig struct {
	// Listen is the address to listen on.
	Listen string

	// Gatherer is scraped on /metrics. Defaults to the Prometheus default gatherer.
	Gatherer prometheus.Gatherer

	// Health backs /healthz. Nil always reports healthy.
	Health HealthFunc

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server serves /metrics and /healthz.
type Server struct {
	config   ServerConfig
	server   *http.Server
	listener net.Listener
	logger   *logging.Logger
}

// NewServer creates a metrics server.
func NewServer(config ServerConfig, logger *logging.Logger) *Server {
	if config.Listen == "" {
		config.Listen = DefaultListen
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 5 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{config: config, logger: logger}
}

// Handler returns the HTTP handler without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if s.config.Health != nil {
			if err := s.config.Health(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Start begins listening in the background.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return err
	}
	s.listener = l
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error: %v", err)
		}
	}()
	s.logger.Info("Serving metrics on %s", l.Addr())
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
