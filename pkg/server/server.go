// Package server hosts the gateway's inbound HTTP surface: request parsing
// and validation, pipeline dispatch, response shaping, and the operational
// endpoints for health and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/luxsim/helio/pkg/auth"
	"github.com/luxsim/helio/pkg/config"
	"github.com/luxsim/helio/pkg/observability"
	"github.com/luxsim/helio/pkg/pipeline"
	"github.com/luxsim/helio/pkg/services"
)

// Options configures a gateway server.
type Options struct {
	// Config is the resolved gateway configuration. Required.
	Config *config.Config

	// Loader, when set together with Watch, reloads the configuration and
	// restarts the gateway on file changes.
	Loader *config.Loader
	Watch  bool

	// Observability supplies the tracer and metrics. Nil disables both.
	Observability *observability.Manager
}

// Server is the orchestration gateway process. It owns the HTTP listener,
// the downstream service registry and the pipeline, and rebuilds all three
// on configuration reload.
type Server struct {
	cfg    *config.Config
	loader *config.Loader
	obs    *observability.Manager
	tracer trace.Tracer

	authn      auth.Authenticator
	registry   *services.Registry
	pipe       *pipeline.Pipeline
	httpServer *http.Server

	stopChan   chan struct{}
	reloadChan chan struct{}
	doneChan   chan struct{}
}

// New builds a server from the options. With Watch set, configuration file
// changes schedule a reload; changes arriving during a reload coalesce into
// one more pass.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}

	obs := opts.Observability
	if obs == nil {
		obs = observability.NoopManager()
	}

	s := &Server{
		cfg:        opts.Config,
		loader:     opts.Loader,
		obs:        obs,
		tracer:     obs.GetTracer("helio.http"),
		stopChan:   make(chan struct{}),
		reloadChan: make(chan struct{}, 1),
		doneChan:   make(chan struct{}),
	}

	if opts.Watch && opts.Loader != nil {
		err := opts.Loader.Watch(func() {
			slog.Info("Configuration change detected, scheduling reload")
			select {
			case s.reloadChan <- struct{}{}:
			default:
			}
		})
		if err != nil {
			return nil, fmt.Errorf("failed to watch config: %w", err)
		}
	}

	return s, nil
}

// Start brings the gateway up and returns once the listener is bound.
// Shutdown is driven by OS signals or Stop.
func (s *Server) Start(ctx context.Context) error {
	if err := s.initialize(); err != nil {
		return err
	}
	if err := s.startHTTP(); err != nil {
		return err
	}
	s.logStartup()
	go s.runLifecycle()
	return nil
}

// Wait blocks until the server has shut down.
func (s *Server) Wait() {
	<-s.doneChan
	if s.loader != nil {
		_ = s.loader.Close()
	}
}

// Stop shuts the server down, waiting for the lifecycle to finish bounded
// by ctx.
func (s *Server) Stop(ctx context.Context) error {
	close(s.stopChan)
	select {
	case <-s.doneChan:
		if s.loader != nil {
			_ = s.loader.Close()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// initialize builds the request-serving dependency chain from the current
// configuration.
func (s *Server) initialize() error {
	authn, err := auth.New(s.cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth setup failed: %w", err)
	}

	metrics := s.obs.GetMetrics()
	registry, err := services.NewRegistry(s.cfg, metrics)
	if err != nil {
		return fmt.Errorf("service registry setup failed: %w", err)
	}

	pipe, err := pipeline.New(registry, metrics)
	if err != nil {
		return fmt.Errorf("pipeline setup failed: %w", err)
	}

	s.authn = authn
	s.registry = registry
	s.pipe = pipe
	return nil
}

// startHTTP binds the listener and serves in the background. Binding errors
// surface synchronously; shutdown stays with the lifecycle loop.
func (s *Server) startHTTP() error {
	addr := s.cfg.Server.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler: s.buildRouter(),
		// The write timeout must outlast the slowest configured downstream
		// read deadline, or long simulations get cut off mid-response.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.writeTimeout(),
		IdleTimeout:  120 * time.Second,
	}

	server := s.httpServer
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server terminated", "error", err)
		}
	}()

	slog.Info("HTTP server listening", "address", addr)
	return nil
}

func (s *Server) writeTimeout() time.Duration {
	slowest := s.cfg.Client.ReadTimeout
	for _, name := range config.ServiceNames {
		if t := s.cfg.ServiceReadTimeout(name); t > slowest {
			slowest = t
		}
	}
	return slowest + 30*time.Second
}

// runLifecycle owns shutdown and reload for the process.
func (s *Server) runLifecycle() {
	defer close(s.doneChan)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			slog.Info("Received signal, shutting down", "signal", sig.String())
			s.cleanup(context.Background())
			return

		case <-s.stopChan:
			slog.Info("Stop requested, shutting down")
			s.cleanup(context.Background())
			return

		case <-s.reloadChan:
			if !s.reload() {
				return
			}
		}
	}
}

// reload re-reads the configuration and restarts the gateway with it. A
// configuration that fails to load keeps the previous one running; a failed
// restart ends the lifecycle.
func (s *Server) reload() bool {
	newCfg, err := s.loader.Load()
	if err != nil {
		slog.Error("Configuration reload failed, keeping previous configuration", "error", err)
		return true
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	s.cleanup(shutdownCtx)
	cancel()

	s.cfg = newCfg
	if err := s.initialize(); err != nil {
		slog.Error("Reinitialization after reload failed", "error", err)
		return false
	}
	if err := s.startHTTP(); err != nil {
		slog.Error("Restart after reload failed", "error", err)
		return false
	}
	s.logStartup()
	slog.Info("Configuration reloaded")
	return true
}

// cleanup drains the HTTP server. In-flight requests get five seconds.
func (s *Server) cleanup(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}
	s.httpServer = nil
}

func (s *Server) logStartup() {
	slog.Info("Gateway started",
		"address", s.cfg.Server.Address(),
		"mode", string(s.cfg.DeploymentMode),
		"auth", string(s.cfg.Auth.Type),
	)
	for _, name := range config.ServiceNames {
		slog.Debug("Downstream service", "name", name, "url", s.cfg.ServiceURL(name))
	}
}
