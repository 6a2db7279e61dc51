package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/luxsim/helio/pkg/config"
	"github.com/luxsim/helio/pkg/config/provider"
	"github.com/luxsim/helio/pkg/observability"
	"github.com/luxsim/helio/pkg/server"
)

// ServeCmd starts the gateway server.
type ServeCmd struct {
	Host  string `help:"Host to bind to (overrides config)"`
	Port  int    `help:"Port to listen on (overrides config)"`
	Watch bool   `short:"w" help:"Reload when the configuration file changes"`
}

// Run executes the serve command. It blocks until the server shuts down.
func (s *ServeCmd) Run(cli *CLI) error {
	cfg, loader, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	if s.Host != "" {
		cfg.Server.Host = s.Host
	}
	if s.Port != 0 {
		cfg.Server.Port = s.Port
	}

	obs := observability.NewManager(*cfg.Observability)
	if err := obs.Initialize(context.Background()); err != nil {
		if loader != nil {
			_ = loader.Close()
		}
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			slog.Error("Observability shutdown error", "error", err)
		}
	}()

	srv, err := server.New(server.Options{
		Config:        cfg,
		Loader:        loader,
		Watch:         s.Watch && loader != nil,
		Observability: obs,
	})
	if err != nil {
		if loader != nil {
			_ = loader.Close()
		}
		return err
	}

	// The server owns the loader from here; Wait and Stop close it.
	if err := srv.Start(context.Background()); err != nil {
		return err
	}

	printStartup(cfg)
	srv.Wait()
	return nil
}

// loadConfig loads configuration from the given file, or from environment
// variables and defaults when no file is specified. The returned loader is
// non-nil only for file-backed configuration and supports watching.
func loadConfig(path string) (*config.Config, *config.Loader, error) {
	if path == "" {
		cfg, err := config.New()
		if err != nil {
			return nil, nil, fmt.Errorf("invalid configuration: %w", err)
		}
		slog.Info("Using environment-driven configuration")
		return cfg, nil, nil
	}

	loader := config.NewLoader(provider.NewFileProvider(path))
	cfg, err := loader.Load()
	if err != nil {
		_ = loader.Close()
		return nil, nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	slog.Info("Loaded configuration", "path", path)
	return cfg, loader, nil
}

// printStartup writes a human-readable startup summary to stdout.
func printStartup(cfg *config.Config) {
	fmt.Printf("\nhelio gateway listening on http://%s\n", cfg.Server.Address())
	fmt.Printf("   Mode:    %s\n", cfg.DeploymentMode)
	fmt.Printf("   Auth:    %s\n", cfg.Auth.Type)
	fmt.Printf("   Health:  http://%s/\n", cfg.Server.Address())
	if cfg.Observability.Metrics.Enabled {
		fmt.Printf("   Metrics: http://%s%s\n", cfg.Server.Address(), cfg.Observability.Metrics.Endpoint)
	}
	fmt.Printf("\nDownstream services:\n")
	for _, name := range config.ServiceNames {
		fmt.Printf("   %-12s %s\n", name, cfg.ServiceURL(name))
	}
	fmt.Printf("\nPress Ctrl+C to stop\n")
}
