package main

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/luxsim/helio/pkg/config"
)

// ValidateCmd validates a configuration file without starting the server.
type ValidateCmd struct {
	Config      string `arg:"" name:"config" help:"Path to configuration file" type:"path"`
	Format      string `short:"f" help:"Output format (compact, verbose, json)" enum:"compact,verbose,json" default:"compact"`
	PrintConfig bool   `short:"p" help:"Print the expanded configuration after validation"`
}

// jsonResult is the machine-readable validation output.
type jsonResult struct {
	Valid bool   `json:"valid"`
	File  string `json:"file"`
	Error string `json:"error,omitempty"`
}

// Run executes the validate command.
func (v *ValidateCmd) Run() error {
	cfg, err := config.LoadFile(v.Config)

	if v.Format == "json" {
		return v.printJSONResult(err)
	}

	if err != nil {
		v.printLoadError(err)
		os.Exit(1)
	}

	v.printSuccess(cfg)

	if v.PrintConfig {
		return printExpandedConfig(v.Config, cfg)
	}
	return nil
}

func (v *ValidateCmd) printLoadError(err error) {
	if v.Format == "verbose" {
		fmt.Fprintf(os.Stderr, "Configuration Load Error\n")
		fmt.Fprintf(os.Stderr, "========================\n\n")
		fmt.Fprintf(os.Stderr, "File:   %s\n", v.Config)
		fmt.Fprintf(os.Stderr, "Error:  %s\n", err.Error())
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %s\n", v.Config, err.Error())
}

func (v *ValidateCmd) printSuccess(cfg *config.Config) {
	if v.Format != "verbose" {
		fmt.Printf("%s: valid\n", v.Config)
		return
	}
	fmt.Printf("Configuration Valid\n")
	fmt.Printf("===================\n\n")
	fmt.Printf("File:    %s\n", v.Config)
	fmt.Printf("Mode:    %s\n", cfg.DeploymentMode)
	fmt.Printf("Address: %s\n", cfg.Server.Address())
	fmt.Printf("Auth:    %s\n", cfg.Auth.Type)
	fmt.Printf("Services:\n")
	for _, name := range config.ServiceNames {
		fmt.Printf("  %-12s %s\n", name, cfg.ServiceURL(name))
	}
}

func (v *ValidateCmd) printJSONResult(loadErr error) error {
	result := jsonResult{Valid: loadErr == nil, File: v.Config}
	if loadErr != nil {
		result.Error = loadErr.Error()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if loadErr != nil {
		os.Exit(1)
	}
	return nil
}

// printExpandedConfig renders the configuration after env expansion and
// defaults, so operators can see what the server will actually run with.
func printExpandedConfig(file string, cfg *config.Config) error {
	fmt.Printf("\n# Expanded configuration from: %s\n", file)
	fmt.Printf("# (defaults applied, env vars resolved)\n\n")
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	return nil
}
