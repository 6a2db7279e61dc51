// Command helio runs the daylight simulation gateway.
//
// Usage:
//
//	helio serve                          # environment-driven config
//	helio serve --config helio.yaml      # file-driven config
//	helio serve --config helio.yaml --watch
//	helio validate helio.yaml
//	helio schema > helio-schema.json
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/luxsim/helio/pkg/config"
)

// CLI defines the command-line interface structure.
type CLI struct {
	// Commands
	Version  VersionCmd  `cmd:"" help:"Show version information"`
	Serve    ServeCmd    `cmd:"" help:"Start the gateway server"`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file"`
	Schema   SchemaCmd   `cmd:"" help:"Generate JSON schema for configuration files"`

	// Global flags
	Config    string `short:"c" help:"Path to configuration file" type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)" default:"info"`
	LogFile   string `help:"Write logs to file instead of stderr"`
	LogFormat string `help:"Log format (simple or verbose)" default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// Run executes the version command.
func (v *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	fmt.Printf("helio %s\n", version)
	return nil
}

func main() {
	config.LoadEnvFiles()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("helio"),
		kong.Description("Orchestration gateway for daylight simulation services"),
		kong.UsageOnError(),
	)

	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
