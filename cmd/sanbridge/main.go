package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/systmms/sanbridge/cmd/sanbridge/commands"
	"github.com/systmms/sanbridge/internal/config"
	dserrors "github.com/systmms/sanbridge/internal/errors"
	"github.com/systmms/sanbridge/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := run()
	memguard.Purge()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", dserrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile string
		noColor    bool
		debug      bool
		logFormat  string
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "sanbridge",
		Short: "Authenticated sessions with SAN storage arrays",
		Long: `sanbridge logs in to Hitachi VSP and Dell VPLEX management APIs, keeps the
session alive and reads array resources through it.

Array passwords are read from environment variables, the OS keychain or a
cloud secret store and are only ever held sealed in memory.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logFormat != "text" && logFormat != "json" {
				return fmt.Errorf("invalid --log-format %q: use text or json", logFormat)
			}
			cfg.Path = configFile
			cfg.Logger = logging.NewWithOptions(logging.Options{
				Debug:   debug,
				NoColor: noColor,
				JSON:    logFormat == "json",
			})
			return nil
		},
	}

	defaultConfig := config.DefaultPath
	if env := os.Getenv("SANBRIDGE_CONFIG"); env != "" {
		defaultConfig = env
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", defaultConfig, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(
		commands.NewArraysCommand(cfg),
		commands.NewLoginCommand(cfg),
		commands.NewGetCommand(cfg),
		commands.NewServeCommand(cfg),
		commands.NewCompletionCommand(cfg),
	)

	return rootCmd.Execute()
}
