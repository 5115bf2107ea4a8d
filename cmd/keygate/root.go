package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/keygate/pkg/cli"
	"mercator-hq/keygate/pkg/config"
	"mercator-hq/keygate/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile  string
	envFiles []string
	logLevel string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "keygate",
	Short: "Keygate - API key and origin authorization gate",
	Long: `Keygate authorizes API requests by salted key or by allowlisted origin
and records every request it evaluates.

Configuration is read from the file given with --config (optional), then
from the environment: KEYGATE_* variables and the deployment variables
API_ENV, ALLOWED_ORIGINS and DB_NAME. A .env file is loaded first when
present.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFiles...); err != nil {
			return cli.WrapConfigError(err)
		}
		return nil
	},
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return cli.ExitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults plus environment when empty)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (same as --log-level debug)")
}

// loadConfig loads the configuration once and installs the logger it
// describes.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.WrapConfigError(err)
	}
	cfg := config.MustGetConfig()

	logCfg := cfg.Telemetry.Logging
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	if verbose {
		logCfg.Level = "debug"
	}

	if _, err := logging.Setup(logging.Config{
		Level:     logCfg.Level,
		Format:    logCfg.Format,
		AddSource: logCfg.AddSource,
	}); err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}

	return cfg, nil
}
