package main

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/keygate/pkg/cli"
	"mercator-hq/keygate/pkg/telemetry/events"
)

var checkFlags struct {
	key         string
	origin      string
	environment string
	output      string
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate a credential against the key store",
	Long: `Evaluate a credential and origin with the configured policy and key
store, and print the verdict. Nothing is written to the request log.

The command exits with status 3 when the request would be denied.

Examples:
  # Check a key
  keygate check --key '$2b$10$abcdefghijklmnopqrstuu:secret'

  # Check keyless access from an origin in another environment
  keygate check --origin https://docs.example.com --environment prod

  # JSON output
  keygate check --key 'salt:secret' -o json`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkFlags.key, "key", "", "raw credential in salt:secret form (empty for keyless)")
	checkCmd.Flags().StringVar(&checkFlags.origin, "origin", "", "request origin")
	checkCmd.Flags().StringVar(&checkFlags.environment, "environment", "", "override the deployment environment")
	checkCmd.Flags().StringVarP(&checkFlags.output, "output", "o", "text", "output format: text, json")
}

func runCheck(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(checkFlags.output)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	authCfg := cfg.Auth
	if env := strings.TrimSpace(checkFlags.environment); env != "" {
		authCfg.Environment = env
	}

	keys, err := openKeyStore(&cfg.Keys, nil)
	if err != nil {
		return cli.NewCommandError("check", err)
	}
	defer keys.Close()

	var failure error
	observer := events.ObserverFunc(func(_ context.Context, ev events.Event) {
		failure = ev.Err
	})

	authorizer := newAuthorizer(&authCfg, keys, observer, nil)
	policy := authorizer.Policy()
	slog.Debug("evaluating credential",
		"environment", policy.Environment(),
		"keyless_origins", len(policy.KeylessOrigins()),
		"has_key", checkFlags.key != "",
	)

	verdict := authorizer.Evaluate(cmd.Context(), checkFlags.key, checkFlags.origin)

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), verdict); err != nil {
		return err
	}

	if failure != nil {
		cmd.PrintErrln("warning:", failure)
	}
	if !verdict.Authorized {
		return cli.ErrDenied
	}
	return nil
}
