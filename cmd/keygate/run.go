package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/keygate/pkg/cli"
	"mercator-hq/keygate/pkg/config"
	"mercator-hq/keygate/pkg/keystore"
	"mercator-hq/keygate/pkg/requestlog"
	keytls "mercator-hq/keygate/pkg/security/tls"
	"mercator-hq/keygate/pkg/server"
	"mercator-hq/keygate/pkg/telemetry/events"
	"mercator-hq/keygate/pkg/telemetry/health"
	"mercator-hq/keygate/pkg/telemetry/metrics"
	"mercator-hq/keygate/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	upstream      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the keygate server",
	Long: `Start the keygate HTTP server.

The server answers POST /v1/authorize with a verdict for the request and,
when server.upstream_url is set, gates and forwards every other path.
Each evaluated request is written to the request log.

Examples:
  # Start with defaults and environment variables
  API_ENV=prod ALLOWED_ORIGINS=https://docs.example.com keygate run

  # Start with a config file
  keygate run --config /etc/keygate/keygate.yaml

  # Override the listen address
  keygate run --listen 0.0.0.0:8080

  # Validate config and open backends without serving
  keygate run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.upstream, "upstream", "", "override upstream URL")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and open backends without starting the server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.upstream != "" {
		cfg.Server.UpstreamURL = runFlags.upstream
	}
	if err := config.Validate(cfg); err != nil {
		return cli.WrapConfigError(err)
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	logger := slog.Default().With("component", "main")

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	observer := events.Multi(events.NewLogObserver(logger), collector)

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	keys, err := openKeyStore(&cfg.Keys, observer)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer keys.Close()

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.RegisterBackend("keystore", keys)

	var logStore requestlog.Storage
	if config.Enabled(cfg.Logs.Enabled) {
		logStore, err = openLogStorage(&cfg.Logs)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		defer logStore.Close()
		checker.RegisterBackend("requestlog", logStore)
	}

	tlsConfig, certs, err := keytls.NewServerConfig(&cfg.Server.TLS)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	if certs != nil {
		checker.RegisterCheck("tls", certs.Check)
	}

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Key store opened (%s)\n", cfg.Keys.Backend)
		if logStore != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Request log opened (%s)\n", cfg.Logs.Backend)
		}
		if certs != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Certificate loaded (%s)\n", cfg.Server.TLS.CertFile)
		}
		return nil
	}

	rec := newRecorder(&cfg.Logs, logStore, observer, collector)
	defer rec.Close()

	authorizer := newAuthorizer(&cfg.Auth, keys, observer, collector)

	srv, err := server.New(cfg, server.Deps{
		Evaluator: authorizer,
		Recorder:  rec,
		Metrics:   collector,
		Tracer:    tracer,
		Health:    checker,
		Version:   health.NewVersionInfo(Version, GitCommit, BuildDate),
		TLS:       tlsConfig,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if fs, ok := keys.(*keystore.FileStore); ok && cfg.Keys.Watch {
		logger.Info("watching key file", "path", fs.Path())
		g.Go(func() error {
			return fs.Watch(gctx)
		})
	}

	if certs != nil {
		g.Go(func() error {
			return certs.Run(gctx)
		})
	}

	if logStore != nil && cfg.Logs.Retention.PruneSchedule != "" {
		pruner, err := newPruner(&cfg.Logs, logStore, collector)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		if err := pruner.Start(gctx); err != nil {
			return cli.NewCommandError("run", err)
		}
		defer pruner.Stop()
		if next := pruner.NextPruning(); next != nil {
			logger.Info("request log pruning scheduled", "next_run", next.Format(time.RFC3339))
		}
	}

	g.Go(func() error {
		return srv.Start(gctx)
	})

	logger.Info("keygate started",
		"version", Version,
		"environment", cfg.Auth.Environment,
		"keyless_origins", len(cfg.Auth.KeylessOrigins),
		"key_backend", cfg.Keys.Backend,
		"logs_enabled", logStore != nil,
	)

	if err := g.Wait(); err != nil {
		return cli.NewCommandError("run", err)
	}

	logger.Info("keygate stopped")
	return nil
}
