package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/keygate/pkg/cli"
	"mercator-hq/keygate/pkg/config"
	"mercator-hq/keygate/pkg/requestlog"
	"mercator-hq/keygate/pkg/requestlog/export"
)

// logFilters are the query flags shared by "logs query" and "logs export".
type logFilters struct {
	collection  string
	route       string
	user        string
	environment string
	authorized  string
	keyless     string
	since       time.Duration
	from        string
	to          string
	limit       int
	offset      int
	order       string
}

var logsFlags struct {
	filters  logFilters
	output   string
	format   string
	file     string
	pretty   bool
	progress bool
	dryRun   bool
	days     int
	maxRecs  int64
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Query, export and prune the request log",
	Long: `Inspect and maintain the request log written by "keygate run".

Subcommands:
  query   - Print entries matching filters
  export  - Stream entries to a JSON or CSV file
  prune   - Apply the retention policy now

Examples:
  # Denied requests in the last day
  keygate logs query --authorized false --since 24h

  # Export one user's requests as CSV
  keygate logs export --user alice --format csv --output alice.csv

  # See what retention would delete
  keygate logs prune --dry-run`,
}

var logsQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query request log entries",
	Long: `Query request log entries with filters.

Time filters:
  --since 24h                       entries from the last 24 hours
  --from 2026-03-01T00:00:00Z       entries at or after a time (RFC3339)
  --to   2026-03-02T00:00:00Z       entries at or before a time (RFC3339)`,
	RunE: runLogsQuery,
}

var logsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export request log entries",
	Long: `Stream request log entries matching filters to a file or stdout.

Unlike "logs query", export has no default limit.`,
	RunE: runLogsExport,
}

var logsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Prune the request log now",
	Long: `Apply logs.retention (days and max_records) immediately, archiving
entries first when logs.retention.archive is configured.`,
	RunE: runLogsPrune,
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsQueryCmd, logsExportCmd, logsPruneCmd)

	for _, cmd := range []*cobra.Command{logsQueryCmd, logsExportCmd} {
		f := cmd.Flags()
		f.StringVar(&logsFlags.filters.collection, "collection", "", "collection (defaults to logs.collection)")
		f.StringVar(&logsFlags.filters.route, "route", "", "filter by route")
		f.StringVar(&logsFlags.filters.user, "user", "", "filter by verdict user name")
		f.StringVar(&logsFlags.filters.environment, "environment", "", "filter by deployment environment")
		f.StringVar(&logsFlags.filters.authorized, "authorized", "", "filter by outcome: true or false")
		f.StringVar(&logsFlags.filters.keyless, "keyless", "", "filter keyless entries: true or false")
		f.DurationVar(&logsFlags.filters.since, "since", 0, "only entries newer than this duration")
		f.StringVar(&logsFlags.filters.from, "from", "", "start time (RFC3339)")
		f.StringVar(&logsFlags.filters.to, "to", "", "end time (RFC3339)")
		f.StringVar(&logsFlags.filters.order, "order", "desc", "sort order: asc or desc")
	}

	logsQueryCmd.Flags().IntVar(&logsFlags.filters.limit, "limit", requestlog.DefaultQueryLimit, "max results")
	logsQueryCmd.Flags().IntVar(&logsFlags.filters.offset, "offset", 0, "pagination offset")
	logsQueryCmd.Flags().StringVarP(&logsFlags.output, "output", "o", "text", "output format: text, json")

	logsExportCmd.Flags().StringVar(&logsFlags.format, "format", "json", "export format: json, csv")
	logsExportCmd.Flags().StringVar(&logsFlags.file, "output", "", "output file (default: stdout)")
	logsExportCmd.Flags().BoolVar(&logsFlags.pretty, "pretty", false, "indent JSON output")
	logsExportCmd.Flags().BoolVar(&logsFlags.progress, "progress", false, "report progress on stderr")

	logsPruneCmd.Flags().BoolVar(&logsFlags.dryRun, "dry-run", false, "report what would be deleted without deleting")
	logsPruneCmd.Flags().IntVar(&logsFlags.days, "days", -1, "override logs.retention.days")
	logsPruneCmd.Flags().Int64Var(&logsFlags.maxRecs, "max-records", -1, "override logs.retention.max_records")
}

// buildQuery turns the filter flags into a query. now anchors --since.
func (f *logFilters) buildQuery(defaultCollection string, now time.Time) (*requestlog.Query, error) {
	q := &requestlog.Query{
		Collection:  f.collection,
		Route:       f.route,
		User:        f.user,
		Environment: f.environment,
		Limit:       f.limit,
		Offset:      f.offset,
		SortOrder:   f.order,
	}
	if q.Collection == "" {
		q.Collection = defaultCollection
	}

	var err error
	if q.Authorized, err = parseOptionalBool("authorized", f.authorized); err != nil {
		return nil, err
	}
	if q.Keyless, err = parseOptionalBool("keyless", f.keyless); err != nil {
		return nil, err
	}

	if f.since > 0 && f.from != "" {
		return nil, fmt.Errorf("--since and --from cannot be combined")
	}
	if f.since > 0 {
		start := now.Add(-f.since)
		q.StartTime = &start
	}
	if f.from != "" {
		start, err := time.Parse(time.RFC3339, f.from)
		if err != nil {
			return nil, fmt.Errorf("invalid --from: %w", err)
		}
		q.StartTime = &start
	}
	if f.to != "" {
		end, err := time.Parse(time.RFC3339, f.to)
		if err != nil {
			return nil, fmt.Errorf("invalid --to: %w", err)
		}
		q.EndTime = &end
	}

	if err := requestlog.ValidateQuery(q); err != nil {
		return nil, err
	}
	return q, nil
}

func parseOptionalBool(name, value string) (*bool, error) {
	if value == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: expected true or false", name, value)
	}
	return &b, nil
}

// openLogs loads the configuration and opens the request log storage.
func openLogs() (*config.Config, requestlog.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := openLogStorage(&cfg.Logs)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func runLogsQuery(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(logsFlags.output)
	if err != nil {
		return err
	}

	cfg, store, err := openLogs()
	if err != nil {
		return cli.NewCommandError("logs query", err)
	}
	defer store.Close()

	q, err := logsFlags.filters.buildQuery(cfg.Logs.Collection, time.Now())
	if err != nil {
		return cli.NewCommandError("logs query", err)
	}

	entries, err := store.Query(cmd.Context(), q)
	if err != nil {
		return cli.NewCommandError("logs query", err)
	}

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), entries)
}

func runLogsExport(cmd *cobra.Command, args []string) error {
	exporter, err := export.New(logsFlags.format, logsFlags.pretty)
	if err != nil {
		return err
	}

	cfg, store, err := openLogs()
	if err != nil {
		return cli.NewCommandError("logs export", err)
	}
	defer store.Close()

	logsFlags.filters.limit = 0
	logsFlags.filters.offset = 0
	q, err := logsFlags.filters.buildQuery(cfg.Logs.Collection, time.Now())
	if err != nil {
		return cli.NewCommandError("logs export", err)
	}

	var out io.Writer = cmd.OutOrStdout()
	if logsFlags.file != "" {
		f, err := os.Create(logsFlags.file)
		if err != nil {
			return cli.NewCommandError("logs export", fmt.Errorf("failed to create output file: %w", err))
		}
		defer f.Close()
		out = f
	}

	var progress cli.ProgressReporter = cli.NopProgress{}
	if logsFlags.progress {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr())
	}

	n, err := exportEntries(cmd.Context(), store, q, exporter, out, progress)
	if err != nil {
		progress.Error(err)
		return cli.NewCommandError("logs export", err)
	}
	progress.Finish()

	if logsFlags.file != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d entries to %s\n", n, logsFlags.file)
	}
	return nil
}

// exportEntries streams entries matching q through exporter, reporting
// each entry to progress. It returns the number of entries exported.
func exportEntries(ctx context.Context, store requestlog.Storage, q *requestlog.Query, exporter requestlog.Exporter, w io.Writer, progress cli.ProgressReporter) (int64, error) {
	total, err := store.Count(ctx, q)
	if err != nil {
		return 0, err
	}
	progress.Start(total)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries, errs, err := store.QueryStream(ctx, q)
	if err != nil {
		return 0, err
	}

	counted := make(chan *requestlog.Entry)
	var n int64
	go func() {
		defer close(counted)
		for e := range entries {
			select {
			case counted <- e:
				n++
				progress.Update(n)
			case <-ctx.Done():
				return
			}
		}
	}()

	exportErr := exporter.ExportStream(ctx, counted, w)
	cancel()
	for range counted {
	}
	if exportErr != nil {
		return n, exportErr
	}
	if err := <-errs; err != nil {
		return n, err
	}
	return n, nil
}

func runLogsPrune(cmd *cobra.Command, args []string) error {
	cfg, store, err := openLogs()
	if err != nil {
		return cli.NewCommandError("logs prune", err)
	}
	defer store.Close()

	logsCfg := cfg.Logs
	if logsFlags.days >= 0 {
		logsCfg.Retention.Days = logsFlags.days
	}
	if logsFlags.maxRecs >= 0 {
		logsCfg.Retention.MaxRecords = logsFlags.maxRecs
	}

	pruner, err := newPruner(&logsCfg, store, nil)
	if err != nil {
		return cli.NewCommandError("logs prune", err)
	}

	out := cmd.OutOrStdout()
	if logsFlags.dryRun {
		byAge, byCount, err := pruner.Preview(cmd.Context())
		if err != nil {
			return cli.NewCommandError("logs prune", err)
		}
		fmt.Fprintf(out, "Would delete %d entries older than %d days\n", byAge, logsCfg.Retention.Days)
		fmt.Fprintf(out, "Would delete %d entries over the %d entry limit\n", byCount, logsCfg.Retention.MaxRecords)
		return nil
	}

	deleted, err := pruner.Prune(cmd.Context())
	if err != nil {
		return cli.NewCommandError("logs prune", err)
	}
	fmt.Fprintf(out, "✓ Deleted %d entries\n", deleted)
	return nil
}
