/*
Package cli provides helpers shared by the keygate commands.

Output Formatting:

Commands print verdicts and request log entries as text columns or JSON:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, verdict); err != nil {
		return err
	}

Progress Reporting:

Exports report progress on stderr:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(total)
	progress.Update(written)
	progress.Finish()

Signal Handling and Exit Codes:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
	os.Exit(cli.ExitCode(run(ctx)))
*/
package cli
