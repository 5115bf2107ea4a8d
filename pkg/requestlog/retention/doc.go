// Package retention prunes the request log.
//
// A Pruner deletes entries older than the retention period and, when a cap
// is set, the oldest entries beyond it. Entries can be archived as JSON
// before deletion, to a local directory (LocalArchiver) or an S3 bucket
// (S3Archiver). The Scheduler runs the pruner on a cron expression:
//
//	pruner := retention.NewPruner(store, &retention.Config{
//	    RetentionDays: 90,
//	    PruneSchedule: "0 3 * * *",
//	}, retention.NewLocalArchiver("data/archives"))
//	if err := pruner.Start(ctx); err != nil {
//	    return err
//	}
//	defer pruner.Stop()
package retention
