package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/keygate/pkg/requestlog"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is how long entries are kept. 0 keeps them forever.
	RetentionDays int

	// PruneSchedule is a cron expression, e.g. "0 3 * * *".
	PruneSchedule string

	// MaxRecords caps the number of entries. 0 means unlimited.
	MaxRecords int64

	// Collection limits pruning to one collection. Empty prunes all.
	Collection string

	// Metrics is optional.
	Metrics Metrics
}

// Metrics receives the number of entries each prune run deleted.
// *metrics.Collector implements it.
type Metrics interface {
	RecordPruned(n int64)
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 90,
		PruneSchedule: "0 3 * * *",
	}
}

// Pruner deletes request log entries past their retention.
type Pruner struct {
	storage   requestlog.Storage
	config    *Config
	archiver  Archiver
	logger    *slog.Logger
	scheduler *Scheduler
	now       func() time.Time
}

// NewPruner creates a pruner. archiver may be nil to delete without
// archiving.
func NewPruner(storage requestlog.Storage, config *Config, archiver Archiver) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Pruner{
		storage:  storage,
		config:   config,
		archiver: archiver,
		logger:   slog.Default().With("component", "requestlog.retention"),
		now:      time.Now,
	}
	p.scheduler = NewScheduler(p)

	return p
}

// Prune deletes entries older than RetentionDays, then the oldest entries
// beyond MaxRecords. Returns the total deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.RetentionDays > 0 {
		deleted, err := p.pruneByAge(ctx)
		if err != nil {
			return total, fmt.Errorf("prune by age failed: %w", err)
		}
		total += deleted
		p.logger.Info("pruned entries by age",
			"deleted_count", deleted,
			"retention_days", p.config.RetentionDays,
		)
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.pruneByCount(ctx)
		if err != nil {
			return total, fmt.Errorf("prune by count failed: %w", err)
		}
		total += deleted
		p.logger.Info("pruned entries by count",
			"deleted_count", deleted,
			"max_records", p.config.MaxRecords,
		)
	}

	if total == 0 {
		p.logger.Debug("no entries pruned")
	} else if p.config.Metrics != nil {
		p.config.Metrics.RecordPruned(total)
	}

	return total, nil
}

// Preview reports how many entries Prune would delete by age and by count,
// without deleting or archiving anything.
func (p *Pruner) Preview(ctx context.Context) (byAge, byCount int64, err error) {
	if p.config.RetentionDays > 0 {
		cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)
		byAge, err = p.storage.Count(ctx, &requestlog.Query{
			Collection: p.config.Collection,
			EndTime:    &cutoff,
		})
		if err != nil {
			return 0, 0, requestlog.NewRetentionError(p.config.RetentionDays, err)
		}
	}

	if p.config.MaxRecords > 0 {
		total, err := p.storage.Count(ctx, &requestlog.Query{Collection: p.config.Collection})
		if err != nil {
			return 0, 0, fmt.Errorf("failed to count entries: %w", err)
		}
		if remaining := total - byAge; remaining > p.config.MaxRecords {
			byCount = remaining - p.config.MaxRecords
		}
	}

	return byAge, byCount, nil
}

func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)
	q := &requestlog.Query{
		Collection: p.config.Collection,
		EndTime:    &cutoff,
		SortOrder:  "asc",
	}

	if p.archiver != nil {
		entries, err := p.storage.Query(ctx, q)
		if err != nil {
			return 0, requestlog.NewRetentionError(p.config.RetentionDays, err)
		}
		if err := p.archive(ctx, "age", entries); err != nil {
			return 0, requestlog.NewRetentionError(p.config.RetentionDays, err)
		}
	}

	deleted, err := p.storage.Delete(ctx, q)
	if err != nil {
		return 0, requestlog.NewRetentionError(p.config.RetentionDays, err)
	}
	return deleted, nil
}

func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, &requestlog.Query{Collection: p.config.Collection})
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	if count <= p.config.MaxRecords {
		return 0, nil
	}

	toDelete := count - p.config.MaxRecords
	p.logger.Info("entry count exceeds limit, pruning oldest",
		"current_count", count,
		"max_records", p.config.MaxRecords,
		"to_delete", toDelete,
	)

	oldest, err := p.storage.Query(ctx, &requestlog.Query{
		Collection: p.config.Collection,
		SortOrder:  "asc",
		Limit:      int(toDelete),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query entries: %w", err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}

	if err := p.archive(ctx, "count", oldest); err != nil {
		return 0, fmt.Errorf("archive failed: %w", err)
	}

	// Entries sharing the cutoff timestamp are deleted together.
	cutoff := oldest[len(oldest)-1].ReqTime
	deleted, err := p.storage.Delete(ctx, &requestlog.Query{
		Collection: p.config.Collection,
		EndTime:    &cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}
	return deleted, nil
}

func (p *Pruner) archive(ctx context.Context, kind string, entries []*requestlog.Entry) error {
	if p.archiver == nil || len(entries) == 0 {
		return nil
	}

	collection := p.config.Collection
	if collection == "" {
		collection = "requests"
	}
	name := fmt.Sprintf("%s-%s-%s.json", collection, kind, p.now().UTC().Format("2006-01-02-150405"))

	location, err := p.archiver.Archive(ctx, name, entries)
	if err != nil {
		return err
	}

	p.logger.Info("request log entries archived",
		"location", location,
		"entry_count", len(entries),
	)
	return nil
}

// Start starts scheduled pruning.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops scheduled pruning.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the next scheduled run, or nil.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
