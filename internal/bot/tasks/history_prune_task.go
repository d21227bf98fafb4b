package tasks

import (
	"context"
	"fmt"
	"time"
)

// newHistoryPruneTask deletes turns older than database.retention_days.
// A retention of zero keeps history forever.
func newHistoryPruneTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "history_prune")

	return func(ctx context.Context) error {
		days := deps.Config.Database.RetentionDays
		if days <= 0 {
			log.DebugContext(ctx, "History retention disabled, skipping prune")
			return nil
		}

		before := deps.now().AddDate(0, 0, -days)
		startTime := time.Now()

		n, err := deps.Store.PruneTurns(ctx, before)
		if err != nil {
			log.ErrorContext(ctx, "History prune failed", "error", err)
			return fmt.Errorf("history prune failed: %w", err)
		}

		log.InfoContext(ctx, "History prune completed", "deleted", n, "before", before, "duration", time.Since(startTime))
		return nil
	}
}
