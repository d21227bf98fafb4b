package tasks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// newScratchCleanupTask removes scratch files older than files.stale_after.
// Audio analysis deletes its own files; this catches the ones left behind
// by a crash.
func newScratchCleanupTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "scratch_cleanup")

	return func(ctx context.Context) error {
		dir := deps.Config.Files.ScratchDir
		cutoff := deps.now().Add(-deps.Config.Files.StaleAfter)
		startTime := time.Now()

		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			log.DebugContext(ctx, "Scratch directory does not exist, nothing to clean", "dir", dir)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read scratch dir: %w", err)
		}

		var removed, failed int
		for _, entry := range entries {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.WarnContext(ctx, "Failed to remove stale scratch file", "file", entry.Name(), "error", err)
				failed++
				continue
			}
			removed++
		}

		log.InfoContext(ctx, "Scratch cleanup completed", "removed", removed, "failed", failed, "duration", time.Since(startTime))
		if failed > 0 {
			return fmt.Errorf("failed to remove %d scratch files", failed)
		}
		return nil
	}
}
