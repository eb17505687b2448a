// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graph

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchDebounce is how long Watch waits after the last file event before
// re-ingesting. Tests shorten it.
var WatchDebounce = 400 * time.Millisecond

// Watch re-runs Ingest whenever a file under graphDir/concepts/ changes,
// until ctx is cancelled. Bursts of events are collapsed into one run.
// Ingest output goes to w. Watch returns nil on cancellation.
func (s *Store) Watch(ctx context.Context, w io.Writer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Join(s.graphDir, conceptsDir)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	logger.Info("watching concepts", zap.String("dir", dir))

	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			logger.Debug("concept file event", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(WatchDebounce)
			trigger = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))

		case <-trigger:
			trigger = nil
			summary, err := s.Ingest(ctx, w)
			if err != nil {
				logger.Error("re-ingest failed", zap.Error(err))
				continue
			}
			logger.Info("re-ingested concepts",
				zap.Int("indexed", summary.Indexed),
				zap.Int("updated", summary.Updated),
				zap.Int("failed", summary.Failed),
				zap.Int("removed", summary.Removed))
		}
	}
}
