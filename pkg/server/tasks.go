package server

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/nicktill/moldwatch/pkg/logging"
	"github.com/nicktill/moldwatch/pkg/server/monitor"
)

// gcDiscardRatio rewrites a value log file when half of it is garbage.
const gcDiscardRatio = 0.5

// GarbageCollector is implemented by the badger store.
type GarbageCollector interface {
	RunGC(discardRatio float64) error
}

// RunBadgerGC runs value log garbage collection every interval until ctx is
// done. Badger accumulates overwritten data in the value log, so the
// embedded backend needs this to keep disk usage bounded.
func RunBadgerGC(ctx context.Context, gc GarbageCollector, interval time.Duration, tm *monitor.TaskMonitor) {
	log := logging.Component("server")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("badger GC scheduler started", "interval", interval)

	for {
		select {
		case <-ticker.C:
			runGCOnce(gc, tm)
		case <-ctx.Done():
			log.Info("stopping badger GC scheduler")
			return
		}
	}
}

// runGCOnce runs one GC pass. ErrNoRewrite means there was nothing to
// collect and counts as success.
func runGCOnce(gc GarbageCollector, tm *monitor.TaskMonitor) {
	log := logging.Component("server")
	start := time.Now()

	err := gc.RunGC(gcDiscardRatio)
	switch {
	case err == nil:
		tm.RecordSuccess()
		log.Info("badger GC reclaimed space", "duration", time.Since(start).Round(time.Millisecond))
	case errors.Is(err, badger.ErrNoRewrite):
		tm.RecordSuccess()
		log.Debug("badger GC found nothing to rewrite", "duration", time.Since(start).Round(time.Millisecond))
	default:
		tm.RecordFailure(err)
		status := tm.Status()
		if status.ConsecutiveErrors > 3 {
			log.Error("badger GC keeps failing", "consecutive_errors", status.ConsecutiveErrors, "error", err)
		} else {
			log.Warn("badger GC failed", "error", err)
		}
	}
}
