package main

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/chorusdev/chorus/internal/lockmgr"
	"github.com/chorusdev/chorus/internal/metrics"
)

const reaperLockFileName = ".chorus-reaper.lock"

// startReaper races for an exclusive flock on a file beside the database so
// that a multi-process deployment sharing one database file runs at most
// one active reap loop. A process that loses the race still serves HTTP
// requests normally, it just never starts its own reaper goroutine,
// mirroring the teacher's own use of flock for its sync lock file.
func startReaper(ctx context.Context, dbPath string, locks *lockmgr.Manager, interval time.Duration, log zerolog.Logger) func() {
	dbFile := strings.TrimPrefix(dbPath, "file:")
	if i := strings.IndexByte(dbFile, '?'); i >= 0 {
		dbFile = dbFile[:i]
	}
	lockPath := filepath.Join(filepath.Dir(dbFile), reaperLockFileName)
	fl := flock.New(lockPath)

	acquired, err := fl.TryLock()
	if err != nil {
		log.Warn().Err(err).Str("lock_path", lockPath).Msg("reaper lock check failed; not starting reaper")
		return func() {}
	}
	if !acquired {
		log.Info().Str("lock_path", lockPath).Msg("another instance owns the reaper; serving requests only")
		return func() {}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				reapedLocks, reapedRecords, err := locks.ReapExpired(ctx)
				if err != nil {
					log.Error().Err(err).Msg("reap cycle failed")
					continue
				}
				metrics.ReaperCyclesTotal.Inc()
				metrics.ReaperLocksReapedTotal.Add(float64(reapedLocks))
				metrics.ReaperIdempotencyRecordsReapedTotal.Add(float64(reapedRecords))
				if reapedLocks > 0 || reapedRecords > 0 {
					log.Info().Int("locks", reapedLocks).Int("idempotency_records", reapedRecords).Msg("reap cycle")
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-done
		_ = fl.Unlock()
	}
}
