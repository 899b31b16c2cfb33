package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-faster/errors"
)

// PingCheck adapts a connectivity probe, such as a database ping, to a
// CheckFunc. The error names the probed dependency.
func PingCheck(name string, ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return errors.Wrapf(err, "ping %s", name)
		}
		return nil
	}
}

// GoroutineCountCheck fails when more than max goroutines are running.
func GoroutineCountCheck(max int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > max {
			return errors.Errorf("%d goroutines running, limit %d", n, max)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when a collection since the previous run paused the
// world for longer than max. Pauses that were already reported are not
// reported again, so the check recovers once the heap settles.
func GCMaxPauseCheck(max time.Duration) CheckFunc {
	var (
		mu     sync.Mutex
		lastGC int64
	)
	return func(_ context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)

		mu.Lock()
		fresh := stats.NumGC - lastGC
		lastGC = stats.NumGC
		mu.Unlock()

		// stats.Pause is most recent first.
		for i, pause := range stats.Pause {
			if int64(i) >= fresh {
				break
			}
			if pause > max {
				return errors.Errorf("gc paused for %s, limit %s", pause, max)
			}
		}
		return nil
	}
}
