package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/careconnect/telehealth-platform/internal/observability/metrics"
	"github.com/careconnect/telehealth-platform/pkg/logging"
)

// Runner drives a set of sweeps, each on its own ticker, until the context
// is cancelled.
type Runner struct {
	logger  *logging.Logger
	entries []entry
}

type entry struct {
	sweep    Sweep
	interval time.Duration
}

// NewRunner creates an empty runner.
func NewRunner(logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{logger: logger}
}

// Add registers a sweep with its interval.
func (r *Runner) Add(sweep Sweep, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	r.entries = append(r.entries, entry{sweep: sweep, interval: interval})
	return r
}

// Start runs every sweep once immediately, then on its interval, and blocks
// until the context is cancelled.
func (r *Runner) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, e := range r.entries {
		wg.Add(1)
		go func(e entry) {
			defer wg.Done()
			r.runOnce(ctx, e.sweep)

			ticker := time.NewTicker(e.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					r.runOnce(ctx, e.sweep)
				}
			}
		}(e)
	}
	wg.Wait()
}

func (r *Runner) runOnce(ctx context.Context, sweep Sweep) {
	processed, err := sweep.Run(ctx, time.Now().UTC())
	if err != nil {
		metrics.SweepErrorsTotal.WithLabelValues(sweep.Name()).Inc()
		r.logger.Error("sweep failed", "sweep", sweep.Name(), "error", err)
		return
	}
	if processed > 0 {
		metrics.SweepProcessedTotal.WithLabelValues(sweep.Name()).Add(float64(processed))
		r.logger.Info("sweep processed rows", "sweep", sweep.Name(), "count", processed)
	}
}
