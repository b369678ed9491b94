package connectivity

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultWatchInterval is the probe interval while online.
	DefaultWatchInterval = 15 * time.Second

	// maxOfflineInterval caps the backoff between probes while offline.
	maxOfflineInterval = 2 * time.Minute
)

// Watcher feeds periodic probe results into a Monitor.
//
// While online it probes every interval. While offline it spaces probes
// with exponential backoff starting at one second, and resets the backoff
// once the endpoint answers again.
type Watcher struct {
	monitor  *Monitor
	prober   Prober
	interval time.Duration
	backoff  *backoff.ExponentialBackOff
	logger   *slog.Logger
}

// NewWatcher creates a watcher. If interval is 0, uses DefaultWatchInterval.
func NewWatcher(m *Monitor, p Prober, interval time.Duration) *Watcher {
	if interval == 0 {
		interval = DefaultWatchInterval
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = maxOfflineInterval
	if b.MaxInterval < interval {
		b.MaxInterval = interval
	}

	return &Watcher{
		monitor:  m,
		prober:   p,
		interval: interval,
		backoff:  b,
		logger:   slog.Default(),
	}
}

// Check probes once and applies the result to the monitor.
func (w *Watcher) Check(ctx context.Context) (Transition, bool) {
	err := w.prober.Probe(ctx)
	if err != nil && ctx.Err() != nil {
		// Shutdown, not an outage
		return Transition{}, false
	}
	if err != nil {
		w.logger.Debug("endpoint unreachable", "error", err)
	}
	return w.monitor.SetOnline(err == nil)
}

// Run probes until ctx is cancelled. Returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	for {
		w.Check(ctx)

		timer := time.NewTimer(w.nextDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// nextDelay returns the wait before the next probe.
func (w *Watcher) nextDelay() time.Duration {
	if w.monitor.Online() {
		w.backoff.Reset()
		return w.interval
	}
	d := w.backoff.NextBackOff()
	if d == backoff.Stop {
		return w.backoff.MaxInterval
	}
	return d
}
