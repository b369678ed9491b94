// Package reconcile drains the durable queue through the submission sink.
//
// A pass snapshots the queue once and delivers each record in FIFO order.
// A record is removed only after the sink confirmed it; a failed record stays
// queued for the next pass and does not stop the rest. Overlapping Run calls
// share one pass, so a record is never delivered twice by concurrent passes.
// Delivery is at-least-once: if the endpoint accepts a record but the
// response is lost, the record is sent again by a later pass.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/gpsform/internal/record"
	"github.com/roach88/gpsform/internal/sink"
	"github.com/roach88/gpsform/internal/telemetry"
)

// Queue is the subset of store.Queue the reconciler needs.
type Queue interface {
	ListAll(ctx context.Context) ([]record.FormRecord, error)
	Remove(ctx context.Context, id int64) (bool, error)
}

// Report summarizes one pass.
type Report struct {
	// Attempted is the number of records in the snapshot that were sent.
	Attempted int `json:"attempted"`

	// Delivered lists ids confirmed by the sink and removed from the queue.
	Delivered []int64 `json:"delivered"`

	// Failed lists ids the sink rejected; they stay queued.
	Failed []int64 `json:"failed"`

	// Remaining is the number of snapshot records still queued after the pass.
	// Records enqueued while the pass ran are not counted.
	Remaining int `json:"remaining"`

	// Shared is true when this caller joined a pass started by another caller.
	Shared bool `json:"shared,omitempty"`
}

// Empty reports whether the queue was empty after the pass.
func (r Report) Empty() bool {
	return r.Remaining == 0
}

// String renders a one-line summary.
func (r Report) String() string {
	return fmt.Sprintf("attempted=%d delivered=%d failed=%d remaining=%d",
		r.Attempted, len(r.Delivered), len(r.Failed), r.Remaining)
}

// Reconciler runs reconcile passes.
//
// Thread-safety: Run is safe for concurrent use.
type Reconciler struct {
	queue  Queue
	sink   sink.Sink
	group  singleflight.Group
	tracer trace.Tracer
	logger *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// New creates a reconciler over q and s.
func New(q Queue, s sink.Sink, opts ...Option) *Reconciler {
	r := &Reconciler{
		queue:  q,
		sink:   s,
		tracer: telemetry.Tracer("reconcile"),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one pass and waits for it to finish.
//
// If a pass is already running, Run waits for it and returns its report with
// Shared set. The shared pass runs under the context of the caller that
// started it; when that context is cancelled, a joined caller whose own ctx is
// still live starts a fresh pass instead of returning the other caller's
// cancellation. Errors are limited to queue failures and cancellation;
// delivery failures are reported in Report.Failed.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	for {
		v, err, shared := r.group.Do("pass", func() (any, error) {
			return r.pass(ctx)
		})
		report, _ := v.(Report)
		report.Shared = shared
		if shared && isCancellation(err) && ctx.Err() == nil {
			r.logger.Debug("joined pass was cancelled by its owner, running again")
			continue
		}
		return report, err
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (r *Reconciler) pass(ctx context.Context) (Report, error) {
	ctx, span := r.tracer.Start(ctx, "reconcile pass")
	defer span.End()

	report := Report{Delivered: []int64{}, Failed: []int64{}}

	pending, err := r.queue.ListAll(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("list pending records: %w", err)
	}
	span.SetAttributes(attribute.Int("gpsform.pending", len(pending)))

	if len(pending) == 0 {
		telemetry.QueueDepth.Set(0)
		return report, nil
	}

	r.logger.Info("reconcile pass started", "pending", len(pending))

	remaining := len(pending)
	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			report.Remaining = remaining
			return report, fmt.Errorf("reconcile pass interrupted: %w", err)
		}

		report.Attempted++
		sendErr := r.sink.Send(ctx, rec)
		telemetry.ObserveDelivery(telemetry.PathReconcile, sendErr)

		if sendErr != nil {
			report.Failed = append(report.Failed, rec.ID)
			r.logger.Warn("delivery failed, record stays queued", "id", rec.ID, "error", sendErr)
			continue
		}

		// The endpoint confirmed delivery; removal must not be skipped on cancel
		if _, err := r.queue.Remove(context.WithoutCancel(ctx), rec.ID); err != nil {
			// Delivered but still queued; the next pass sends it again
			report.Failed = append(report.Failed, rec.ID)
			r.logger.Error("remove delivered record", "id", rec.ID, "error", err)
			continue
		}
		report.Delivered = append(report.Delivered, rec.ID)
		remaining--
	}

	report.Remaining = remaining
	telemetry.QueueDepth.Set(float64(remaining))
	telemetry.ReconcilePasses.Inc()

	span.SetAttributes(
		attribute.Int("gpsform.delivered", len(report.Delivered)),
		attribute.Int("gpsform.failed", len(report.Failed)),
	)
	r.logger.Info("reconcile pass finished",
		"delivered", len(report.Delivered),
		"failed", len(report.Failed),
		"remaining", report.Remaining,
	)
	return report, nil
}
