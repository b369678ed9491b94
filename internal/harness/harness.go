package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/gpsform/internal/connectivity"
	"github.com/roach88/gpsform/internal/engine"
	"github.com/roach88/gpsform/internal/form"
	"github.com/roach88/gpsform/internal/geo"
	"github.com/roach88/gpsform/internal/reconcile"
	"github.com/roach88/gpsform/internal/record"
	"github.com/roach88/gpsform/internal/store"
	"github.com/roach88/gpsform/internal/testutil"
)

// seedTimestamp stamps queued records that give no timestamp.
const seedTimestamp = "2024-01-01T00:00:00Z"

// Harness is the test execution engine.
// It runs one scenario with a deterministic clock and submission keys.
type Harness struct {
	engine *engine.Engine
	sink   *testutil.ScriptedSink
	queue  *store.Queue
	logger *slog.Logger

	mu    sync.Mutex
	trace []TraceEvent
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and seed queued records
// 2. Start an engine over a scripted sink
// 3. Execute flow steps with expect validation
// 4. Stop the engine and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller context bounding every step.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	h := &Harness{
		sink:   testutil.NewScriptedSink(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	if scenario.StorageEnabled() {
		q, err := store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer q.Close()
		h.queue = q

		if err := h.seed(ctx, scenario.Queued); err != nil {
			return nil, fmt.Errorf("failed to seed queue: %w", err)
		}
	}

	h.engine = h.build(scenario)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(runCtx) }()

	result := NewResult()
	flowErr := h.executeFlow(ctx, scenario.Flow, result)

	h.engine.Stop()
	if err := <-done; err != nil && runCtx.Err() == nil {
		return nil, fmt.Errorf("engine stopped with error: %w", err)
	}
	if flowErr != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", flowErr)
	}

	h.mu.Lock()
	result.Trace = append(result.Trace, h.trace...)
	h.mu.Unlock()

	result.SinkCalls = h.sink.CallCount()
	if h.queue != nil {
		pending, err := h.queue.ListAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list final queue: %w", err)
		}
		result.Pending = append(result.Pending, pending...)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

func (h *Harness) build(scenario *Scenario) *engine.Engine {
	monitor := connectivity.NewMonitor(scenario.Online, connectivity.WithLogger(h.logger))
	clock := testutil.NewClock(testutil.DefaultStart, time.Second)

	var locator geo.Provider = geo.UnavailableProvider{}
	if scenario.Fix != nil {
		lat, lon := scenario.Fix.Coordinates()
		locator = geo.NewStaticProvider(lat.Value, lon.Value)
	}

	opts := []engine.Option{
		engine.WithObserver(h.observe),
		engine.WithLogger(h.logger),
	}

	var formQueue form.Queue
	if h.queue != nil {
		formQueue = h.queue
		opts = append(opts, engine.WithQueue(h.queue, reconcile.New(h.queue, h.sink, reconcile.WithLogger(h.logger))))
	}

	ctrl := form.New(monitor, h.sink, formQueue,
		form.WithClock(clock.Now),
		form.WithKeyGenerator(record.NewFixedGenerator()),
		form.WithClearAfterSubmit(scenario.ClearAfterSubmit),
		form.WithLocator(locator),
		form.WithLogger(h.logger),
	)
	return engine.New(ctrl, monitor, opts...)
}

// seed writes records left over from an "earlier session".
func (h *Harness) seed(ctx context.Context, queued []RecordInput) error {
	for i, in := range queued {
		lat, lon := in.Coordinates()
		ts := in.Timestamp
		if ts == "" {
			ts = seedTimestamp
		}
		rec := record.FormRecord{
			Key:       fmt.Sprintf("seed-%d", i+1),
			Latitude:  lat,
			Longitude: lon,
			Timestamp: ts,
		}
		if _, err := h.queue.Enqueue(ctx, rec); err != nil {
			return fmt.Errorf("queued[%d]: %w", i, err)
		}
	}
	return nil
}

// observe runs on the engine goroutine.
func (h *Harness) observe(s engine.Step) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trace = append(h.trace, traceEvent(s))
}

// stepResult is what a flow step produced, for expect validation.
type stepResult struct {
	outcome string
	synced  bool
	report  *reconcile.Report
	err     error
}

// executeFlow runs all flow steps and validates expect clauses.
// Failed expectations are recorded on result; only harness faults are returned.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		got, err := h.execute(ctx, step)
		if err != nil {
			return fmt.Errorf("flow[%d] %s: %w", i, step.Action, err)
		}

		for _, msg := range checkExpect(step, got) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Action, msg))
		}

		h.logger.Info("flow step completed",
			"step", i,
			"action", step.Action,
			"outcome", got.outcome,
			"error", ErrorCode(got.err),
		)
	}
	return nil
}

func (h *Harness) execute(ctx context.Context, step FlowStep) (stepResult, error) {
	switch step.Action {
	case ActionCapture:
		var loc *geo.Location
		if step.Latitude != nil {
			loc = &geo.Location{Latitude: *step.Latitude, Longitude: *step.Longitude}
		}
		_, err := h.engine.Capture(ctx, loc)
		return stepResult{err: err}, nil

	case ActionSubmit:
		res, err := h.engine.Submit(ctx)
		got := stepResult{err: err}
		if err == nil {
			got.outcome = res.Outcome.String()
		}
		return got, nil

	case ActionConnect, ActionDisconnect:
		report, ran, err := h.engine.SetOnline(ctx, step.Action == ActionConnect)
		got := stepResult{synced: ran, err: err}
		if ran {
			got.report = &report
		}
		return got, nil

	case ActionSync:
		report, err := h.engine.Sync(ctx)
		got := stepResult{err: err}
		if err == nil {
			got.report = &report
		}
		return got, nil

	case ActionSink:
		if step.Fail != 0 {
			h.sink.FailWith(step.Fail)
		} else {
			h.sink.Succeed()
		}
		for _, status := range step.Script {
			if status == 0 {
				h.sink.Script(nil)
			} else {
				h.sink.Script(record.NewDeliveryError(0, status, nil))
			}
		}
		return stepResult{}, nil

	default:
		return stepResult{}, fmt.Errorf("unknown action %q", step.Action)
	}
}

// checkExpect compares a step result with its expect clause.
func checkExpect(step FlowStep, got stepResult) []string {
	exp := step.Expect
	if exp == nil {
		if got.err != nil {
			return []string{fmt.Sprintf("unexpected error %s: %v", ErrorCode(got.err), got.err)}
		}
		return nil
	}

	var msgs []string
	if code := ErrorCode(got.err); code != exp.Error {
		msgs = append(msgs, fmt.Sprintf("expected error %q, got %q", exp.Error, code))
	}
	if exp.Outcome != "" && exp.Outcome != got.outcome {
		msgs = append(msgs, fmt.Sprintf("expected outcome %q, got %q", exp.Outcome, got.outcome))
	}
	if exp.Synced != nil && *exp.Synced != got.synced {
		msgs = append(msgs, fmt.Sprintf("expected synced=%v, got %v", *exp.Synced, got.synced))
	}

	if exp.Delivered == nil && exp.Failed == nil && exp.Remaining == nil {
		return msgs
	}
	if got.report == nil {
		return append(msgs, "expected a reconcile report, none was produced")
	}
	checkInt := func(name string, want *int, have int) {
		if want != nil && *want != have {
			msgs = append(msgs, fmt.Sprintf("expected %s=%d, got %d", name, *want, have))
		}
	}
	checkInt("delivered", exp.Delivered, len(got.report.Delivered))
	checkInt("failed", exp.Failed, len(got.report.Failed))
	checkInt("remaining", exp.Remaining, got.report.Remaining)
	return msgs
}
