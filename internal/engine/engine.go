package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/gpsform/internal/connectivity"
	"github.com/roach88/gpsform/internal/form"
	"github.com/roach88/gpsform/internal/geo"
	"github.com/roach88/gpsform/internal/reconcile"
	"github.com/roach88/gpsform/internal/record"
	"github.com/roach88/gpsform/internal/telemetry"
)

// Pending is the read side of store.Queue.
type Pending interface {
	ListAll(ctx context.Context) ([]record.FormRecord, error)
	Count(ctx context.Context) (int, error)
}

// Trigger names what caused a processed step.
type Trigger string

const (
	TriggerCaller     Trigger = "caller"
	TriggerStartup    Trigger = "startup"
	TriggerTransition Trigger = "transition"
)

// Step describes one handled event or monitor transition. Seq is stamped
// from the engine Clock in processing order.
type Step struct {
	Seq     int64
	Type    EventType
	Trigger Trigger

	// Result is set for EventSubmit.
	Result *form.Result

	// Location is set for a successful EventCapture.
	Location *geo.Location

	// Transition is set when the step changed the connectivity state.
	Transition *connectivity.Transition

	// Report is set when the step ran a reconcile pass.
	Report *reconcile.Report

	Err error
}

// Status is a point-in-time view for the user-facing surface.
type Status struct {
	Online  bool        `json:"online"`
	Storage bool        `json:"storage"`
	Pending int         `json:"pending"`
	Form    form.Status `json:"form"`
}

// Engine is the single-writer event loop over the form controller, the
// connectivity monitor and the reconciler.
//
// Thread-safety model:
//   - Submit, Capture, SetOnline, Sync, Status, Pending: safe from any goroutine
//   - Run: must be called from exactly one goroutine
type Engine struct {
	controller *form.Controller
	monitor    *connectivity.Monitor
	queue      Pending
	reconciler *reconcile.Reconciler

	events      *eventQueue
	clock       *Clock
	observer    func(Step)
	syncOnStart bool
	logger      *slog.Logger

	// lastTransition is the seq of the newest connectivity transition already
	// acted upon. Only touched by the Run goroutine.
	lastTransition int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithQueue enables buffering and reconciliation.
func WithQueue(q Pending, r *reconcile.Reconciler) Option {
	return func(e *Engine) {
		e.queue = q
		e.reconciler = r
	}
}

// WithObserver registers fn to receive every processed Step.
// fn runs on the Run goroutine and must not call back into the engine.
func WithObserver(fn func(Step)) Option {
	return func(e *Engine) {
		e.observer = fn
	}
}

// WithSyncOnStart controls the startup reconcile pass. Default: enabled.
func WithSyncOnStart(enabled bool) Option {
	return func(e *Engine) {
		e.syncOnStart = enabled
	}
}

// WithClock sets the logical clock used to stamp steps.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an engine. Without WithQueue the engine sends directly only.
func New(c *form.Controller, m *connectivity.Monitor, opts ...Option) *Engine {
	e := &Engine{
		controller:  c,
		monitor:     m,
		events:      newEventQueue(),
		clock:       NewClock(),
		syncOnStart: true,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HasQueue reports whether a durable queue is configured.
func (e *Engine) HasQueue() bool {
	return e.reconciler != nil
}

// Submit resolves one submission from the held coordinates.
func (e *Engine) Submit(ctx context.Context) (form.Result, error) {
	out, err := e.call(ctx, Event{Type: EventSubmit})
	return out.result, err
}

// Capture holds loc, or asks the locator for a fix when loc is nil.
func (e *Engine) Capture(ctx context.Context, loc *geo.Location) (geo.Location, error) {
	out, err := e.call(ctx, Event{Type: EventCapture, Location: loc})
	return out.location, err
}

// SetOnline applies a host connectivity signal. An online signal runs a
// reconcile pass when a queue is configured; ran reports whether it did.
func (e *Engine) SetOnline(ctx context.Context, online bool) (report reconcile.Report, ran bool, err error) {
	out, err := e.call(ctx, Event{Type: EventConnectivity, Online: online})
	return out.report, out.synced, err
}

// Sync runs one reconcile pass. Fails with ErrOffline while offline and
// ErrNoQueue without a durable queue.
func (e *Engine) Sync(ctx context.Context) (reconcile.Report, error) {
	out, err := e.call(ctx, Event{Type: EventSync})
	return out.report, err
}

// Status reports connectivity, queue depth and form state.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	st := Status{
		Online:  e.monitor.Online(),
		Storage: e.queue != nil,
		Form:    e.controller.Snapshot(),
	}
	if e.queue == nil {
		return st, nil
	}
	n, err := e.queue.Count(ctx)
	if err != nil {
		return st, fmt.Errorf("count pending records: %w", err)
	}
	st.Pending = n
	return st, nil
}

// Pending lists buffered records in insertion order.
func (e *Engine) Pending(ctx context.Context) ([]record.FormRecord, error) {
	if e.queue == nil {
		return nil, ErrNoQueue
	}
	return e.queue.ListAll(ctx)
}

// call enqueues ev and waits for its reply.
func (e *Engine) call(ctx context.Context, ev Event) (outcome, error) {
	ev.ctx = ctx
	ev.reply = make(chan outcome, 1)
	if !e.events.Enqueue(ev) {
		return outcome{}, ErrStopped
	}

	select {
	case out := <-ev.reply:
		return out, out.err
	case <-ctx.Done():
		return outcome{}, ctx.Err()
	}
}

// Run starts the single-writer event loop.
// Blocks until ctx is cancelled or Stop() is called. Events still queued at
// shutdown are answered with ErrStopped.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "online", e.monitor.Online(), "queue", e.HasQueue())

	transitions, unsubscribe := e.monitor.Subscribe(16)
	defer unsubscribe()
	defer e.drain()

	e.lastTransition = e.monitor.Seq()
	telemetry.SetOnline(e.monitor.Online())

	if e.syncOnStart && e.reconciler != nil && e.monitor.Online() {
		e.reconcileStep(ctx, EventSync, TriggerStartup, nil)
	}

	for {
		if ev, ok := e.events.TryDequeue(); ok {
			e.process(ctx, ev)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.events.Close()
			return ctx.Err()

		case tr, ok := <-transitions:
			if !ok {
				transitions = nil
				continue
			}
			e.onTransition(ctx, tr)

		case <-e.events.Wait():
			// A closed queue keeps the signal channel readable
			if e.events.Closed() && e.events.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine.
// Closes the event queue, which will cause Run() to return.
func (e *Engine) Stop() {
	e.events.Close()
}

// drain answers every event left in the queue with ErrStopped.
func (e *Engine) drain() {
	e.events.Close()
	for _, ev := range e.events.Drain() {
		ev.reply <- outcome{err: ErrStopped}
	}
}

// process handles one caller event. The step is emitted before the reply,
// so an observer has seen it by the time the caller returns.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) process(runCtx context.Context, ev Event) {
	ctx := ev.ctx
	if ctx == nil {
		ctx = runCtx
	}
	if ctx.Err() != nil {
		// Caller gave up before the event was reached
		ev.reply <- outcome{err: ctx.Err()}
		return
	}

	e.logger.Debug("processing event", "type", ev.Type.String())

	switch ev.Type {
	case EventSubmit:
		res, err := e.controller.Submit(ctx)
		step := Step{Type: EventSubmit, Trigger: TriggerCaller, Err: err}
		if err == nil {
			step.Result = &res
		}
		e.refreshDepth(ctx)
		e.emit(step)
		ev.reply <- outcome{result: res, err: err}

	case EventCapture:
		loc, err := e.capture(ctx, ev.Location)
		step := Step{Type: EventCapture, Trigger: TriggerCaller, Err: err}
		if err == nil {
			step.Location = &loc
		}
		e.emit(step)
		ev.reply <- outcome{location: loc, err: err}

	case EventConnectivity:
		var trp *connectivity.Transition
		if tr, changed := e.monitor.SetOnline(ev.Online); changed {
			e.lastTransition = tr.Seq
			telemetry.SetOnline(ev.Online)
			trp = &tr
		}
		if ev.Online && e.reconciler != nil {
			ev.reply <- e.reconcileStep(ctx, EventConnectivity, TriggerCaller, trp)
			return
		}
		e.emit(Step{Type: EventConnectivity, Trigger: TriggerCaller, Transition: trp})
		ev.reply <- outcome{}

	case EventSync:
		switch {
		case e.reconciler == nil:
			e.emit(Step{Type: EventSync, Trigger: TriggerCaller, Err: ErrNoQueue})
			ev.reply <- outcome{err: ErrNoQueue}
		case !e.monitor.Online():
			e.emit(Step{Type: EventSync, Trigger: TriggerCaller, Err: ErrOffline})
			ev.reply <- outcome{err: ErrOffline}
		default:
			ev.reply <- e.reconcileStep(ctx, EventSync, TriggerCaller, nil)
		}

	default:
		err := fmt.Errorf("unknown event type: %d", ev.Type)
		e.logger.Error("event processing failed", "type", int(ev.Type), "error", err)
		ev.reply <- outcome{err: err}
	}
}

func (e *Engine) capture(ctx context.Context, loc *geo.Location) (geo.Location, error) {
	if loc == nil {
		return e.controller.Capture(ctx)
	}
	if err := loc.Validate(); err != nil {
		return geo.Location{}, err
	}
	lat, lon := loc.Coordinates()
	if err := e.controller.SetCoordinates(lat, lon); err != nil {
		return geo.Location{}, err
	}
	return *loc, nil
}

// onTransition reacts to a transition that did not come from a caller event.
func (e *Engine) onTransition(ctx context.Context, tr connectivity.Transition) {
	if tr.Seq <= e.lastTransition {
		return
	}
	e.lastTransition = tr.Seq
	telemetry.SetOnline(tr.To == connectivity.Online)

	// A later transition may already have reversed this one
	if tr.To != connectivity.Online || !e.monitor.Online() || e.reconciler == nil {
		e.emit(Step{Type: EventConnectivity, Trigger: TriggerTransition, Transition: &tr})
		return
	}
	e.reconcileStep(ctx, EventConnectivity, TriggerTransition, &tr)
}

// reconcileStep runs one pass and emits it as a step.
func (e *Engine) reconcileStep(ctx context.Context, typ EventType, trigger Trigger, tr *connectivity.Transition) outcome {
	report, err := e.reconciler.Run(ctx)
	if err != nil {
		e.logger.Error("reconcile pass failed", "trigger", string(trigger), "error", err)
	}
	e.emit(Step{Type: typ, Trigger: trigger, Transition: tr, Report: &report, Err: err})
	return outcome{report: report, synced: true, err: err}
}

func (e *Engine) refreshDepth(ctx context.Context) {
	if e.queue == nil {
		return
	}
	if n, err := e.queue.Count(ctx); err == nil {
		telemetry.QueueDepth.Set(float64(n))
	}
}

func (e *Engine) emit(step Step) {
	step.Seq = e.clock.Next()
	if e.observer != nil {
		e.observer(step)
	}
}
