package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/roach88/gpsform/internal/config"
	"github.com/roach88/gpsform/internal/connectivity"
	"github.com/roach88/gpsform/internal/engine"
	"github.com/roach88/gpsform/internal/form"
	"github.com/roach88/gpsform/internal/reconcile"
	"github.com/roach88/gpsform/internal/sink"
	"github.com/roach88/gpsform/internal/store"
	"github.com/roach88/gpsform/internal/telemetry"
)

// appOptions tune how a command assembles the stack.
type appOptions struct {
	// requireQueue fails instead of degrading when the queue cannot be opened.
	requireQueue bool

	// online forces the initial connectivity signal, overriding initial_online.
	online *bool

	// syncOnStart runs a reconcile pass when the engine starts online.
	syncOnStart bool
}

// app is the assembled gpsform stack for one command invocation.
type app struct {
	cfg     *config.Config
	queue   *store.Queue // nil when storage is unavailable
	prober  *connectivity.HTTPProber
	monitor *connectivity.Monitor
	sink    *sink.HTTPSink
	engine  *engine.Engine
	logger  *slog.Logger

	shutdownTracer func(context.Context) error
	done           chan error
}

// newApp wires the queue, connectivity monitor, sink, controller and engine
// from cfg. The engine is not started.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: slog.Default()}

	telemetry.InitMetrics()
	if cfg.Trace {
		shutdown, err := telemetry.InitTracer(ctx, os.Stderr)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to initialize tracing", err)
		}
		a.shutdownTracer = shutdown
	}

	q, err := store.Open(cfg.DB)
	if err != nil {
		if opts.requireQueue {
			a.Close()
			return nil, WrapExitError(ExitCommandError, "failed to open queue", err)
		}
		a.logger.Warn("durable queue unavailable, sending directly only", "db", cfg.DB, "error", err)
	} else {
		a.queue = q
		a.logger.Debug("queue ready", "db", q.Path())
	}

	a.prober = connectivity.NewHTTPProber(cfg.ProbeTarget(), connectivity.DefaultProbeTimeout)

	initial := a.initialOnline(ctx, opts)
	a.monitor = connectivity.NewMonitor(initial,
		connectivity.WithProber(a.prober),
		connectivity.WithLogger(a.logger),
	)

	a.sink = sink.NewHTTPSink(cfg.Endpoint,
		sink.WithTimeout(cfg.Timeout),
		sink.WithTracing(cfg.Trace),
	)

	engineOpts := []engine.Option{
		engine.WithSyncOnStart(opts.syncOnStart),
		engine.WithLogger(a.logger),
	}

	// A nil *store.Queue must not reach the controller as a non-nil interface
	var formQueue form.Queue
	if a.queue != nil {
		formQueue = a.queue
		engineOpts = append(engineOpts,
			engine.WithQueue(a.queue, reconcile.New(a.queue, a.sink, reconcile.WithLogger(a.logger))))
	}

	ctrl := form.New(a.monitor, a.sink, formQueue,
		form.WithProbe(cfg.Probe),
		form.WithClearAfterSubmit(cfg.ClearAfterSubmit),
		form.WithLocator(cfg.Locator()),
		form.WithLogger(a.logger),
	)
	a.engine = engine.New(ctrl, a.monitor, engineOpts...)

	a.logger.Info("gpsform ready",
		"endpoint", cfg.Endpoint,
		"online", initial,
		"storage", a.queue != nil,
	)
	return a, nil
}

func (a *app) initialOnline(ctx context.Context, opts appOptions) bool {
	if opts.online != nil {
		return *opts.online
	}
	switch a.cfg.InitialOnline {
	case config.InitialOnline:
		return true
	case config.InitialOffline:
		return false
	default:
		err := a.prober.Probe(ctx)
		if err != nil {
			a.logger.Info("endpoint unreachable at startup", "url", a.prober.URL(), "error", err)
		}
		return err == nil
	}
}

// start runs the engine loop in the background until Close.
func (a *app) start(ctx context.Context) {
	a.done = make(chan error, 1)
	go func() { a.done <- a.engine.Run(ctx) }()
}

// Close stops a started engine and releases the queue and tracer.
func (a *app) Close() error {
	var errs []error
	if a.done != nil {
		a.engine.Stop()
		if err := <-a.done; err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
		a.done = nil
	}
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			errs = append(errs, err)
		}
		a.queue = nil
	}
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(context.Background()); err != nil {
			errs = append(errs, err)
		}
		a.shutdownTracer = nil
	}
	return errors.Join(errs...)
}

// closeApp closes a and logs any failure.
func closeApp(a *app) {
	if err := a.Close(); err != nil {
		slog.Error("error shutting down", "error", err)
	}
}
