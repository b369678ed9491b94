package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/gpsform/internal/config"
	"github.com/roach88/gpsform/internal/connectivity"
	"github.com/roach88/gpsform/internal/web"
)

const (
	defaultGracefulTimeout = 10 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 30 * time.Second // Must cover a synchronous send plus a reconcile pass
	serverIdleTimeout      = 60 * time.Second
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the GPS form and its JSON API",
		Long: `Start the web surface, the single-writer engine and the reachability watcher.

The form page is served at /, its JSON API under /api, Prometheus metrics at
/metrics. Records buffered in the queue are delivered on startup when the
endpoint is reachable, and again on every offline-to-online transition.

Example:
  gpsform serve --endpoint https://collector.example.com/forms
  gpsform serve --config gpsform.yaml --addr 0.0.0.0:8080 --fix "52.52,13.40"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := newApp(ctx, cfg, appOptions{syncOnStart: true})
	if err != nil {
		return err
	}
	defer closeApp(a)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	server := &http.Server{
		Handler: web.NewServer(a.engine,
			web.WithTracing(cfg.Trace),
			web.WithMiddlewares(web.LoggingMiddleware),
		),
		ReadHeaderTimeout: serverReadTimeout,
		ReadTimeout:       serverReadTimeout,
		WriteTimeout:      serverWriteTimeout,
		IdleTimeout:       serverIdleTimeout,
	}

	slog.Info("serving", "addr", ln.Addr().String(), "endpoint", cfg.Endpoint, "watch", cfg.Watch)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving GPS form on http://%s\n", ln.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCancel(a.engine.Run(gctx))
	})

	if cfg.Watch {
		watcher := connectivity.NewWatcher(a.monitor, a.prober, cfg.WatchInterval)
		g.Go(func() error {
			return ignoreCancel(watcher.Run(gctx))
		})
	}

	g.Go(func() error {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}

	slog.Info("stopped gracefully")
	return nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
