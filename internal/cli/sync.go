package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/gpsform/internal/config"
	"github.com/roach88/gpsform/internal/reconcile"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Deliver buffered records once",
		Long: `Run one reconcile pass over the queue.

Every record pending when the pass starts is sent once in insertion order.
Delivered records are removed; failed records stay queued for the next pass.

Exit codes:
  0 - Queue is empty after the pass
  1 - One or more records remain queued
  2 - Command error (invalid config, queue cannot be opened)

Example:
  gpsform sync --db ./gpsform.db --endpoint https://collector.example.com/forms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	config.RegisterFlags(cmd.Flags(), "db", "endpoint", "timeout", "trace")
	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	// The pass itself is the reachability test
	online := true
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, appOptions{requireQueue: true, online: &online})
	if err != nil {
		return err
	}
	defer closeApp(a)
	a.start(ctx)

	out := formatter(opts.RootOptions, cmd)

	report, err := a.engine.Sync(ctx)
	if err != nil {
		return out.Fail(ExitFailure, "sync failed", err)
	}

	if out.JSON() {
		if err := out.Success(report); err != nil {
			return err
		}
	} else {
		printReport(cmd, out, report)
	}

	if report.Remaining > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) remain queued", report.Remaining))
	}
	return nil
}

func printReport(cmd *cobra.Command, out *OutputFormatter, report reconcile.Report) {
	w := cmd.OutOrStdout()
	if report.Attempted == 0 {
		fmt.Fprintln(w, "No pending submissions.")
		return
	}
	fmt.Fprintf(w, "Delivered %d of %d submission(s), %d remaining.\n",
		len(report.Delivered), report.Attempted, report.Remaining)
	for _, id := range report.Failed {
		out.VerboseLog("  record %d failed", id)
	}
}
