package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/gpsform/internal/config"
	"github.com/roach88/gpsform/internal/record"
	"github.com/roach88/gpsform/internal/store"
)

// PendingOptions holds flags for the pending command.
type PendingOptions struct {
	*RootOptions
	ID int64
}

// PendingResult is the JSON payload of the pending command.
type PendingResult struct {
	Records []record.FormRecord `json:"records"`
	Total   int                 `json:"total"`
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PendingOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List records waiting in the queue",
		Long: `List buffered records in insertion order.

Reads the queue directly; no engine is started and nothing is sent.

Examples:
  gpsform pending --db ./gpsform.db
  gpsform pending --id 3 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPending(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.ID, "id", 0, "show only the record with this id")
	config.RegisterFlags(cmd.Flags(), "db")

	return cmd
}

func runPending(opts *PendingOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}

	// Opening would create an empty database
	if _, err := os.Stat(cfg.DB); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("queue database not found: %s", cfg.DB))
	}

	q, err := store.Open(cfg.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open queue", err)
	}
	defer q.Close()

	ctx := cmd.Context()
	out := formatter(opts.RootOptions, cmd)

	var records []record.FormRecord
	if cmd.Flags().Changed("id") {
		rec, found, err := q.Get(ctx, opts.ID)
		if err != nil {
			return out.Fail(ExitFailure, "failed to read queue", err)
		}
		if !found {
			return NewExitError(ExitFailure, fmt.Sprintf("record %d is not pending", opts.ID))
		}
		records = []record.FormRecord{rec}
	} else {
		records, err = q.ListAll(ctx)
		if err != nil {
			return out.Fail(ExitFailure, "failed to read queue", err)
		}
	}

	if out.JSON() {
		if records == nil {
			records = []record.FormRecord{}
		}
		return out.Success(PendingResult{Records: records, Total: len(records)})
	}

	w := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(w, "No pending submissions.")
		return nil
	}
	for _, rec := range records {
		fmt.Fprintln(w, rec)
		out.VerboseLog("  key=%s", rec.Key)
	}
	fmt.Fprintf(w, "%d submission(s) waiting to be sent.\n", len(records))
	return nil
}
