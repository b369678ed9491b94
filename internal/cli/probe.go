package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/gpsform/internal/config"
	"github.com/roach88/gpsform/internal/connectivity"
)

// ProbeOptions holds flags for the probe command.
type ProbeOptions struct {
	*RootOptions
}

// ProbeResult is the JSON payload of the probe command.
type ProbeResult struct {
	URL       string `json:"url"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// NewProbeCommand creates the probe command.
func NewProbeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProbeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check whether the endpoint is reachable",
		Long: `Send one HEAD request to the probe URL (default: the endpoint).

Any 2xx or 3xx answer counts as reachable. Exits 1 when unreachable.

Example:
  gpsform probe --endpoint https://collector.example.com/forms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(opts, cmd)
		},
	}

	config.RegisterFlags(cmd.Flags(), "endpoint", "probe_url")
	return cmd
}

func runProbe(opts *ProbeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	target := cfg.ProbeTarget()
	if target == "" {
		return NewExitError(ExitCommandError, "no probe target: set --endpoint or --probe-url")
	}

	prober := connectivity.NewHTTPProber(target, connectivity.DefaultProbeTimeout)
	probeErr := prober.Probe(cmd.Context())

	result := ProbeResult{URL: target, Reachable: probeErr == nil}
	if probeErr != nil {
		result.Error = probeErr.Error()
	}

	out := formatter(opts.RootOptions, cmd)
	if out.JSON() {
		if err := out.Success(result); err != nil {
			return err
		}
	} else if result.Reachable {
		fmt.Fprintf(cmd.OutOrStdout(), "reachable: %s\n", target)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "unreachable: %s (%v)\n", target, probeErr)
	}

	if probeErr != nil {
		exitErr := WrapExitError(ExitFailure, "endpoint unreachable", probeErr)
		exitErr.Reported = true
		return exitErr
	}
	return nil
}
