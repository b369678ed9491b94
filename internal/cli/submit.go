package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/gpsform/internal/config"
	"github.com/roach88/gpsform/internal/form"
	"github.com/roach88/gpsform/internal/geo"
	"github.com/roach88/gpsform/internal/record"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Latitude  float64
	Longitude float64
	Offline   bool
}

// SubmitResult is the JSON payload of a resolved submission.
type SubmitResult struct {
	Outcome       form.Outcome      `json:"outcome"`
	Message       string            `json:"message"`
	Record        record.FormRecord `json:"record"`
	DeliveryError string            `json:"delivery_error,omitempty"`
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one GPS record",
		Long: `Submit one record to the endpoint, or buffer it in the queue.

Coordinates come from --lat/--lon, or from the configured fix when neither is
given. Without either the record is submitted with empty coordinates.

A record is buffered when the endpoint is offline or the delivery fails, and
is delivered by "gpsform sync" or a running "gpsform serve".

Examples:
  gpsform submit --endpoint https://collector.example.com/forms --lat 52.52 --lon 13.405
  gpsform submit --offline --lat 52.52 --lon 13.405
  gpsform submit --fix "52.52,13.405" --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, cmd)
		},
	}

	cmd.Flags().Float64Var(&opts.Latitude, "lat", 0, "latitude in decimal degrees")
	cmd.Flags().Float64Var(&opts.Longitude, "lon", 0, "longitude in decimal degrees")
	cmd.Flags().BoolVar(&opts.Offline, "offline", false, "buffer the record without a send attempt")
	config.RegisterFlags(cmd.Flags(),
		"db", "endpoint", "probe_url", "probe", "timeout", "initial_online", "fix", "trace")

	return cmd
}

func runSubmit(opts *SubmitOptions, cmd *cobra.Command) error {
	flags := cmd.Flags()
	explicit := flags.Changed("lat") || flags.Changed("lon")
	if flags.Changed("lat") != flags.Changed("lon") {
		return NewExitError(ExitCommandError, "--lat and --lon must be given together")
	}

	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	var location *geo.Location
	if explicit {
		location = &geo.Location{Latitude: opts.Latitude, Longitude: opts.Longitude}
		if err := location.Validate(); err != nil {
			return WrapExitError(ExitCommandError, "invalid coordinates", err)
		}
	}

	appOpts := appOptions{}
	if opts.Offline {
		offline := false
		appOpts.online = &offline
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, appOpts)
	if err != nil {
		return err
	}
	defer closeApp(a)
	a.start(ctx)

	out := formatter(opts.RootOptions, cmd)

	if explicit || cfg.Fix != "" {
		loc, err := a.engine.Capture(ctx, location)
		if err != nil {
			return out.Fail(ExitFailure, "capture failed", err)
		}
		out.VerboseLog("captured lat=%v lon=%v", loc.Latitude, loc.Longitude)
	}

	res, err := a.engine.Submit(ctx)
	if err != nil {
		return out.Fail(ExitFailure, "submit failed", err)
	}

	if res.DeliveryErr != nil {
		out.VerboseLog("direct send failed: %v", res.DeliveryErr)
	}

	if out.JSON() {
		result := SubmitResult{
			Outcome: res.Outcome,
			Message: res.Message(),
			Record:  res.Record,
		}
		if res.DeliveryErr != nil {
			result.DeliveryError = res.DeliveryErr.Error()
		}
		return out.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, res.Message())
	if res.Outcome == form.Buffered {
		fmt.Fprintf(w, "Queued %s\n", res.Record)
	} else {
		fmt.Fprintf(w, "Sent lat=%s lon=%s ts=%s\n",
			orNone(res.Record.Latitude.String()), orNone(res.Record.Longitude.String()), res.Record.Timestamp)
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
