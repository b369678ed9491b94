package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/gpsform/internal/connectivity"
	"github.com/roach88/gpsform/internal/geo"
	"github.com/roach88/gpsform/internal/record"
	"github.com/roach88/gpsform/internal/sink"
	"github.com/roach88/gpsform/internal/telemetry"
)

// ErrSubmitInProgress is returned by Submit while another submission is resolving.
var ErrSubmitInProgress = errors.New("a submission is already in progress")

// Queue is the subset of store.Queue the controller writes to.
type Queue interface {
	Enqueue(ctx context.Context, rec record.FormRecord) (record.FormRecord, error)
}

// Controller owns the transient form state and the in-flight record.
//
// Thread-safety: All methods are safe for concurrent use. The lock is not
// held during delivery or storage I/O.
type Controller struct {
	mu    sync.Mutex
	state State
	lat   record.Coordinate
	lon   record.Coordinate
	last  *Result

	monitor *connectivity.Monitor
	sink    sink.Sink
	queue   Queue

	locator    geo.Provider
	probe      bool
	clearAfter bool
	now        func() time.Time
	keys       record.KeyGenerator
	logger     *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithProbe corroborates an online signal with a reachability probe before sending.
func WithProbe(enabled bool) Option {
	return func(c *Controller) {
		c.probe = enabled
	}
}

// WithClearAfterSubmit drops the captured coordinates once a submission resolves.
func WithClearAfterSubmit(enabled bool) Option {
	return func(c *Controller) {
		c.clearAfter = enabled
	}
}

// WithClock overrides the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithKeyGenerator overrides submission key generation.
func WithKeyGenerator(g record.KeyGenerator) Option {
	return func(c *Controller) {
		c.keys = g
	}
}

// WithLocator sets the geolocation provider used by Capture.
func WithLocator(p geo.Provider) Option {
	return func(c *Controller) {
		c.locator = p
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// New creates a controller.
//
// q may be nil when the durable queue is unavailable: submissions are then
// sent directly only, and a submission that cannot be sent fails with
// STORAGE_UNAVAILABLE.
func New(m *connectivity.Monitor, s sink.Sink, q Queue, opts ...Option) *Controller {
	c := &Controller{
		state:   Idle,
		monitor: m,
		sink:    s,
		queue:   q,
		locator: geo.UnavailableProvider{},
		now:     time.Now,
		keys:    record.UUIDv7Generator{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasQueue reports whether submissions can be buffered.
func (c *Controller) HasQueue() bool {
	return c.queue != nil
}

// Capture asks the locator for the current position and holds it.
//
// On failure the held coordinates are unchanged and a
// GEOLOCATION_UNAVAILABLE error is returned; Submit still works.
func (c *Controller) Capture(ctx context.Context) (geo.Location, error) {
	loc, err := c.locator.Locate(ctx)
	if err != nil {
		if !record.IsGeolocationUnavailable(err) {
			err = record.NewGeolocationError("locate", err)
		}
		c.logger.Warn("geolocation unavailable", "error", err)
		return geo.Location{}, err
	}
	if err := loc.Validate(); err != nil {
		c.logger.Warn("locator returned an invalid fix", "error", err)
		return geo.Location{}, fmt.Errorf("invalid fix: %w", err)
	}

	lat, lon := loc.Coordinates()
	c.hold(lat, lon)
	return loc, nil
}

// SetCoordinates holds coordinates supplied by the host (e.g. a browser fix).
// Absent coordinates clear the held values.
func (c *Controller) SetCoordinates(lat, lon record.Coordinate) error {
	if !record.ValidLatitude(lat) {
		return fmt.Errorf("latitude %s out of range [-90, 90]", lat)
	}
	if !record.ValidLongitude(lon) {
		return fmt.Errorf("longitude %s out of range [-180, 180]", lon)
	}
	c.hold(lat, lon)
	return nil
}

func (c *Controller) hold(lat, lon record.Coordinate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lat, c.lon = lat, lon
	if c.state == Submitting {
		return
	}
	if lat.Valid || lon.Valid {
		c.state = CoordinatesCaptured
	} else {
		c.state = Idle
	}
}

// Submit resolves one submission from the held coordinates.
//
// Online: the record is sent; if the send fails it is buffered instead and
// Result.DeliveryErr carries the failure. Offline: the record is buffered
// without a send attempt. The returned error is non-nil only when the record
// could be neither sent nor buffered; the held coordinates are kept so the
// user can retry.
func (c *Controller) Submit(ctx context.Context) (Result, error) {
	rec, prev, err := c.begin()
	if err != nil {
		return Result{}, err
	}

	online := c.monitor.Online()
	if online && c.probe {
		online = c.monitor.Probe(ctx)
	}

	var deliveryErr error
	if online {
		deliveryErr = c.sink.Send(ctx, rec)
		telemetry.ObserveDelivery(telemetry.PathDirect, deliveryErr)
		if deliveryErr == nil {
			c.logger.Info("record sent", "key", rec.Key)
			return c.resolve(Result{Outcome: Sent, Record: rec}), nil
		}
		c.logger.Warn("direct send failed, buffering", "key", rec.Key, "error", deliveryErr)
	}

	stored, err := c.buffer(ctx, rec, deliveryErr != nil)
	if err != nil {
		c.abort(prev)
		telemetry.SubmissionsTotal.WithLabelValues("failed").Inc()
		if deliveryErr != nil {
			return Result{}, fmt.Errorf("%w (after %v)", err, deliveryErr)
		}
		return Result{}, err
	}

	c.logger.Info("record buffered", "id", stored.ID, "key", stored.Key)
	return c.resolve(Result{Outcome: Buffered, Record: stored, DeliveryErr: deliveryErr}), nil
}

// begin moves to Submitting and builds the in-flight record.
func (c *Controller) begin() (record.FormRecord, State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Submitting {
		return record.FormRecord{}, c.state, ErrSubmitInProgress
	}
	prev := c.state
	c.state = Submitting
	return record.New(c.keys.Generate(), c.lat, c.lon, c.now()), prev, nil
}

func (c *Controller) buffer(ctx context.Context, rec record.FormRecord, afterFailedSend bool) (record.FormRecord, error) {
	if c.queue == nil {
		return record.FormRecord{}, record.NewStorageError("buffer submission", errors.New("durable queue unavailable"))
	}
	if afterFailedSend {
		// The send may have used up ctx; the record still has to be kept
		ctx = context.WithoutCancel(ctx)
	}
	return c.queue.Enqueue(ctx, rec)
}

func (c *Controller) resolve(res Result) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = Resolved
	c.last = &res
	if c.clearAfter {
		c.lat, c.lon = record.Coordinate{}, record.Coordinate{}
	}
	telemetry.SubmissionsTotal.WithLabelValues(res.Outcome.String()).Inc()
	return res
}

func (c *Controller) abort(prev State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = prev
}

// Reset starts a new submission. The state returns to Idle, or to
// CoordinatesCaptured when coordinates are still held.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Submitting {
		return
	}
	c.last = nil
	if c.lat.Valid || c.lon.Valid {
		c.state = CoordinatesCaptured
		return
	}
	c.state = Idle
}

// Snapshot returns the current state and held coordinates.
func (c *Controller) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: c.state, Latitude: c.lat, Longitude: c.lon}
	if c.last != nil {
		last := *c.last
		st.Last = &last
	}
	return st
}
