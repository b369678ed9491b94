package form

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gpsform/internal/connectivity"
	"github.com/roach88/gpsform/internal/geo"
	"github.com/roach88/gpsform/internal/record"
	"github.com/roach88/gpsform/internal/store"
	"github.com/roach88/gpsform/internal/testutil"
)

type fixture struct {
	monitor *connectivity.Monitor
	sink    *testutil.ScriptedSink
	queue   *store.Queue
	clock   *testutil.Clock
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	q, err := store.Open(filepath.Join(t.TempDir(), "forms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	return &fixture{
		monitor: connectivity.NewMonitor(online),
		sink:    testutil.NewScriptedSink(),
		queue:   q,
		clock:   testutil.NewClock(testutil.DefaultStart, time.Second),
	}
}

func (f *fixture) controller(opts ...Option) *Controller {
	opts = append([]Option{
		WithClock(f.clock.Now),
		WithKeyGenerator(record.NewFixedGenerator()),
	}, opts...)
	return New(f.monitor, f.sink, f.queue, opts...)
}

func (f *fixture) pending(t *testing.T) []record.FormRecord {
	t.Helper()
	recs, err := f.queue.ListAll(context.Background())
	require.NoError(t, err)
	return recs
}

func TestSubmit_OfflineBuffersWithoutSending(t *testing.T) {
	f := newFixture(t, false)
	c := f.controller()

	require.NoError(t, c.SetCoordinates(record.Coord(5), record.Coord(6)))
	res, err := c.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Buffered, res.Outcome)
	assert.True(t, res.Record.Persisted())
	assert.NoError(t, res.DeliveryErr)
	assert.Equal(t, 0, f.sink.CallCount(), "sink must not be called offline")

	pending := f.pending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, res.Record.ID, pending[0].ID)
	assert.Equal(t, record.Coord(5), pending[0].Latitude)
	assert.Equal(t, record.Coord(6), pending[0].Longitude)
	assert.Equal(t, "2024-01-01T00:00:00.000Z", pending[0].Timestamp)
}

func TestSubmit_OnlineSendsWithoutQueueing(t *testing.T) {
	f := newFixture(t, true)
	c := f.controller()

	require.NoError(t, c.SetCoordinates(record.Coord(10), record.Coord(20)))
	res, err := c.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Sent, res.Outcome)
	assert.False(t, res.Record.Persisted())
	assert.Equal(t, 1, f.sink.CallCount())
	assert.Empty(t, f.pending(t), "a sent record must not also be queued")
	assert.Equal(t, "Form submitted.", res.Message())
}

func TestSubmit_OnlineFailureFallsBackToQueue(t *testing.T) {
	f := newFixture(t, true)
	f.sink.FailWith(503)
	c := f.controller()

	res, err := c.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Buffered, res.Outcome)
	require.Error(t, res.DeliveryErr)
	assert.True(t, record.IsDeliveryError(res.DeliveryErr))
	assert.Equal(t, MessageBufferedRetry, res.Message())
	assert.Equal(t, 1, f.sink.CallCount())
	assert.Len(t, f.pending(t), 1)
}

func TestSubmit_ProbeOverridesStaleOnlineSignal(t *testing.T) {
	f := newFixture(t, false)
	f.monitor = connectivity.NewMonitor(true, connectivity.WithProber(
		connectivity.ProberFunc(func(context.Context) error { return errors.New("unreachable") }),
	))
	c := f.controller(WithProbe(true))

	res, err := c.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Buffered, res.Outcome)
	assert.Equal(t, 0, f.sink.CallCount(), "failed probe means offline")
	assert.True(t, f.monitor.Online(), "probe must not rewrite the cached signal")
}

func TestSubmit_NoQueueOnlineSendsDirectly(t *testing.T) {
	f := newFixture(t, true)
	c := New(f.monitor, f.sink, nil)

	assert.False(t, c.HasQueue())
	res, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Sent, res.Outcome)
}

func TestSubmit_NoQueueOfflineSurfacesStorageError(t *testing.T) {
	f := newFixture(t, false)
	c := New(f.monitor, f.sink, nil)
	require.NoError(t, c.SetCoordinates(record.Coord(1), record.Coord(2)))

	_, err := c.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, record.IsStorageUnavailable(err))

	st := c.Snapshot()
	assert.Equal(t, CoordinatesCaptured, st.State, "failed submit returns to the previous state")
	assert.Equal(t, record.Coord(1), st.Latitude)
}

func TestSubmit_NoQueueFailedSendReportsBoth(t *testing.T) {
	f := newFixture(t, true)
	f.sink.FailWith(500)
	c := New(f.monitor, f.sink, nil)

	_, err := c.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, record.IsStorageUnavailable(err))
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestSubmit_WithoutCoordinates(t *testing.T) {
	f := newFixture(t, false)
	c := f.controller()

	res, err := c.Submit(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Record.Latitude.Valid)
	assert.False(t, res.Record.Longitude.Valid)
	assert.Len(t, f.pending(t), 1)
}

func TestSubmit_DistinctKeysAndTimestamps(t *testing.T) {
	f := newFixture(t, false)
	c := f.controller()

	first, err := c.Submit(context.Background())
	require.NoError(t, err)
	second, err := c.Submit(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.Record.Key, second.Record.Key)
	assert.NotEqual(t, first.Record.Timestamp, second.Record.Timestamp)
	assert.Greater(t, second.Record.ID, first.Record.ID)
}

func TestSubmit_CoordinatesRetainedByDefault(t *testing.T) {
	f := newFixture(t, true)
	c := f.controller()
	require.NoError(t, c.SetCoordinates(record.Coord(1), record.Coord(2)))

	_, err := c.Submit(context.Background())
	require.NoError(t, err)

	st := c.Snapshot()
	assert.Equal(t, Resolved, st.State)
	assert.Equal(t, record.Coord(1), st.Latitude)
	require.NotNil(t, st.Last)
	assert.Equal(t, Sent, st.Last.Outcome)
}

func TestSubmit_ClearAfterSubmit(t *testing.T) {
	f := newFixture(t, true)
	c := f.controller(WithClearAfterSubmit(true))
	require.NoError(t, c.SetCoordinates(record.Coord(1), record.Coord(2)))

	_, err := c.Submit(context.Background())
	require.NoError(t, err)

	st := c.Snapshot()
	assert.False(t, st.Latitude.Valid)
	assert.False(t, st.Longitude.Valid)
}

func TestSubmit_RejectsConcurrentSubmission(t *testing.T) {
	f := newFixture(t, true)
	entered := make(chan struct{})
	release := make(chan struct{})

	c := New(f.monitor, blockingSink{entered: entered, release: release}, f.queue)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()

	<-entered
	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitInProgress)
	assert.Equal(t, Submitting, c.Snapshot().State)

	close(release)
	require.NoError(t, <-done)
}

type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (b blockingSink) Send(context.Context, record.FormRecord) error {
	close(b.entered)
	<-b.release
	return nil
}

func TestCapture_HoldsLocation(t *testing.T) {
	f := newFixture(t, true)
	c := f.controller(WithLocator(geo.NewStaticProvider(40.4168, -3.7038)))

	loc, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40.4168, loc.Latitude)

	st := c.Snapshot()
	assert.Equal(t, CoordinatesCaptured, st.State)
	assert.Equal(t, record.Coord(-3.7038), st.Longitude)
}

func TestCapture_UnavailableKeepsSubmitUsable(t *testing.T) {
	f := newFixture(t, false)
	c := f.controller()

	_, err := c.Capture(context.Background())
	require.Error(t, err)
	assert.True(t, record.IsGeolocationUnavailable(err))
	assert.Equal(t, Idle, c.Snapshot().State)

	res, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Buffered, res.Outcome)
	assert.False(t, res.Record.Latitude.Valid)
}

func TestCapture_WrapsProviderErrors(t *testing.T) {
	f := newFixture(t, true)
	c := f.controller(WithLocator(geo.ProviderFunc(func(context.Context) (geo.Location, error) {
		return geo.Location{}, errors.New("permission denied")
	})))

	_, err := c.Capture(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, geo.ErrOutOfRange)
	assert.False(t, record.IsGeolocationUnavailable(err), "a fix was obtained, it is just invalid")
	assert.Equal(t, Idle, c.Snapshot().State)
}

func TestCapture_RejectsOutOfRangeFix(t *testing.T) {
	f := newFixture(t, true)
	c := f.controller(WithLocator(geo.NewStaticProvider(120, 0)))

	_, err := c.Capture(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, geo.ErrOutOfRange)
	assert.False(t, record.IsGeolocationUnavailable(err), "a fix was obtained, it is just invalid")
	assert.Equal(t, Idle, c.Snapshot().State)
}

func TestSetCoordinates(t *testing.T) {
	f := newFixture(t, true)
	c := f.controller()

	assert.Error(t, c.SetCoordinates(record.Coord(91), record.Coord(0)))
	assert.Error(t, c.SetCoordinates(record.Coord(0), record.Coord(181)))
	assert.Equal(t, Idle, c.Snapshot().State)

	require.NoError(t, c.SetCoordinates(record.Coord(0), record.Coord(0)))
	assert.Equal(t, CoordinatesCaptured, c.Snapshot().State)

	require.NoError(t, c.SetCoordinates(record.Coordinate{}, record.Coordinate{}))
	assert.Equal(t, Idle, c.Snapshot().State)
}

func TestReset(t *testing.T) {
	f := newFixture(t, true)
	c := f.controller()

	_, err := c.Submit(context.Background())
	require.NoError(t, err)
	c.Reset()
	st := c.Snapshot()
	assert.Equal(t, Idle, st.State)
	assert.Nil(t, st.Last)

	require.NoError(t, c.SetCoordinates(record.Coord(3), record.Coord(4)))
	_, err = c.Submit(context.Background())
	require.NoError(t, err)
	c.Reset()
	assert.Equal(t, CoordinatesCaptured, c.Snapshot().State)
}

func TestStateAndOutcomeNames(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "coordinates_captured", CoordinatesCaptured.String())
	assert.Equal(t, "submitting", Submitting.String())
	assert.Equal(t, "resolved", Resolved.String())
	assert.Equal(t, "unknown", State(42).String())

	assert.Equal(t, "sent", Sent.String())
	assert.Equal(t, "buffered", Buffered.String())
	assert.Equal(t, "none", Outcome(0).String())
}
