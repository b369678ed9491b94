package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gpsform/internal/record"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Event: "sync", Trigger: "startup"},
		{Seq: 2, Event: "capture", Trigger: "caller"},
		{Seq: 3, Event: "submit", Trigger: "caller", Outcome: "buffered"},
		{Seq: 4, Event: "connectivity", Trigger: "caller"},
		{Seq: 5, Event: "sync", Trigger: "caller", Error: "OFFLINE"},
	}
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Event: "sync", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Event: "sync", Trigger: "startup", Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Event: "submit", Trigger: "startup", Count: 0}))

	err := assertTraceCount(trace, Assertion{Event: "submit", Count: 2})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "2 occurrences of submit", ae.Expected)
	assert.Equal(t, "1 occurrences", ae.Actual)
	assert.Contains(t, err.Error(), "[3] submit (caller) outcome=buffered")
	assert.Contains(t, err.Error(), "[5] sync (caller) error=OFFLINE")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Events: []string{"capture", "submit", "sync"}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Events: []string{"sync", "sync"}}))

	err := assertTraceOrder(trace, Assertion{Events: []string{"submit", "capture"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture not found after [submit]")
}

func TestAssertFinalQueue(t *testing.T) {
	pending := []record.FormRecord{
		{ID: 1, Key: "a", Latitude: record.Coord(1), Longitude: record.Coord(2), Timestamp: "t1"},
		{ID: 2, Key: "b", Timestamp: "t2"},
	}

	assert.NoError(t, assertFinalQueue(pending, Assertion{Records: []RecordInput{
		{Latitude: float(1), Longitude: float(2)},
		{Timestamp: "t2"},
	}}))

	err := assertFinalQueue(pending, Assertion{Records: []RecordInput{{}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 queued records")

	err = assertFinalQueue(pending, Assertion{Records: []RecordInput{
		{Latitude: float(1), Longitude: float(3)},
		{},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record[0] lat=1 lon=3 ts=*")

	assert.NoError(t, assertFinalQueue(nil, Assertion{}))
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()
	result.SinkCalls = 2

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertSinkCalls, Count: 2},
		{Type: AssertPendingCount, Count: 1},
		{Type: "bogus"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "Expected: 1 pending records")
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}
