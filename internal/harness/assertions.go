package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/gpsform/internal/record"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s (%s)", event.Seq, event.Event, event.Trigger)
			if event.Outcome != "" {
				fmt.Fprintf(&buf, " outcome=%s", event.Outcome)
			}
			if event.Error != "" {
				fmt.Fprintf(&buf, " error=%s", event.Error)
			}
			buf.WriteString("\n")
		}
	}

	return buf.String()
}

// assertTraceCount checks that the event appears exactly Count times. A
// non-empty Trigger narrows the match.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Event == a.Event && (a.Trigger == "" || event.Trigger == a.Trigger) {
			count++
		}
	}

	if count != a.Count {
		what := a.Event
		if a.Trigger != "" {
			what += " (" + a.Trigger + ")"
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceOrder checks that events appear in the given order.
// Events don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(a.Events) && event.Event == a.Events[next] {
			next++
		}
	}
	if next == len(a.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("events in order: %v", a.Events),
		Actual:   fmt.Sprintf("%s not found after %v", a.Events[next], a.Events[:next]),
		Trace:    trace,
	}
}

func assertCount(typ, noun string, want, got int) error {
	if want == got {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprintf("%d %s", want, noun),
		Actual:   fmt.Sprintf("%d %s", got, noun),
	}
}

// assertFinalQueue checks the queue holds exactly the given records, in
// order. Only coordinates are compared, plus the timestamp when given.
func assertFinalQueue(pending []record.FormRecord, a Assertion) error {
	if len(pending) != len(a.Records) {
		return &AssertionError{
			Type:     AssertFinalQueue,
			Expected: fmt.Sprintf("%d queued records", len(a.Records)),
			Actual:   fmt.Sprintf("%d queued records: %s", len(pending), describe(pending)),
		}
	}

	for i, want := range a.Records {
		got := pending[i]
		lat, lon := want.Coordinates()
		if got.Latitude != lat || got.Longitude != lon ||
			(want.Timestamp != "" && got.Timestamp != want.Timestamp) {
			return &AssertionError{
				Type:     AssertFinalQueue,
				Expected: fmt.Sprintf("record[%d] lat=%s lon=%s ts=%s", i, lat, lon, orAny(want.Timestamp)),
				Actual:   fmt.Sprintf("record[%d] %s", i, got),
			}
		}
	}
	return nil
}

func describe(records []record.FormRecord) string {
	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = r.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func orAny(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertPendingCount:
			err = assertCount(a.Type, "pending records", a.Count, len(result.Pending))
		case AssertSinkCalls:
			err = assertCount(a.Type, "sink calls", a.Count, result.SinkCalls)
		case AssertFinalQueue:
			err = assertFinalQueue(result.Pending, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}
