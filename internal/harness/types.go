package harness

import (
	"errors"

	"github.com/roach88/gpsform/internal/engine"
	"github.com/roach88/gpsform/internal/geo"
	"github.com/roach88/gpsform/internal/record"
)

// TraceEvent is the deterministic view of one engine step.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Event   string `json:"event"`
	Trigger string `json:"trigger"`

	Outcome       string       `json:"outcome,omitempty"`
	Record        *TraceRecord `json:"record,omitempty"`
	DeliveryError string       `json:"delivery_error,omitempty"`

	Location *geo.Location `json:"location,omitempty"`

	// Connectivity is the new state when the step changed it.
	Connectivity string `json:"connectivity,omitempty"`

	Report *TraceReport `json:"report,omitempty"`

	Error string `json:"error,omitempty"`
}

// TraceRecord is a FormRecord as it appears in a trace.
type TraceRecord struct {
	ID        int64             `json:"id,omitempty"`
	Key       string            `json:"key"`
	Latitude  record.Coordinate `json:"latitude"`
	Longitude record.Coordinate `json:"longitude"`
	Timestamp string            `json:"timestamp"`
}

// TraceReport is a reconcile Report as it appears in a trace.
type TraceReport struct {
	Attempted int     `json:"attempted"`
	Delivered []int64 `json:"delivered"`
	Failed    []int64 `json:"failed"`
	Remaining int     `json:"remaining"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions hold.
	Pass bool `json:"pass"`

	// Trace contains every engine step in processing order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Pending is the queue content after the flow, in insertion order.
	Pending []record.FormRecord `json:"pending"`

	// SinkCalls is the number of sends the sink received.
	SinkCalls int `json:"sink_calls"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Pending: []record.FormRecord{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// traceEvent converts an engine step.
func traceEvent(s engine.Step) TraceEvent {
	ev := TraceEvent{
		Seq:     s.Seq,
		Event:   s.Type.String(),
		Trigger: string(s.Trigger),
	}
	if s.Result != nil {
		ev.Outcome = s.Result.Outcome.String()
		ev.Record = traceRecord(s.Result.Record)
		if s.Result.DeliveryErr != nil {
			ev.DeliveryError = ErrorCode(s.Result.DeliveryErr)
		}
	}
	if s.Location != nil {
		loc := *s.Location
		ev.Location = &loc
	}
	if s.Transition != nil {
		ev.Connectivity = s.Transition.To.String()
	}
	if s.Report != nil {
		ev.Report = &TraceReport{
			Attempted: s.Report.Attempted,
			Delivered: nonNil(s.Report.Delivered),
			Failed:    nonNil(s.Report.Failed),
			Remaining: s.Report.Remaining,
		}
	}
	if s.Err != nil {
		ev.Error = ErrorCode(s.Err)
	}
	return ev
}

func traceRecord(r record.FormRecord) *TraceRecord {
	return &TraceRecord{
		ID:        r.ID,
		Key:       r.Key,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Timestamp: r.Timestamp,
	}
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

// ErrorCode reduces err to a stable code for traces and expect clauses.
func ErrorCode(err error) string {
	var e *record.Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &e):
		return string(e.Code)
	case errors.Is(err, engine.ErrOffline):
		return "OFFLINE"
	case errors.Is(err, engine.ErrNoQueue):
		return "NO_QUEUE"
	case errors.Is(err, engine.ErrStopped):
		return "STOPPED"
	case errors.Is(err, geo.ErrOutOfRange):
		return "OUT_OF_RANGE"
	default:
		return "ERROR"
	}
}
