package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/gpsform/internal/record"
)

// ScriptedSink is an in-memory submission sink with scripted outcomes.
//
// Outcomes are consumed in order, one per Send. Once they run out, Send
// returns the fallback error (nil = success). Every call is recorded.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ScriptedSink struct {
	mu       sync.Mutex
	outcomes []error
	fallback error
	calls    []record.FormRecord
}

// NewScriptedSink creates a sink that returns outcomes in order, then succeeds.
func NewScriptedSink(outcomes ...error) *ScriptedSink {
	return &ScriptedSink{outcomes: outcomes}
}

// FailingSink creates a sink whose every Send fails with a DELIVERY_FAILED error
// carrying status.
func FailingSink(status int) *ScriptedSink {
	s := &ScriptedSink{}
	s.FailWith(status)
	return s
}

// Send records rec and returns the next scripted outcome.
func (s *ScriptedSink) Send(ctx context.Context, rec record.FormRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, rec)
	if err := ctx.Err(); err != nil {
		return record.NewDeliveryError(rec.ID, 0, err)
	}

	if len(s.outcomes) > 0 {
		err := s.outcomes[0]
		s.outcomes = s.outcomes[1:]
		return s.wrap(rec, err)
	}
	return s.wrap(rec, s.fallback)
}

// wrap attaches the record id to scripted delivery errors.
func (s *ScriptedSink) wrap(rec record.FormRecord, err error) error {
	if err == nil {
		return nil
	}
	var e *record.Error
	if errors.As(err, &e) && e.Code == record.ErrCodeDeliveryFailed {
		return record.NewDeliveryError(rec.ID, e.StatusCode, e.Err)
	}
	return record.NewDeliveryError(rec.ID, 0, err)
}

// FailWith makes every unscripted Send fail with HTTP status.
func (s *ScriptedSink) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = record.NewDeliveryError(0, status, nil)
}

// Succeed makes every unscripted Send succeed.
func (s *ScriptedSink) Succeed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = nil
}

// Script appends outcomes to be consumed before the fallback.
func (s *ScriptedSink) Script(outcomes ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcomes...)
}

// Calls returns a copy of every record passed to Send, in call order.
func (s *ScriptedSink) Calls() []record.FormRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]record.FormRecord, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of Send calls.
func (s *ScriptedSink) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
