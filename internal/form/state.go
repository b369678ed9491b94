package form

import (
	"fmt"

	"github.com/roach88/gpsform/internal/record"
)

// State is the controller's position in the submit flow.
type State int

const (
	Idle State = iota
	CoordinatesCaptured
	Submitting
	Resolved
)

var stateNames = map[State]string{
	Idle:                "idle",
	CoordinatesCaptured: "coordinates_captured",
	Submitting:          "submitting",
	Resolved:            "resolved",
}

// String returns the snake_case state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for st, name := range stateNames {
		if name == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown form state %q", text)
}

// Outcome is how a resolved submission was handled.
type Outcome int

const (
	// Sent means the sink confirmed delivery.
	Sent Outcome = iota + 1
	// Buffered means the record is in the durable queue awaiting reconciliation.
	Buffered
)

// String returns "sent" or "buffered".
func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case Buffered:
		return "buffered"
	default:
		return "none"
	}
}

// MarshalText encodes the outcome name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "sent":
		*o = Sent
	case "buffered":
		*o = Buffered
	case "none", "":
		*o = 0
	default:
		return fmt.Errorf("unknown outcome %q", text)
	}
	return nil
}

// Result describes one resolved submission.
type Result struct {
	Outcome Outcome           `json:"outcome"`
	Record  record.FormRecord `json:"record"`

	// DeliveryErr is set when a direct send was attempted and failed before
	// the record was buffered.
	DeliveryErr error `json:"-"`
}

// User-facing confirmation lines.
const (
	MessageSent            = "Form submitted."
	MessageBufferedOffline = "You are offline. Your data will be sent when you're back online."
	MessageBufferedRetry   = "The server could not be reached. Your data was saved and will be sent later."
)

// Message returns the user-facing confirmation line.
func (r Result) Message() string {
	switch {
	case r.Outcome == Sent:
		return MessageSent
	case r.Outcome == Buffered && r.DeliveryErr != nil:
		return MessageBufferedRetry
	case r.Outcome == Buffered:
		return MessageBufferedOffline
	default:
		return ""
	}
}

// Status is a point-in-time view of the controller.
type Status struct {
	State     State             `json:"state"`
	Latitude  record.Coordinate `json:"latitude"`
	Longitude record.Coordinate `json:"longitude"`
	Last      *Result           `json:"last,omitempty"`
}
