package record

import (
	"fmt"
	"time"
)

// TimestampLayout is the ISO-8601 layout used for FormRecord.Timestamp.
// Values are always rendered in UTC, e.g. "2024-01-01T00:00:00.000Z".
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormRecord is one captured geolocation submission awaiting or having
// undergone delivery.
type FormRecord struct {
	// ID is assigned by the durable queue on insertion. Zero means "not persisted".
	ID int64 `json:"id,omitempty"`

	// Key identifies the logical submission. It is sent as the Idempotency-Key
	// header so the receiving endpoint can drop redeliveries.
	Key string `json:"key"`

	Latitude  Coordinate `json:"latitude"`
	Longitude Coordinate `json:"longitude"`

	// Timestamp is set once at submit time and never rewritten.
	Timestamp string `json:"timestamp"`
}

// Payload is the JSON body delivered to the submission endpoint.
type Payload struct {
	Latitude  Coordinate `json:"latitude"`
	Longitude Coordinate `json:"longitude"`
	Timestamp string     `json:"timestamp"`
}

// New builds an unpersisted record stamped with ts.
func New(key string, lat, lon Coordinate, ts time.Time) FormRecord {
	return FormRecord{
		Key:       key,
		Latitude:  lat,
		Longitude: lon,
		Timestamp: FormatTimestamp(ts),
	}
}

// Payload returns the wire form of the record. The ID and Key stay local.
func (r FormRecord) Payload() Payload {
	return Payload{
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Timestamp: r.Timestamp,
	}
}

// Persisted reports whether the queue has assigned an ID.
func (r FormRecord) Persisted() bool {
	return r.ID > 0
}

// String renders a compact single-line form used by the CLI and logs.
func (r FormRecord) String() string {
	return fmt.Sprintf("#%d lat=%s lon=%s ts=%s", r.ID, orDash(r.Latitude.String()), orDash(r.Longitude.String()), r.Timestamp)
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts any RFC 3339 timestamp, with or without fractional
// seconds.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
