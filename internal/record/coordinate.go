package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coordinate is a latitude or longitude that may be absent.
//
// The form only learns coordinates when the user asks for them, so a
// submission can carry neither, one, or both. Absent coordinates are encoded
// as the empty string, matching what the receiving endpoint already accepts.
type Coordinate struct {
	Value float64
	Valid bool
}

// Coord returns a present coordinate.
func Coord(v float64) Coordinate {
	return Coordinate{Value: v, Valid: true}
}

// ParseCoordinate parses a decimal string. The empty string yields an absent
// coordinate.
func ParseCoordinate(s string) (Coordinate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Coordinate{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("parse coordinate %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Coordinate{}, fmt.Errorf("parse coordinate %q: not a finite number", s)
	}
	return Coord(v), nil
}

// String returns the shortest decimal form, or "" when absent.
func (c Coordinate) String() string {
	if !c.Valid {
		return ""
	}
	return strconv.FormatFloat(c.Value, 'f', -1, 64)
}

// MarshalJSON encodes a number, or "" when absent.
func (c Coordinate) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte(`""`), nil
	}
	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
		return nil, fmt.Errorf("marshal coordinate: %v is not a finite number", c.Value)
	}
	return []byte(strconv.FormatFloat(c.Value, 'f', -1, 64)), nil
}

// UnmarshalJSON accepts a number, a numeric string, "", or null.
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = Coordinate{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("unmarshal coordinate: %w", err)
		}
		parsed, err := ParseCoordinate(s)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	parsed, err := ParseCoordinate(string(data))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ValidLatitude reports whether c is absent or within [-90, 90].
func ValidLatitude(c Coordinate) bool {
	return !c.Valid || (c.Value >= -90 && c.Value <= 90)
}

// ValidLongitude reports whether c is absent or within [-180, 180].
func ValidLongitude(c Coordinate) bool {
	return !c.Valid || (c.Value >= -180 && c.Value <= 180)
}
