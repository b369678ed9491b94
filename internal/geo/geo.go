// Package geo obtains the device position for the form's capture action.
package geo

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/gpsform/internal/record"
)

// ErrOutOfRange is returned by Validate for coordinates outside WGS 84 bounds.
var ErrOutOfRange = errors.New("coordinate out of range")

// Location represents a geographic coordinate.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Coordinates converts the location into present record coordinates.
func (l Location) Coordinates() (lat, lon record.Coordinate) {
	return record.Coord(l.Latitude), record.Coord(l.Longitude)
}

// Validate checks that the location lies within WGS 84 bounds.
func (l Location) Validate() error {
	lat, lon := l.Coordinates()
	if !record.ValidLatitude(lat) {
		return fmt.Errorf("%w: latitude %v not in [-90, 90]", ErrOutOfRange, l.Latitude)
	}
	if !record.ValidLongitude(lon) {
		return fmt.Errorf("%w: longitude %v not in [-180, 180]", ErrOutOfRange, l.Longitude)
	}
	return nil
}

// Provider defines the interface for obtaining the current location.
//
// Implementations return a GEOLOCATION_UNAVAILABLE record.Error when no fix
// can be obtained (capability absent, permission denied, timeout).
type Provider interface {
	Locate(ctx context.Context) (Location, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Location, error)

// Locate calls f.
func (f ProviderFunc) Locate(ctx context.Context) (Location, error) {
	return f(ctx)
}

// StaticProvider implements Provider with a fixed location.
type StaticProvider struct {
	Lat float64
	Lng float64
}

// NewStaticProvider creates a provider that always returns the same location.
func NewStaticProvider(lat, lng float64) *StaticProvider {
	return &StaticProvider{
		Lat: lat,
		Lng: lng,
	}
}

// Locate returns the fixed location.
func (s *StaticProvider) Locate(ctx context.Context) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, record.NewGeolocationError("locate", err)
	}
	return Location{
		Latitude:  s.Lat,
		Longitude: s.Lng,
	}, nil
}

// UnavailableProvider reports that the host has no geolocation capability.
type UnavailableProvider struct {
	// Reason is included in the error message. Defaults to "geolocation is not supported".
	Reason string
}

// Locate always fails with GEOLOCATION_UNAVAILABLE.
func (u UnavailableProvider) Locate(context.Context) (Location, error) {
	reason := u.Reason
	if reason == "" {
		reason = "geolocation is not supported"
	}
	return Location{}, record.NewGeolocationError(reason, nil)
}
