package store

import (
	"database/sql"

	"github.com/roach88/gpsform/internal/record"
)

// nullCoordinate maps an absent coordinate to SQL NULL.
// REAL columns store float64 exactly, so values round-trip bit for bit.
func nullCoordinate(c record.Coordinate) sql.NullFloat64 {
	return sql.NullFloat64{Float64: c.Value, Valid: c.Valid}
}

// coordinateFrom maps SQL NULL back to an absent coordinate.
func coordinateFrom(n sql.NullFloat64) record.Coordinate {
	if !n.Valid {
		return record.Coordinate{}
	}
	return record.Coord(n.Float64)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord scans id, submission_key, latitude, longitude, timestamp.
func scanRecord(row rowScanner) (record.FormRecord, error) {
	var rec record.FormRecord
	var lat, lon sql.NullFloat64
	if err := row.Scan(&rec.ID, &rec.Key, &lat, &lon, &rec.Timestamp); err != nil {
		return record.FormRecord{}, err
	}
	rec.Latitude = coordinateFrom(lat)
	rec.Longitude = coordinateFrom(lon)
	return rec, nil
}
