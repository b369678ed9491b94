package store

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/gpsform/internal/record"
)

// createTestQueue opens a queue backed by a fresh file in t.TempDir().
func createTestQueue(t *testing.T) *Queue {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	q, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

// createTestRecord creates an unpersisted record with a unique key.
func createTestRecord(n int, lat, lon float64) record.FormRecord {
	return record.FormRecord{
		Key:       fmt.Sprintf("key-%d", n),
		Latitude:  record.Coord(lat),
		Longitude: record.Coord(lon),
		Timestamp: fmt.Sprintf("2024-01-01T00:00:%02d.000Z", n%60),
	}
}
