package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gpsform/internal/record"
)

func TestEnqueue_AssignsID(t *testing.T) {
	q := createTestQueue(t)
	ctx := context.Background()

	stored, err := q.Enqueue(ctx, createTestRecord(1, 10, 20))
	require.NoError(t, err)

	assert.Equal(t, int64(1), stored.ID)
	assert.True(t, stored.Persisted())
}

func TestEnqueue_RejectsPersistedRecord(t *testing.T) {
	q := createTestQueue(t)

	rec := createTestRecord(1, 10, 20)
	rec.ID = 9

	_, err := q.Enqueue(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has id 9")
}

func TestEnqueue_RejectsMissingKey(t *testing.T) {
	q := createTestQueue(t)

	rec := createTestRecord(1, 10, 20)
	rec.Key = ""

	_, err := q.Enqueue(context.Background(), rec)
	require.Error(t, err)
}

func TestEnqueue_SameKeyReturnsExisting(t *testing.T) {
	q := createTestQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, createTestRecord(1, 10, 20))
	require.NoError(t, err)

	dup := createTestRecord(1, 99, 99)
	second, err := q.Enqueue(ctx, dup)
	require.NoError(t, err)

	assert.Equal(t, first, second, "existing record must not be overwritten")

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestListAll_InsertionOrderStrictlyIncreasingIDs(t *testing.T) {
	q := createTestQueue(t)
	ctx := context.Background()

	for i := 1; i <= 25; i++ {
		_, err := q.Enqueue(ctx, createTestRecord(i, float64(i), float64(-i)))
		require.NoError(t, err)
	}

	records, err := q.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 25)

	seen := make(map[int64]bool)
	for i, rec := range records {
		assert.Equal(t, record.Coord(float64(i+1)), rec.Latitude, "insertion order")
		assert.False(t, seen[rec.ID], "duplicate id %d", rec.ID)
		seen[rec.ID] = true
		if i > 0 {
			assert.Greater(t, rec.ID, records[i-1].ID, "ids must strictly increase")
		}
	}
}

func TestListAll_Empty(t *testing.T) {
	q := createTestQueue(t)

	records, err := q.ListAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestListAll_NonDestructive(t *testing.T) {
	q := createTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, createTestRecord(1, 1, 1))
	require.NoError(t, err)

	first, err := q.ListAll(ctx)
	require.NoError(t, err)
	second, err := q.ListAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRoundTrip_PreservesFields(t *testing.T) {
	q := createTestQueue(t)
	ctx := context.Background()

	tests := []struct {
		name string
		rec  record.FormRecord
	}{
		{
			name: "both coordinates",
			rec: record.FormRecord{
				Key:       "a",
				Latitude:  record.Coord(40.416775),
				Longitude: record.Coord(-3.70379),
				Timestamp: "2024-01-01T00:00:00.000Z",
			},
		},
		{
			name: "no coordinates",
			rec: record.FormRecord{
				Key:       "b",
				Timestamp: "2024-01-01T00:00:01.000Z",
			},
		},
		{
			name: "latitude only",
			rec: record.FormRecord{
				Key:       "c",
				Latitude:  record.Coord(0),
				Timestamp: "2024-01-01T00:00:02.000Z",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored, err := q.Enqueue(ctx, tt.rec)
			require.NoError(t, err)

			got, found, err := q.Get(ctx, stored.ID)
			require.NoError(t, err)
			require.True(t, found)

			assert.Equal(t, tt.rec.Latitude, got.Latitude)
			assert.Equal(t, tt.rec.Longitude, got.Longitude)
			assert.Equal(t, tt.rec.Timestamp, got.Timestamp)
			assert.Equal(t, tt.rec.Key, got.Key)
			assert.Equal(t, stored.ID, got.ID)
		})
	}
}

func TestRemove_Idempotent(t *testing.T) {
	q := createTestQueue(t)
	ctx := context.Background()

	a, err := q.Enqueue(ctx, createTestRecord(1, 1, 1))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, createTestRecord(2, 2, 2))
	require.NoError(t, err)

	removed, err := q.Remove(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	before, err := q.ListAll(ctx)
	require.NoError(t, err)

	removed, err = q.Remove(ctx, a.ID)
	require.NoError(t, err, "second remove must not fail")
	assert.False(t, removed)

	after, err := q.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after, "second remove must leave the queue unchanged")
}

func TestRemove_UnknownID(t *testing.T) {
	q := createTestQueue(t)

	removed, err := q.Remove(context.Background(), 12345)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestIDs_NeverReused(t *testing.T) {
	q := createTestQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, createTestRecord(1, 1, 1))
	require.NoError(t, err)
	_, err = q.Remove(ctx, first.ID)
	require.NoError(t, err)

	second, err := q.Enqueue(ctx, createTestRecord(2, 2, 2))
	require.NoError(t, err)

	assert.Greater(t, second.ID, first.ID, "AUTOINCREMENT must not reuse a deleted id")
}

func TestGet_Missing(t *testing.T) {
	q := createTestQueue(t)

	_, found, err := q.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEnqueue_Concurrent(t *testing.T) {
	q := createTestQueue(t)
	ctx := context.Background()

	const writers = 8
	const perWriter = 10

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := q.Enqueue(ctx, createTestRecord(w*perWriter+i, 1, 1)); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, n)
}
