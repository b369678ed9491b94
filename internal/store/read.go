package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/gpsform/internal/record"
)

// ListAll returns every pending record in insertion order.
// The result is a snapshot; it is not affected by later writes.
//
// Returns an empty slice (not nil) if the queue is empty.
func (q *Queue) ListAll(ctx context.Context) ([]record.FormRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, submission_key, latitude, longitude, timestamp
		FROM forms
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, record.NewStorageError("list records", err)
	}
	defer rows.Close()

	records := []record.FormRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, record.NewStorageError("iterate records", err)
	}

	return records, nil
}

// Get returns the record with the given ID.
// Returns found=false if no such record is pending.
func (q *Queue) Get(ctx context.Context, id int64) (rec record.FormRecord, found bool, err error) {
	rec, err = scanRecord(q.db.QueryRowContext(ctx, `
		SELECT id, submission_key, latitude, longitude, timestamp
		FROM forms
		WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return record.FormRecord{}, false, nil
	}
	if err != nil {
		return record.FormRecord{}, false, record.NewStorageError(fmt.Sprintf("get record %d", id), err)
	}
	return rec, true, nil
}

// Count returns the number of pending records.
func (q *Queue) Count(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM forms`).Scan(&n); err != nil {
		return 0, record.NewStorageError("count records", err)
	}
	return n, nil
}
