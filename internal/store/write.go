package store

import (
	"context"
	"fmt"

	"github.com/roach88/gpsform/internal/record"
)

// Enqueue inserts a record and returns it with its assigned ID.
//
// The record must not already carry an ID and must have a submission key.
// Uses ON CONFLICT(submission_key) DO NOTHING: enqueueing a key that is
// already buffered returns the existing row unchanged, so a submission is
// never stored twice and never overwritten.
func (q *Queue) Enqueue(ctx context.Context, rec record.FormRecord) (record.FormRecord, error) {
	if rec.ID != 0 {
		return record.FormRecord{}, fmt.Errorf("enqueue: record already has id %d", rec.ID)
	}
	if rec.Key == "" {
		return record.FormRecord{}, fmt.Errorf("enqueue: record has no submission key")
	}
	if rec.Timestamp == "" {
		return record.FormRecord{}, fmt.Errorf("enqueue: record has no timestamp")
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return record.FormRecord{}, record.NewStorageError("enqueue: begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO forms (submission_key, latitude, longitude, timestamp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(submission_key) DO NOTHING
	`,
		rec.Key,
		nullCoordinate(rec.Latitude),
		nullCoordinate(rec.Longitude),
		rec.Timestamp,
	)
	if err != nil {
		return record.FormRecord{}, record.NewStorageError("enqueue: insert", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return record.FormRecord{}, record.NewStorageError("enqueue: rows affected", err)
	}

	var stored record.FormRecord
	if rowsAffected > 0 {
		id, err := result.LastInsertId()
		if err != nil {
			return record.FormRecord{}, record.NewStorageError("enqueue: last insert id", err)
		}
		stored = rec
		stored.ID = id
	} else {
		// Conflict - this submission is already buffered
		stored, err = scanRecord(tx.QueryRowContext(ctx, `
			SELECT id, submission_key, latitude, longitude, timestamp
			FROM forms
			WHERE submission_key = ?
		`, rec.Key))
		if err != nil {
			return record.FormRecord{}, record.NewStorageError("enqueue: select existing", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return record.FormRecord{}, record.NewStorageError("enqueue: commit", err)
	}

	return stored, nil
}

// Remove deletes the record with the given ID.
// Returns removed=false (and no error) if the record is already gone:
// delivery and deletion are not atomic with retrieval, so double deletes
// are expected.
func (q *Queue) Remove(ctx context.Context, id int64) (removed bool, err error) {
	result, err := q.db.ExecContext(ctx, `DELETE FROM forms WHERE id = ?`, id)
	if err != nil {
		return false, record.NewStorageError(fmt.Sprintf("remove record %d", id), err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, record.NewStorageError(fmt.Sprintf("remove record %d: rows affected", id), err)
	}
	return n > 0, nil
}
