// Package form implements the form controller: it holds the captured
// coordinates and decides at submit time whether a record is sent directly
// or buffered in the durable queue.
//
// State machine:
//
//	Idle --capture--> CoordinatesCaptured --submit--> Submitting --> Resolved(Sent|Buffered)
//
// Submit is also permitted from Idle and Resolved; the record then carries
// whatever coordinates are held (possibly none). A record is queued only if
// the connectivity signal says offline or the direct send failed, never both
// queued and sent by the same submission.
package form
