package engine

import "errors"

var (
	// ErrStopped is returned for events submitted after, or pending at, shutdown.
	ErrStopped = errors.New("engine stopped")

	// ErrOffline is returned by Sync while the connectivity signal is offline.
	ErrOffline = errors.New("offline: reconcile pass skipped")

	// ErrNoQueue is returned by Sync and Pending when no durable queue is configured.
	ErrNoQueue = errors.New("durable queue unavailable")
)
