// Package engine serializes every form operation through one event loop.
//
// Submissions, captures, connectivity events and explicit sync requests are
// enqueued as events and processed one at a time by Run. Callers block on a
// per-event reply. Connectivity transitions that originate elsewhere (the
// Watcher, another caller of Monitor.SetOnline) arrive through a monitor
// subscription and are processed by the same loop.
//
// Consequences of the single writer:
//   - A submission never races a reconcile pass over the same queue
//   - Going online triggers exactly one pass per transition
//   - Events are stamped with a monotonic seq from Clock in arrival order
//
// On startup Run performs one reconcile pass if the monitor already reports
// online and a durable queue is configured.
package engine
