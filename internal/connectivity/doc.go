// Package connectivity tracks whether the remote submission endpoint is
// believed reachable.
//
// The Monitor holds a cached online/offline signal fed by host events
// (SetOnline). Probe checks reachability directly and never touches the
// cached signal. The Watcher is the event source for headless processes:
// it probes periodically and feeds the results into the Monitor.
package connectivity
