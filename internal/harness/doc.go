// Package harness runs YAML scenarios against a real engine.
//
// Each scenario gets a fresh in-memory queue, a scripted sink and
// deterministic clocks, so the same scenario always produces the same trace.
// Traces are compared against golden files in testdata/golden:
//
//	go test ./internal/harness -update
//
// regenerates them.
//
// A scenario lists flow steps (capture, submit, connect, disconnect, sync,
// sink) and assertions over the resulting trace, the final queue and the
// number of sink calls:
//
//	name: reconnect_drains_queue
//	description: A buffered submission is delivered when the signal returns
//	online: false
//	flow:
//	  - action: submit
//	    expect: {outcome: buffered}
//	  - action: connect
//	    expect: {delivered: 1}
//	assertions:
//	  - type: pending_count
//	    count: 0
package harness
