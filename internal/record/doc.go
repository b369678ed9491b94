// Package record defines the FormRecord type shared by every gpsform package.
//
// This package contains type definitions and small helpers only. All other
// internal packages import record; record imports nothing internal.
//
// Key design constraints:
//   - Coordinates are optional: an absent coordinate encodes as "" on the wire
//   - Timestamps are RFC 3339 UTC strings with millisecond precision, fixed at submit time
//   - ID is assigned by the durable queue only; a fresh record has ID 0
//   - Key identifies one logical submission across buffering and delivery
package record
